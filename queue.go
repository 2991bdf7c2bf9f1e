/*
Copyright 2025 SuperCV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package supercv

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/supercvhq/supercv/config"
	redis_db "github.com/supercvhq/supercv/internal/redis-db"
	"github.com/supercvhq/supercv/model"
)

// Queue dispatches analyze and customize jobs to the worker pool over Redis.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueAnalyze dispatches an analyze job. The task id is the submission id,
// so a double submit of the same record cannot produce two queued jobs.
func (q *Queue) EnqueueAnalyze(ctx context.Context, payload *model.AnalyzePayload) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(payload.SubmissionID),
		asynq.Queue(cfg.Queue.AnalyzeQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetries),
	}
	task := asynq.NewTask(model.JobAnalyze, data, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued analyze job: %+v", payload.SubmissionID)
	return nil
}

// EnqueueCustomize dispatches a customize job for an existing submission.
// The task id carries a "customize:" prefix so a customize round can follow
// an analyze round that used the bare submission id.
func (q *Queue) EnqueueCustomize(ctx context.Context, payload *model.CustomizePayload) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID("customize:" + payload.SubmissionID),
		asynq.Queue(cfg.Queue.CustomizeQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetries),
	}
	task := asynq.NewTask(model.JobCustomize, data, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			if existing, infoErr := q.Inspector.GetTaskInfo(cfg.Queue.CustomizeQueue, "customize:"+payload.SubmissionID); infoErr == nil {
				log.Printf(" [*] Customize job for %s already enqueued (state: %s)", payload.SubmissionID, existing.State)
			}
			return err
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued customize job: %+v", payload.SubmissionID)
	return nil
}

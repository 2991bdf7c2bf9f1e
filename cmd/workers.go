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
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"

	"github.com/supercvhq/supercv/config"
	redis_db "github.com/supercvhq/supercv/internal/redis-db"
	"github.com/supercvhq/supercv/model"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	queues := make(map[string]int)
	queues[conf.Queue.AnalyzeQueue] = 3
	queues[conf.Queue.CustomizeQueue] = 1
	return queues
}

// retryDelay backs off exponentially per attempt. Customize jobs carry a
// longer base delay: their context payloads are larger and the engine takes
// longer per request.
func retryDelay(n int, _ error, task *asynq.Task) time.Duration {
	base := time.Second
	if task.Type() == model.JobCustomize {
		base = 2 * time.Second
	}
	return base * time.Duration(1<<n)
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	concurrency := conf.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency:    concurrency,
			Queues:         queues,
			RetryDelayFunc: retryDelay,
		},
	), nil
}

func initializeTaskHandlers(b *supercvInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(model.JobAnalyze, b.service.ProcessAnalyzeJob)
	mux.HandleFunc(model.JobCustomize, b.service.ProcessCustomizeJob)
}

// workerCommands defines the "workers" command to start the job processors
// that drive the analyze and customize pipelines.
func workerCommands(b *supercvInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start supercv workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			queues := initializeQueues(conf)
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatalf("Error initializing worker server: %v", err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run worker server: %v", err)
			}
		},
	}

	return cmd
}

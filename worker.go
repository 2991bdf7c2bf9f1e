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
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/supercvhq/supercv/internal/aiengine"
	"github.com/supercvhq/supercv/internal/notification"
	"github.com/supercvhq/supercv/model"
)

// ProcessAnalyzeJob runs one analyze attempt. Every attempt moves the
// submission to PROCESSING first, so a retried job re-enters the same state
// machine it entered the first time. Returning an error tells the queue to
// retry; the FAILED status written before returning reflects this attempt
// and is overwritten when the retry lands.
func (s *SuperCV) ProcessAnalyzeJob(ctx context.Context, task *asynq.Task) error {
	var payload model.AnalyzePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("discarding malformed analyze payload: %v", err)
		return fmt.Errorf("malformed analyze payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := s.datasource.UpdateSubmissionStatus(ctx, payload.SubmissionID, model.StatusProcessing); err != nil {
		return err
	}

	fileData, err := s.storage.Read(payload.FilePath)
	if err != nil {
		// The attempt is dead but the job is not: the queue keeps its
		// retry budget in case the file turns up on a later delivery.
		s.failSubmission(payload.SubmissionID, err)
		return fmt.Errorf("file unavailable for %s: %w", payload.SubmissionID, err)
	}

	jobCtx := aiengine.JobContext{Text: payload.JobContext.Text, URL: payload.JobContext.URL}
	result, err := s.aiClient.Analyze(ctx, fileData, payload.Filename, jobCtx, payload.AsOfDate)
	if err != nil {
		s.failSubmission(payload.SubmissionID, err)
		return err
	}

	if err := s.datasource.CompleteAnalyze(ctx, payload.SubmissionID, result.Analysis, result.CvData); err != nil {
		return err
	}

	logrus.Infof("analyze completed for submission %s", payload.SubmissionID)
	return nil
}

// ProcessCustomizeJob runs one customize attempt. Same state machine as
// analyze; only the draft field is written on success, so the original
// analysis survives any number of customize rounds.
func (s *SuperCV) ProcessCustomizeJob(ctx context.Context, task *asynq.Task) error {
	var payload model.CustomizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("discarding malformed customize payload: %v", err)
		return fmt.Errorf("malformed customize payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := s.datasource.UpdateSubmissionStatus(ctx, payload.SubmissionID, model.StatusProcessing); err != nil {
		return err
	}

	fileData, err := s.storage.Read(payload.FilePath)
	if err != nil {
		s.failSubmission(payload.SubmissionID, err)
		return fmt.Errorf("file unavailable for %s: %w", payload.SubmissionID, err)
	}

	draft, err := s.aiClient.Customize(ctx, fileData, payload.Filename, payload.Mode, payload.ContextData, payload.AsOfDate)
	if err != nil {
		s.failSubmission(payload.SubmissionID, err)
		return err
	}

	if err := s.datasource.CompleteCustomize(ctx, payload.SubmissionID, draft); err != nil {
		return err
	}

	logrus.Infof("customize completed for submission %s", payload.SubmissionID)
	return nil
}

// failSubmission marks a submission FAILED after an attempt error and clears
// any cached copy so readers see the failure, not a stale status. It runs on
// a fresh context: the status write must land even when the job's own
// context was what got canceled.
func (s *SuperCV) failSubmission(id string, cause error) {
	ctx := context.Background()
	notification.NotifyError(fmt.Errorf("submission %s failed: %w", id, cause))
	if err := s.datasource.UpdateSubmissionStatus(ctx, id, model.StatusFailed); err != nil {
		logrus.Error(err)
	}
	if err := s.cache.Delete(ctx, submissionCacheKey(id)); err != nil {
		logrus.Error(err)
	}
}

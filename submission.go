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
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/supercvhq/supercv/internal/aiengine"
	"github.com/supercvhq/supercv/internal/apierror"
	"github.com/supercvhq/supercv/internal/fileval"
	"github.com/supercvhq/supercv/internal/notification"
	"github.com/supercvhq/supercv/model"
)

const submissionCacheTTL = 5 * time.Minute

// SubmitParams carries an uploaded CV and its request context into Submit.
type SubmitParams struct {
	FileData     []byte
	FileSize     int64
	MimeType     string
	OriginalName string
	UserID       string
	JobContext   model.JobContext
}

// Submit validates and stores an uploaded CV, records a PENDING submission,
// and dispatches the analyze job. The AI engine is never called here: a slow
// or down engine cannot block intake. The as-of date is captured once at
// submit time so retried jobs see the date the user submitted on, not the
// date of the retry.
func (s *SuperCV) Submit(ctx context.Context, params *SubmitParams) (*model.Submission, error) {
	result, err := fileval.Validate(params.FileData, params.FileSize, params.MimeType, params.OriginalName)
	if err != nil {
		return nil, err
	}

	if params.UserID != "" {
		if _, err := s.datasource.ChargeCredit(ctx, params.UserID); err != nil {
			return nil, err
		}
	}

	if priorID, err := s.datasource.FindSubmissionByFileHash(ctx, result.Fingerprint); err == nil && priorID != "" {
		logrus.Infof("file fingerprint %s seen before on submission %s", result.Fingerprint, priorID)
	}

	filePath, err := s.storage.Save(result.SanitizedName, params.FileData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store uploaded file", err)
	}

	sub := &model.Submission{
		UserID:     params.UserID,
		FilePath:   filePath,
		FileHash:   result.Fingerprint,
		JobContext: params.JobContext,
	}
	sub, err = s.datasource.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}

	payload := &model.AnalyzePayload{
		SubmissionID: sub.SubmissionID,
		FilePath:     sub.FilePath,
		Filename:     result.SanitizedName,
		JobContext:   sub.JobContext,
		AsOfDate:     time.Now().Format("2006-01-02"),
	}
	if err := s.queue.EnqueueAnalyze(ctx, payload); err != nil {
		notification.NotifyError(fmt.Errorf("failed to enqueue analyze job for %s: %w", sub.SubmissionID, err))
		if updErr := s.datasource.UpdateSubmissionStatus(ctx, sub.SubmissionID, model.StatusFailed); updErr != nil {
			logrus.Error(updErr)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to queue analysis", err)
	}

	return sub, nil
}

// ClaimSubmission attaches an anonymous submission to a user and charges one
// credit. Claiming a submission the caller already owns is a no-op success;
// a submission owned by someone else is never reassigned.
func (s *SuperCV) ClaimSubmission(ctx context.Context, id string, userID string) (*model.Submission, error) {
	sub, err := s.datasource.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID == userID {
		return sub, nil
	}
	if sub.UserID != "" {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Submission belongs to another user", nil)
	}

	claimed, err := s.datasource.ClaimSubmission(ctx, id, userID)
	if err != nil {
		// A concurrent claim may have won between the read above and the
		// conditional update. If the winner was this same user, the claim
		// already holds.
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict {
			current, getErr := s.datasource.GetSubmission(ctx, id)
			if getErr == nil && current.UserID == userID {
				return current, nil
			}
		}
		return nil, err
	}

	if cacheErr := s.cache.Delete(ctx, submissionCacheKey(id)); cacheErr != nil {
		logrus.Error(cacheErr)
	}
	return claimed, nil
}

// RequestCustomization re-enters a completed submission into the pipeline to
// produce a tailored draft. Mode "analysis" reuses the stored analysis as
// context and needs no input; mode "job_desc" requires a job description.
func (s *SuperCV) RequestCustomization(ctx context.Context, id string, userID string, mode string, jobDescription string) (*model.Submission, error) {
	sub, err := s.datasource.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != "" && userID != "" && sub.UserID != userID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Submission belongs to another user", nil)
	}
	if !s.storage.Exists(sub.FilePath) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Original file is no longer available", nil)
	}

	var contextData string
	switch mode {
	case aiengine.ModeAnalysis:
		if len(sub.AnalysisResult) == 0 {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Submission has no analysis result to customize from", nil)
		}
		contextData = string(sub.AnalysisResult)
	case aiengine.ModeJobDesc:
		// A fresh description wins; otherwise reuse the one the CV was
		// uploaded with.
		contextData = jobDescription
		if contextData == "" {
			contextData = sub.JobContext.Text
		}
		if contextData == "" {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, "No job description available for this submission", nil)
		}
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown customization mode '%s'", mode), nil)
	}

	if err := s.datasource.UpdateSubmissionStatus(ctx, id, model.StatusPending); err != nil {
		return nil, err
	}
	if cacheErr := s.cache.Delete(ctx, submissionCacheKey(id)); cacheErr != nil {
		logrus.Error(cacheErr)
	}

	payload := &model.CustomizePayload{
		SubmissionID: sub.SubmissionID,
		FilePath:     sub.FilePath,
		Filename:     filepath.Base(sub.FilePath),
		Mode:         mode,
		ContextData:  contextData,
		AsOfDate:     time.Now().Format("2006-01-02"),
	}
	if err := s.queue.EnqueueCustomize(ctx, payload); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// A customize round for this submission is already in flight;
			// the queued job will satisfy this request too.
			sub.Status = model.StatusPending
			return sub, nil
		}
		notification.NotifyError(fmt.Errorf("failed to enqueue customize job for %s: %w", sub.SubmissionID, err))
		if updErr := s.datasource.UpdateSubmissionStatus(ctx, sub.SubmissionID, model.StatusFailed); updErr != nil {
			logrus.Error(updErr)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to queue customization", err)
	}

	sub.Status = model.StatusPending
	return sub, nil
}

// GetSubmission retrieves a submission by id. The id is the capability: any
// holder may read status and results. Completed submissions are served from
// cache; in-flight ones always hit the store so status stays fresh.
func (s *SuperCV) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var cached model.Submission
	if err := s.cache.Get(ctx, submissionCacheKey(id), &cached); err == nil && cached.SubmissionID != "" {
		return &cached, nil
	}

	sub, err := s.datasource.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status == model.StatusCompleted {
		if cacheErr := s.cache.Set(ctx, submissionCacheKey(id), sub, submissionCacheTTL); cacheErr != nil {
			logrus.Error(cacheErr)
		}
	}
	return sub, nil
}

// GetUserSubmissions lists a user's recent submissions.
func (s *SuperCV) GetUserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.datasource.GetUserSubmissions(ctx, userID, limit)
}

// SyncUser upserts a user account from the identity provider. First-time
// accounts start with one free credit; re-syncs refresh the profile without
// touching the balance.
func (s *SuperCV) SyncUser(ctx context.Context, usr *model.User) (*model.User, error) {
	if usr.Credits == 0 {
		usr.Credits = 1
	}
	if _, err := s.datasource.CreateUser(ctx, usr); err != nil {
		return nil, err
	}
	return s.datasource.GetUser(ctx, usr.UserID)
}

// GetUser retrieves a user account with its current credit balance.
func (s *SuperCV) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.datasource.GetUser(ctx, id)
}

func submissionCacheKey(id string) string {
	return fmt.Sprintf("submission:%s", id)
}

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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/supercvhq/supercv/internal/apierror"
	"github.com/supercvhq/supercv/model"
)

// CreateSubmission persists a new submission. Status is forced to PENDING;
// the worker owns every later transition.
func (d Datasource) CreateSubmission(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	if sub.SubmissionID == "" {
		sub.SubmissionID = model.GenerateUUIDWithSuffix("cv")
	}
	sub.Status = model.StatusPending
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	jobContextJSON, err := json.Marshal(sub.JobContext)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal job context", err)
	}

	var userID sql.NullString
	if sub.UserID != "" {
		userID = sql.NullString{String: sub.UserID, Valid: true}
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO submissions (submission_id, user_id, file_path, file_hash, status, job_context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sub.SubmissionID, userID, sub.FilePath, sub.FileHash, sub.Status, jobContextJSON, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create submission", err)
	}

	return sub, nil
}

// GetSubmission retrieves a submission by ID, including result payloads.
func (d Datasource) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT submission_id, COALESCE(user_id, ''), file_path, file_hash, status, job_context, original_data, analysis_result, ai_draft, created_at, updated_at
		FROM submissions
		WHERE submission_id = $1
	`, id)

	sub := &model.Submission{}
	var jobContextJSON []byte
	var originalData, analysisResult, aiDraft sql.NullString
	err := row.Scan(&sub.SubmissionID, &sub.UserID, &sub.FilePath, &sub.FileHash, &sub.Status,
		&jobContextJSON, &originalData, &analysisResult, &aiDraft, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve submission", err)
	}

	if len(jobContextJSON) > 0 {
		if err := json.Unmarshal(jobContextJSON, &sub.JobContext); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal job context", err)
		}
	}
	if originalData.Valid {
		sub.OriginalData = json.RawMessage(originalData.String)
	}
	if analysisResult.Valid {
		sub.AnalysisResult = json.RawMessage(analysisResult.String)
	}
	if aiDraft.Valid {
		sub.AiDraft = json.RawMessage(aiDraft.String)
	}

	return sub, nil
}

// UpdateSubmissionStatus moves a submission to a new status. Each call is a
// full overwrite, so queue redeliveries converge to the same end state.
func (d Datasource) UpdateSubmissionStatus(ctx context.Context, id string, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE submissions SET status = $2, updated_at = NOW() WHERE submission_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update submission status", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), nil)
	}
	return nil
}

// CompleteAnalyze writes the analyze results and COMPLETED in a single
// statement so a crash can never leave results without the status.
func (d Datasource) CompleteAnalyze(ctx context.Context, id string, analysis, originalData json.RawMessage) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2, analysis_result = $3, original_data = $4, updated_at = NOW()
		WHERE submission_id = $1
	`, id, model.StatusCompleted, []byte(analysis), []byte(originalData))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record analysis result", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), nil)
	}
	return nil
}

// CompleteCustomize writes the AI draft and COMPLETED in a single statement.
// Only the draft field is overwritten; analyze results survive reprocessing.
func (d Datasource) CompleteCustomize(ctx context.Context, id string, draft json.RawMessage) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2, ai_draft = $3, updated_at = NOW()
		WHERE submission_id = $1
	`, id, model.StatusCompleted, []byte(draft))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record customize result", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), nil)
	}
	return nil
}

// ClaimSubmission attaches an anonymous submission to a user and charges one
// credit, both inside one database transaction: a crash between the two
// writes can neither grant free access nor charge without granting it.
// The ownership update's predicate (user_id IS NULL) makes concurrent claims
// race safely; the loser sees zero rows and rolls back, leaving the charge
// uncommitted.
func (d Datasource) ClaimSubmission(ctx context.Context, id string, userID string) (*model.Submission, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin claim transaction", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logrus.Error(err)
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET user_id = $2, updated_at = NOW()
		WHERE submission_id = $1 AND user_id IS NULL
	`, id, userID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim submission", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Submission already claimed", nil)
	}

	var newBalance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits - 1
		WHERE user_id = $1 AND credits > 0
		RETURNING credits
	`, userID).Scan(&newBalance)
	if err != nil {
		if err == sql.ErrNoRows {
			var exists bool
			checkErr := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
			if checkErr != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to charge credit for claim", checkErr)
			}
			if !exists {
				return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with ID '%s' not found", userID), err)
			}
			return nil, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Insufficient credits", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to charge credit for claim", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit claim", err)
	}

	return d.GetSubmission(ctx, id)
}

// FindSubmissionByFileHash returns the id of a prior submission with the
// same content fingerprint, or an empty string.
func (d Datasource) FindSubmissionByFileHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT submission_id FROM submissions WHERE file_hash = $1 ORDER BY created_at ASC LIMIT 1
	`, hash).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up file hash", err)
	}
	return id, nil
}

// GetUserSubmissions retrieves a user's most recent submissions, result
// payloads included.
func (d Datasource) GetUserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT submission_id, COALESCE(user_id, ''), file_path, file_hash, status, job_context, original_data, analysis_result, ai_draft, created_at, updated_at
		FROM submissions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve submissions", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	var subs []model.Submission
	for rows.Next() {
		sub := model.Submission{}
		var jobContextJSON []byte
		var originalData, analysisResult, aiDraft sql.NullString
		err := rows.Scan(&sub.SubmissionID, &sub.UserID, &sub.FilePath, &sub.FileHash, &sub.Status,
			&jobContextJSON, &originalData, &analysisResult, &aiDraft, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan submission", err)
		}
		if len(jobContextJSON) > 0 {
			if err := json.Unmarshal(jobContextJSON, &sub.JobContext); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal job context", err)
			}
		}
		if originalData.Valid {
			sub.OriginalData = json.RawMessage(originalData.String)
		}
		if analysisResult.Valid {
			sub.AnalysisResult = json.RawMessage(analysisResult.String)
		}
		if aiDraft.Valid {
			sub.AiDraft = json.RawMessage(aiDraft.String)
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

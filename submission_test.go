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
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supercvhq/supercv/internal/apierror"
	"github.com/supercvhq/supercv/model"
)

var pdfFixture = append([]byte("%PDF-1.7\n"), []byte(gofakeit.Paragraph(3, 5, 10, " "))...)

func submissionRows(id, userID, filePath, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"submission_id", "user_id", "file_path", "file_hash", "status", "job_context", "original_data", "analysis_result", "ai_draft", "created_at", "updated_at"}).
		AddRow(id, userID, filePath, "hash", status, []byte(`{}`), nil, `{"score":80}`, nil, now, now)
}

func TestSubmitAnonymous(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id FROM submissions WHERE file_hash = $1`)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO submissions`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sub, err := s.Submit(context.Background(), &SubmitParams{
		FileData:     pdfFixture,
		FileSize:     int64(len(pdfFixture)),
		MimeType:     "application/pdf",
		OriginalName: "resume.pdf",
		JobContext:   model.JobContext{Text: "Backend engineer"},
	})
	require.NoError(t, err)
	assert.Contains(t, sub.SubmissionID, "cv_")
	assert.Equal(t, model.StatusPending, sub.Status)
	assert.True(t, s.storage.Exists(sub.FilePath))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitChargesCredit(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	userID := gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id FROM submissions WHERE file_hash = $1`)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO submissions`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sub, err := s.Submit(context.Background(), &SubmitParams{
		FileData:     pdfFixture,
		FileSize:     int64(len(pdfFixture)),
		MimeType:     "application/pdf",
		OriginalName: "resume.pdf",
		UserID:       userID,
	})
	require.NoError(t, err)
	assert.Equal(t, userID, sub.UserID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitInsufficientCredits(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	userID := gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.Submit(context.Background(), &SubmitParams{
		FileData:     pdfFixture,
		FileSize:     int64(len(pdfFixture)),
		MimeType:     "application/pdf",
		OriginalName: "resume.pdf",
		UserID:       userID,
	})
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInsufficientCredits, apiErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsBadFile(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	_, err := s.Submit(context.Background(), &SubmitParams{
		FileData:     []byte("#!/bin/sh\necho pwned"),
		FileSize:     20,
		MimeType:     "application/x-sh",
		OriginalName: "exploit.sh",
	})
	require.Error(t, err)

	// Nothing was charged, stored, or queued.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSubmission(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	userID := gofakeit.UUID()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", "/uploads/1_cv.pdf", model.StatusCompleted))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE submissions`)).
		WithArgs(id, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(4))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, userID, "/uploads/1_cv.pdf", model.StatusCompleted))

	sub, err := s.ClaimSubmission(context.Background(), id, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, sub.UserID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSubmissionIdempotent(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	userID := gofakeit.UUID()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, userID, "/uploads/1_cv.pdf", model.StatusCompleted))

	sub, err := s.ClaimSubmission(context.Background(), id, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, sub.UserID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSubmissionOwnedByAnother(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "usr_owner", "/uploads/1_cv.pdf", model.StatusCompleted))

	_, err := s.ClaimSubmission(context.Background(), id, "usr_other")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrForbidden, apiErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmissionCachesCompleted(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "usr_1", "/uploads/1_cv.pdf", model.StatusCompleted))

	first, err := s.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, first.Status)

	// Second read is served from cache; no further query expected.
	second, err := s.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmissionInFlightSkipsCache(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", "/uploads/1_cv.pdf", model.StatusProcessing))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", "/uploads/1_cv.pdf", model.StatusCompleted))

	first, err := s.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, first.Status)

	second, err := s.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, second.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCustomizationMissingFile(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", "/uploads/long-gone.pdf", model.StatusCompleted))

	_, err := s.RequestCustomization(context.Background(), id, "", "job_desc", "Senior engineer role")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCustomizationUnknownMode(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	filePath, err := s.storage.Save("cv.pdf", pdfFixture)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", filePath, model.StatusCompleted))

	_, err = s.RequestCustomization(context.Background(), id, "", "weird_mode", "")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A job_desc round with no fresh description falls back to the job context
// the CV was uploaded with.
func TestRequestCustomizationJobDescUsesStoredContext(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	filePath, err := s.storage.Save("cv.pdf", pdfFixture)
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"submission_id", "user_id", "file_path", "file_hash", "status", "job_context", "original_data", "analysis_result", "ai_draft", "created_at", "updated_at"}).
		AddRow(id, "", filePath, "hash", model.StatusCompleted, []byte(`{"text":"Senior Backend Engineer"}`), nil, `{"score":80}`, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE submissions SET status = $2`)).
		WithArgs(id, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub, err := s.RequestCustomization(context.Background(), id, "", "job_desc", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sub.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// With neither a fresh description nor a stored job context there is nothing
// to customize against.
func TestRequestCustomizationJobDescWithoutAnyContext(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	filePath, err := s.storage.Save("cv.pdf", pdfFixture)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", filePath, model.StatusCompleted))

	_, err = s.RequestCustomization(context.Background(), id, "", "job_desc", "")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCustomizationEnqueues(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	filePath, err := s.storage.Save("cv.pdf", pdfFixture)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", filePath, model.StatusCompleted))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE submissions SET status = $2`)).
		WithArgs(id, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub, err := s.RequestCustomization(context.Background(), id, "", "analysis", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sub.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A second customize request while the first job is still queued is a no-op
// success: the in-flight job serves both, and the record is never failed.
func TestRequestCustomizationIdempotentWhileQueued(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	id := "cv_" + gofakeit.UUID()
	filePath, err := s.storage.Save("cv.pdf", pdfFixture)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
			WithArgs(id).
			WillReturnRows(submissionRows(id, "", filePath, model.StatusCompleted))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE submissions SET status = $2`)).
			WithArgs(id, model.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	first, err := s.RequestCustomization(context.Background(), id, "", "analysis", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, first.Status)

	second, err := s.RequestCustomization(context.Background(), id, "", "analysis", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, second.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUser(t *testing.T) {
	s, mock, _ := newTestSuperCV(t)

	userID := gofakeit.UUID()
	email := gofakeit.Email()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(userID, email, "Jane", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, email`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "name", "credits", "created_at"}).
			AddRow(userID, email, "Jane", 1, time.Now()))

	usr, err := s.SyncUser(context.Background(), &model.User{UserID: userID, Email: email, Name: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), usr.Credits)

	assert.NoError(t, mock.ExpectationsWereMet())
}

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
package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supercvhq/supercv"
	"github.com/supercvhq/supercv/api/middleware"
	"github.com/supercvhq/supercv/config"
	"github.com/supercvhq/supercv/database"
	"github.com/supercvhq/supercv/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(&s.Response); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis:    config.RedisConfig{Dns: mr.Addr()},
		Storage:  config.StorageConfig{UploadDir: t.TempDir()},
		AIEngine: config.AIEngineConfig{Url: "http://ai-engine.local", TimeoutSeconds: 5},
		Payment: config.PaymentConfig{
			ApiUrl:       "http://payments.local",
			ApiKey:       "test-api-key",
			WebhookToken: "test-webhook-token",
		},
		Queue: config.QueueConfig{
			AnalyzeQueue:   "cv_analyze_queue",
			CustomizeQueue: "cv_customize_queue",
			MaxRetries:     3,
		},
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc, err := supercv.NewSuperCV(database.Datasource{Conn: db})
	require.NoError(t, err)

	return NewAPI(svc).Router(), mock
}

func submissionRows(id, userID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"submission_id", "user_id", "file_path", "file_hash", "status", "job_context", "original_data", "analysis_result", "ai_draft", "created_at", "updated_at"}).
		AddRow(id, userID, "/uploads/1_cv.pdf", "hash", status, []byte(`{}`), nil, `{"score":75}`, nil, now, now)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	var response string
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/",
		Response: &response,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAnalyzeCV(t *testing.T) {
	router, mock := setupRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id FROM submissions WHERE file_hash = $1`)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO submissions`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "resume.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 test content"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("job_description", "Backend engineer"))
	require.NoError(t, writer.Close())

	var sub model.Submission
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/cv/analyze",
		Payload:  body,
		Response: &sub,
		Header:   map[string]string{"Content-Type": writer.FormDataContentType()},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Contains(t, sub.SubmissionID, "cv_")
	assert.Equal(t, model.StatusPending, sub.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyzeCVMissingFile(t *testing.T) {
	router, mock := setupRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("job_description", "Backend engineer"))
	require.NoError(t, writer.Close())

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/cv/analyze",
		Payload: body,
		Header:  map[string]string{"Content-Type": writer.FormDataContentType()},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCV(t *testing.T) {
	router, mock := setupRouter(t)

	id := "cv_" + gofakeit.UUID()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs(id).
		WillReturnRows(submissionRows(id, "", model.StatusCompleted))

	var sub model.Submission
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/cv/" + id,
		Response: &sub,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, id, sub.SubmissionID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCVNotFound(t *testing.T) {
	router, mock := setupRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT submission_id`)).
		WithArgs("cv_missing").
		WillReturnError(sql.ErrNoRows)

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/cv/cv_missing",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimCVRequiresAuth(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/cv/cv_123/claim",
		Payload: bytes.NewBufferString(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCustomizeCVRejectsBadMode(t *testing.T) {
	router, mock := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/cv/cv_123/customize",
		Payload: bytes.NewBufferString(`{"mode":"weird"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPackages(t *testing.T) {
	router, _ := setupRouter(t)

	var packages []model.CreditPackage
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/payments/packages",
		Response: &packages,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, packages)
}

func TestCheckoutRequiresAuth(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/payments/checkout",
		Payload: bytes.NewBufferString(`{"package_id":"value"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCheckoutUnknownPackage(t *testing.T) {
	router, mock := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/payments/checkout",
		Payload: bytes.NewBufferString(`{"package_id":"mega"}`),
		Header:  map[string]string{middleware.UserHeader: gofakeit.UUID()},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentWebhookInvalidSignature(t *testing.T) {
	router, mock := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/payments/webhook",
		Payload: bytes.NewBufferString(`{"event":"payment.received","data":{"id":"pay_1","status":"SUCCESS"}}`),
		Header:  map[string]string{webhookSignatureHeader: "bogus"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	router, mock := setupRouter(t)

	body := []byte(`{"event":"payment.expired","data":{"id":"pay_1","status":"EXPIRED"}}`)
	mac := hmac.New(sha256.New, []byte("test-webhook-token"))
	mac.Write(body)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/payments/webhook",
		Payload: bytes.NewBuffer(body),
		Header:  map[string]string{webhookSignatureHeader: hex.EncodeToString(mac.Sum(nil))},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUser(t *testing.T) {
	router, mock := setupRouter(t)

	userID := gofakeit.UUID()
	email := gofakeit.Email()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, email`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "name", "credits", "created_at"}).
			AddRow(userID, email, "Jane", 1, time.Now()))

	var usr model.User
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/auth/sync",
		Payload:  bytes.NewBufferString(`{"id":"` + userID + `","email":"` + email + `","name":"Jane"}`),
		Response: &usr,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), usr.Credits)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUserRejectsBadEmail(t *testing.T) {
	router, mock := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/auth/sync",
		Payload: bytes.NewBufferString(`{"id":"usr_1","email":"not-an-email"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

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

// Package aiengine wraps the external AI inference service as two blocking
// multipart HTTP calls, analyze and customize. Retries are handled by the
// queue system, so each call is a single attempt.
package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Customize modes. ModeAnalysis sends serialized analysis JSON as context,
// ModeJobDesc sends job-description text.
const (
	ModeAnalysis = "analysis"
	ModeJobDesc  = "job_desc"
)

// JobContext is the side-channel the caller supplied with the upload. At
// most one of Text and URL should be set.
type JobContext struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// AnalyzeResult is the engine's response to an analyze call. Both payloads
// are opaque to this service and stored as-is.
type AnalyzeResult struct {
	Analysis json.RawMessage `json:"analysis"`
	CvData   json.RawMessage `json:"cv_data"`
}

// ServiceError is the single typed failure for any transport error or
// non-success response from the engine.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("AI service unavailable (status %d): %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the inference engine. Construct once at
// startup and inject; it holds no per-call state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client with a generous timeout: the engine's worst-case
// latency is seconds, and tight client timeouts would fight the queue's own
// retry policy.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze sends the file for scoring against an optional job context.
//
// Parameters:
// - ctx: The context for the operation.
// - file: The raw document bytes.
// - filename: The filename sent in the multipart part.
// - jobCtx: Optional job-description text or URL (at most one set).
// - asOfDate: The date captured at enqueue time, threaded through so
//   date-sensitive engine behavior is stable per submission.
func (c *Client) Analyze(ctx context.Context, file []byte, filename string, jobCtx JobContext, asOfDate string) (*AnalyzeResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeFilePart(writer, filename, file); err != nil {
		return nil, err
	}
	if jobCtx.Text != "" {
		if err := writer.WriteField("job_description", jobCtx.Text); err != nil {
			return nil, err
		}
	} else if jobCtx.URL != "" {
		if err := writer.WriteField("job_url", jobCtx.URL); err != nil {
			return nil, err
		}
	}
	if asOfDate != "" {
		if err := writer.WriteField("current_date", asOfDate); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	logrus.Infof("[AI] Sending analyze request to %s", c.baseURL)

	var result AnalyzeResult
	if err := c.post(ctx, "/api/analyze", writer.FormDataContentType(), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Customize sends the file for an AI-drafted rewrite. mode selects whether
// contextData is serialized analysis JSON (ModeAnalysis) or job-description
// text (ModeJobDesc).
func (c *Client) Customize(ctx context.Context, file []byte, filename, mode, contextData, asOfDate string) (json.RawMessage, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeFilePart(writer, filename, file); err != nil {
		return nil, err
	}
	if err := writer.WriteField("mode", mode); err != nil {
		return nil, err
	}

	switch mode {
	case ModeAnalysis:
		if err := writer.WriteField("analysis_context", contextData); err != nil {
			return nil, err
		}
	default:
		if err := writer.WriteField("job_description", contextData); err != nil {
			return nil, err
		}
	}
	if asOfDate != "" {
		if err := writer.WriteField("current_date", asOfDate); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	logrus.Infof("[AI] Sending customize request (mode: %s)", mode)

	var draft json.RawMessage
	if err := c.post(ctx, "/api/customize", writer.FormDataContentType(), body, &draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func writeFilePart(writer *multipart.Writer, filename string, file []byte) error {
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = part.Write(file)
	return err
}

// post performs a single multipart POST and decodes the JSON response. Any
// transport failure or non-2xx status becomes a ServiceError.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServiceError{StatusCode: resp.StatusCode, Message: upstreamMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decoding engine response: %v", err)}
	}
	return nil
}

// upstreamMessage pulls the engine's error detail out of the response body,
// falling back to the raw text.
func upstreamMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "AI Service Unavailable"
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(raw)
}

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

package model

import (
	"encoding/json"
	"time"
)

// Submission statuses. A fresh customize request re-enters the machine at
// StatusPending on an already-terminal record.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Job kinds carried on the queue.
const (
	JobAnalyze   = "cv:analyze"
	JobCustomize = "cv:customize"
)

// JobContext is the caller-supplied side channel for an analysis: free text
// or a URL, at most one set.
type JobContext struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Submission is the durable record of one uploaded document's processing
// lifecycle. UserID is nullable: anonymous uploads may be claimed later,
// exactly once.
type Submission struct {
	SubmissionID   string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	FilePath       string          `json:"-"`
	FileHash       string          `json:"-"`
	Status         string          `json:"status"`
	JobContext     JobContext      `json:"job_context,omitempty"`
	OriginalData   json.RawMessage `json:"original_data,omitempty"`
	AnalysisResult json.RawMessage `json:"analysis_result,omitempty"`
	AiDraft        json.RawMessage `json:"ai_draft,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s *Submission) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// AnalyzePayload is the analyze job's queue message. The submission record
// is the durable source of truth; this payload is only a delivery vehicle.
type AnalyzePayload struct {
	SubmissionID string     `json:"submission_id"`
	FilePath     string     `json:"file_path"`
	Filename     string     `json:"filename"`
	JobContext   JobContext `json:"job_context"`
	AsOfDate     string     `json:"as_of_date"`
}

// CustomizePayload is the customize job's queue message. Mode selects how
// ContextData is interpreted by the engine.
type CustomizePayload struct {
	SubmissionID string `json:"submission_id"`
	FilePath     string `json:"file_path"`
	Filename     string `json:"filename"`
	Mode         string `json:"mode"`
	ContextData  string `json:"context_data"`
	AsOfDate     string `json:"as_of_date"`
}

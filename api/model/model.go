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
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/supercvhq/supercv/internal/aiengine"
	"github.com/supercvhq/supercv/model"
)

// AnalyzeRequest carries the non-file fields of the multipart analyze
// upload. The file itself is read from the form directly.
type AnalyzeRequest struct {
	JobDescription string `form:"job_description"`
	JobURL         string `form:"job_url"`
}

func (r *AnalyzeRequest) ValidateAnalyzeRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.JobURL, is.URL),
		validation.Field(&r.JobDescription, validation.By(func(interface{}) error {
			if r.JobDescription != "" && r.JobURL != "" {
				return errors.New("provide either job_description or job_url, not both")
			}
			return nil
		})),
	)
}

func (r *AnalyzeRequest) ToJobContext() model.JobContext {
	return model.JobContext{Text: r.JobDescription, URL: r.JobURL}
}

// CustomizeRequest asks for a tailored draft of an analyzed CV. The
// job_description is optional even in job_desc mode: when absent, the job
// context stored at upload time is reused.
type CustomizeRequest struct {
	Mode           string `json:"mode"`
	JobDescription string `json:"job_description"`
}

func (r *CustomizeRequest) ValidateCustomizeRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Mode, validation.Required, validation.In(aiengine.ModeAnalysis, aiengine.ModeJobDesc)),
	)
}

// CheckoutRequest opens a payment for a credit package.
type CheckoutRequest struct {
	PackageID string `json:"package_id"`
}

func (r *CheckoutRequest) ValidateCheckoutRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PackageID, validation.Required),
	)
}

// SyncUserRequest upserts an account from the identity provider.
type SyncUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (r *SyncUserRequest) ValidateSyncUserRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

func (r *SyncUserRequest) ToUser() *model.User {
	return &model.User{UserID: r.ID, Email: r.Email, Name: r.Name}
}

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
	"encoding/json"

	"github.com/supercvhq/supercv/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	submission // Submission record store
	user       // User credit accounts
	payment    // Credit transactions
}

// submission defines methods for the submission state machine's persistence.
type submission interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) (*model.Submission, error)                       // Creates a new submission in PENDING
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)                                      // Retrieves a submission by ID
	UpdateSubmissionStatus(ctx context.Context, id string, status string) error                                   // Moves a submission to a new status
	CompleteAnalyze(ctx context.Context, id string, analysis, originalData json.RawMessage) error                 // Writes analyze results and COMPLETED in one statement
	CompleteCustomize(ctx context.Context, id string, draft json.RawMessage) error                                // Writes the AI draft and COMPLETED in one statement
	ClaimSubmission(ctx context.Context, id string, userID string) (*model.Submission, error)                     // Atomically assigns ownership and charges one credit
	FindSubmissionByFileHash(ctx context.Context, hash string) (string, error)                                    // Returns the id of an identical prior upload, if any
	GetUserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error)                 // Retrieves a user's recent submissions
}

// user defines methods for the credit ledger.
type user interface {
	CreateUser(ctx context.Context, usr *model.User) (*model.User, error)    // Upserts a user account
	GetUser(ctx context.Context, id string) (*model.User, error)             // Retrieves a user by ID
	ChargeCredit(ctx context.Context, userID string) (int64, error)          // Atomic conditional decrement of one credit
}

// payment defines methods for credit transactions.
type payment interface {
	CreateTransaction(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) // Creates a PENDING transaction
	GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error)                       // Retrieves a transaction by ID
	GetTransactionByProviderPaymentID(ctx context.Context, providerID string) (*model.CreditTransaction, error)
	AttachProviderPaymentID(ctx context.Context, id string, providerID string) error            // Records the provider's payment id after checkout
	CompleteTransactionAndCredit(ctx context.Context, id string) (int64, bool, error)           // PENDING→COMPLETED plus credit grant in one transaction
	GetUserTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
}

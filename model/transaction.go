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

// Credit transaction statuses. PENDING → COMPLETED happens at most once per
// transaction; the transaction id is the idempotency key.
const (
	TransactionPending   = "PENDING"
	TransactionCompleted = "COMPLETED"
)

// CreditTransaction is a payment intent and ledger entry. ProviderPaymentID
// stays empty until the payment provider acknowledges the checkout.
type CreditTransaction struct {
	TransactionID     string    `json:"id"`
	UserID            string    `json:"user_id"`
	Credits           int64     `json:"credits"`
	PriceIdr          int64     `json:"price_idr"`
	Status            string    `json:"status"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func (t *CreditTransaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// CreditPackage is a purchasable credit bundle.
type CreditPackage struct {
	ID       string `json:"id"`
	Credits  int64  `json:"credits"`
	PriceIdr int64  `json:"price_idr"`
	Label    string `json:"label"`
}

// CreditPackages is the fixed catalogue offered at checkout.
var CreditPackages = []CreditPackage{
	{ID: "starter", Credits: 1, PriceIdr: 15000, Label: "Starter"},
	{ID: "value", Credits: 5, PriceIdr: 60000, Label: "Value Pack"},
	{ID: "pro", Credits: 12, PriceIdr: 120000, Label: "Pro Pack"},
}

// FindCreditPackage returns the package with the given id, or nil.
func FindCreditPackage(id string) *CreditPackage {
	for i := range CreditPackages {
		if CreditPackages[i].ID == id {
			return &CreditPackages[i]
		}
	}
	return nil
}

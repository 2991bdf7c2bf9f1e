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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/supercvhq/supercv/config"
	"github.com/supercvhq/supercv/internal/apierror"
	redlock "github.com/supercvhq/supercv/internal/lock"
	"github.com/supercvhq/supercv/internal/notification"
	"github.com/supercvhq/supercv/internal/request"
	"github.com/supercvhq/supercv/model"
)

// Checkout is the result of CreateCheckout: a pending transaction and the
// provider's hosted payment page.
type Checkout struct {
	Transaction *model.CreditTransaction `json:"transaction"`
	PaymentURL  string                   `json:"payment_url"`
}

type providerCheckoutRequest struct {
	Name        string                 `json:"name"`
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Description string                 `json:"description"`
	RedirectURL string                 `json:"redirectUrl,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type providerCheckoutResponse struct {
	StatusCode int `json:"statusCode"`
	Data       struct {
		ID   string `json:"id"`
		Link string `json:"link"`
	} `json:"data"`
	Messages string `json:"messages"`
}

// webhookEvent is the provider's notification payload. Metadata carries our
// transaction id back to us for providers that omit it from the top level.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Metadata struct {
			TransactionID string `json:"transactionId"`
		} `json:"metadata"`
	} `json:"data"`
}

// GetPackages returns the purchasable credit bundles.
func (s *SuperCV) GetPackages() []model.CreditPackage {
	return model.CreditPackages
}

// CreateCheckout opens a payment for a credit package. The PENDING
// transaction is recorded before the provider is called, so a webhook that
// races the checkout response always finds a row to complete. The provider
// call is retried with exponential backoff; our transaction id rides along
// in metadata as a correlation fallback.
func (s *SuperCV) CreateCheckout(ctx context.Context, userID string, packageID string) (*Checkout, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	pkg := model.FindCreditPackage(packageID)
	if pkg == nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown credit package '%s'", packageID), nil)
	}

	usr, err := s.datasource.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	txn, err := s.datasource.CreateTransaction(ctx, &model.CreditTransaction{
		UserID:   usr.UserID,
		Credits:  pkg.Credits,
		PriceIdr: pkg.PriceIdr,
	})
	if err != nil {
		return nil, err
	}

	payload := providerCheckoutRequest{
		Name:        usr.Name,
		Email:       usr.Email,
		Amount:      pkg.PriceIdr,
		Description: fmt.Sprintf("%s (%d credits)", pkg.Label, pkg.Credits),
		RedirectURL: cfg.Payment.FrontendUrl,
		Metadata:    map[string]interface{}{"transactionId": txn.TransactionID},
	}

	var resp providerCheckoutResponse
	operation := func() error {
		body, err := request.ToJsonReq(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/payment/create", cfg.Payment.ApiUrl), body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+cfg.Payment.ApiKey)

		httpResp, err := request.Call(req, &resp)
		if err != nil {
			return err
		}
		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("payment provider returned %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("payment provider rejected checkout: %d %s", httpResp.StatusCode, resp.Messages))
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		notification.NotifyError(fmt.Errorf("checkout failed for transaction %s: %w", txn.TransactionID, err))
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create payment", err)
	}

	if resp.Data.ID != "" {
		if err := s.datasource.AttachProviderPaymentID(ctx, txn.TransactionID, resp.Data.ID); err != nil {
			return nil, err
		}
		txn.ProviderPaymentID = resp.Data.ID
	}

	return &Checkout{Transaction: txn, PaymentURL: resp.Data.Link}, nil
}

// GetUserTransactions lists a user's recent credit transactions.
func (s *SuperCV) GetUserTransactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	return s.datasource.GetUserTransactions(ctx, userID, 20)
}

// HandleWebhook processes a payment provider notification. The signature is
// verified over the raw body; when a webhook token is configured, an absent
// or wrong signature is rejected outright. Crediting is exactly-once: the
// conditional status flip in the store is the authority, and a Redis lock
// keeps concurrent deliveries from even reaching it together.
//
// Returns whether this delivery performed the credit. Unknown payments are
// reported as not-credited without error so the provider stops redelivering.
func (s *SuperCV) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (bool, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return false, err
	}

	if cfg.Payment.WebhookToken != "" {
		if !verifyWebhookSignature(rawBody, signature, cfg.Payment.WebhookToken) {
			return false, apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid webhook signature", nil)
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return false, apierror.NewAPIError(apierror.ErrBadRequest, "Malformed webhook payload", err)
	}

	if !isSuccessfulPayment(event) {
		logrus.Infof("ignoring webhook event %q with status %q", event.Event, event.Data.Status)
		return false, nil
	}

	txn, err := s.resolveTransaction(ctx, event)
	if err != nil {
		return false, err
	}
	if txn == nil {
		logrus.Warnf("webhook for unknown payment %q acknowledged without crediting", event.Data.ID)
		return false, nil
	}

	locker := redlock.NewLocker(s.redis, fmt.Sprintf("webhook:%s", txn.TransactionID), model.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, 30*time.Second, 5*time.Second); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire payment lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}()

	credits, credited, err := s.datasource.CompleteTransactionAndCredit(ctx, txn.TransactionID)
	if err != nil {
		return false, err
	}
	if !credited {
		logrus.Infof("transaction %s already processed, webhook replay ignored", txn.TransactionID)
		return false, nil
	}

	logrus.Infof("credited %d credits to user %s for transaction %s", credits, txn.UserID, txn.TransactionID)
	return true, nil
}

// resolveTransaction finds the transaction a webhook refers to: first by the
// provider's payment id, then by the transaction id echoed in metadata. A nil
// result with nil error means the payment is not ours.
func (s *SuperCV) resolveTransaction(ctx context.Context, event webhookEvent) (*model.CreditTransaction, error) {
	if event.Data.ID != "" {
		txn, err := s.datasource.GetTransactionByProviderPaymentID(ctx, event.Data.ID)
		if err == nil {
			return txn, nil
		}
		if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
			return nil, err
		}
	}

	if event.Data.Metadata.TransactionID != "" {
		txn, err := s.datasource.GetTransaction(ctx, event.Data.Metadata.TransactionID)
		if err == nil {
			return txn, nil
		}
		if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
			return nil, err
		}
	}

	return nil, nil
}

func isSuccessfulPayment(event webhookEvent) bool {
	switch event.Event {
	case "payment.received", "payment.success":
		return true
	}
	return event.Data.Status == "SUCCESS" || event.Data.Status == "paid"
}

func verifyWebhookSignature(rawBody []byte, signature string, token string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

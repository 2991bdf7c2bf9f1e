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
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/supercvhq/supercv/internal/apierror"
	"github.com/supercvhq/supercv/model"
)

// CreateTransaction persists a new PENDING credit transaction.
func (d Datasource) CreateTransaction(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	if txn.TransactionID == "" {
		txn.TransactionID = model.GenerateUUIDWithSuffix("txn")
	}
	txn.Status = model.TransactionPending
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO credit_transactions (transaction_id, user_id, credits, price_idr, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, txn.TransactionID, txn.UserID, txn.Credits, txn.PriceIdr, txn.Status, txn.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Transaction already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create transaction", err)
	}

	return txn, nil
}

// GetTransaction retrieves a credit transaction by ID.
func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	return d.getTransactionBy(ctx, "transaction_id", id)
}

// GetTransactionByProviderPaymentID retrieves a credit transaction by the
// payment provider's id.
func (d Datasource) GetTransactionByProviderPaymentID(ctx context.Context, providerID string) (*model.CreditTransaction, error) {
	return d.getTransactionBy(ctx, "provider_payment_id", providerID)
}

func (d Datasource) getTransactionBy(ctx context.Context, column, value string) (*model.CreditTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT transaction_id, user_id, credits, price_idr, status, COALESCE(provider_payment_id, ''), created_at
		FROM credit_transactions
		WHERE %s = $1
	`, column), value)

	txn := &model.CreditTransaction{}
	err := row.Scan(&txn.TransactionID, &txn.UserID, &txn.Credits, &txn.PriceIdr, &txn.Status, &txn.ProviderPaymentID, &txn.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with %s '%s' not found", column, value), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}

	return txn, nil
}

// AttachProviderPaymentID records the provider's payment id once the
// checkout call is acknowledged.
func (d Datasource) AttachProviderPaymentID(ctx context.Context, id string, providerID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE credit_transactions SET provider_payment_id = $2 WHERE transaction_id = $1
	`, id, providerID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to attach provider payment id", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
	}
	return nil
}

// CompleteTransactionAndCredit finalizes a payment: the PENDING→COMPLETED
// transition and the credit grant commit together or not at all. The status
// predicate makes the operation idempotent; a replayed webhook matches zero
// rows and reports credited=false without touching the balance.
//
// Returns:
// - int64: The credits granted (0 when already completed).
// - bool: Whether this call performed the grant.
// - error: An error if the transaction is unknown or the store fails.
func (d Datasource) CompleteTransactionAndCredit(ctx context.Context, id string) (int64, bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin payment transaction", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logrus.Error(err)
		}
	}()

	var userID string
	var credits int64
	err = tx.QueryRowContext(ctx, `
		UPDATE credit_transactions
		SET status = $2
		WHERE transaction_id = $1 AND status = $3
		RETURNING user_id, credits
	`, id, model.TransactionCompleted, model.TransactionPending).Scan(&userID, &credits)
	if err != nil {
		if err == sql.ErrNoRows {
			// Already completed, or unknown. Distinguish for the caller.
			var exists bool
			checkErr := d.Conn.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM credit_transactions WHERE transaction_id = $1)`, id).Scan(&exists)
			if checkErr != nil {
				return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete transaction", checkErr)
			}
			if !exists {
				return 0, false, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
			}
			return 0, false, nil
		}
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET credits = credits + $2 WHERE user_id = $1
	`, userID, credits)
	if err != nil {
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to credit user", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payment", err)
	}

	return credits, true, nil
}

// GetUserTransactions retrieves a user's most recent credit transactions.
func (d Datasource) GetUserTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id, user_id, credits, price_idr, status, COALESCE(provider_payment_id, ''), created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	var txns []model.CreditTransaction
	for rows.Next() {
		txn := model.CreditTransaction{}
		err := rows.Scan(&txn.TransactionID, &txn.UserID, &txn.Credits, &txn.PriceIdr, &txn.Status, &txn.ProviderPaymentID, &txn.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

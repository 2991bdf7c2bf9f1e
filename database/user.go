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

	"github.com/supercvhq/supercv/internal/apierror"
	"github.com/supercvhq/supercv/model"
)

// CreateUser upserts a user account keyed by external identity. Existing
// accounts keep their credit balance; only email and name are refreshed.
func (d Datasource) CreateUser(ctx context.Context, usr *model.User) (*model.User, error) {
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO users (user_id, email, name, credits, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
	`, usr.UserID, usr.Email, usr.Name, usr.Credits, usr.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "User with this email already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create user", err)
	}

	return usr, nil
}

// GetUser retrieves a user account by ID.
func (d Datasource) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT user_id, email, COALESCE(name, ''), credits, created_at
		FROM users
		WHERE user_id = $1
	`, id)

	usr := &model.User{}
	err := row.Scan(&usr.UserID, &usr.Email, &usr.Name, &usr.Credits, &usr.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user", err)
	}

	return usr, nil
}

// ChargeCredit debits one credit as a single conditional update. Two
// concurrent charges against a balance of one can never both succeed: the
// row predicate, not a read-then-write pair, decides the winner.
func (d Datasource) ChargeCredit(ctx context.Context, userID string) (int64, error) {
	var newBalance int64
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits - 1
		WHERE user_id = $1 AND credits > 0
		RETURNING credits
	`, userID).Scan(&newBalance)
	if err != nil {
		if err == sql.ErrNoRows {
			// No row matched: either the user is unknown or out of credits.
			var exists bool
			checkErr := d.Conn.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
			if checkErr != nil {
				return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to charge credit", checkErr)
			}
			if !exists {
				return 0, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with ID '%s' not found", userID), err)
			}
			return 0, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Insufficient credits", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to charge credit", err)
	}

	return newBalance, nil
}

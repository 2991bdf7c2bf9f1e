package model

import "time"

// User is a credit account holder. Credits never go negative; every
// decrement happens as an atomic conditional update in the database layer.
type User struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// Package customer provides customer accounts for the Trunggian platform.
package customer

import (
	"errors"
	"time"
)

// Errors
var (
	ErrCustomerNotFound = errors.New("customer: not found")
	ErrUsernameTaken    = errors.New("customer: username already taken")
)

// Customer represents a registered marketplace user. Both sides of an
// escrow transaction are customers; there is no separate merchant type.
type Customer struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

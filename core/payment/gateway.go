package payment

import (
	"context"

	"github.com/pkg/errors"
)

// TransactionStatus is the normalized status of a gateway transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusDeclined TransactionStatus = "declined"
	StatusCanceled TransactionStatus = "canceled"
	StatusFailed   TransactionStatus = "failed"
)

// Terminal reports whether the status will no longer change on the provider side.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// Metadata is the versioned correlation record attached to every outbound
// transaction so that inbound webhooks resolve to our entities by a typed
// lookup instead of optional-field guessing.
type Metadata struct {
	Version        int    `json:"version"`
	SessionID      string `json:"session_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

const MetadataVersion = 1

type Customer struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
}

// NewTransaction contains information needed to create a gateway transaction.
type NewTransaction struct {
	Amount      int64
	Currency    string
	Description string
	Customer    Customer
	Metadata    Metadata
	CallbackURL string
}

// Transaction is a normalized snapshot of a gateway transaction.
type Transaction struct {
	ID         string
	Reference  string
	Status     TransactionStatus
	Amount     int64
	Currency   string
	PaymentURL string
	Metadata   Metadata
}

// Gateway wraps the external payment provider. Implementations perform no
// retries; retry policy belongs to the caller.
type Gateway interface {
	CreateTransaction(ctx context.Context, nt NewTransaction) (Transaction, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	VerifySignature(payload []byte, signature string) bool
	// ParseWebhook returns (nil, nil) when the signature is invalid or the
	// event is not a transaction-status event; both are silently ignorable.
	ParseWebhook(payload []byte, signature string) (*Transaction, error)
}

// GatewayError wraps network/HTTP failures from the provider so callers can
// surface a generic "payment service unavailable" instead of raw provider errors.
type GatewayError struct {
	Err error
}

func NewGatewayError(err error) error { return &GatewayError{Err: err} }

func (e GatewayError) Error() string {
	if e.Err == nil {
		return "payment gateway error"
	}
	return e.Err.Error()
}

func IsGatewayError(err error) bool {
	_, ok := errors.Cause(err).(*GatewayError)
	return ok
}

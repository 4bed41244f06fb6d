package registration

import (
	"time"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
)

// SessionStatus is the state of a registration session. The happy path is
// pending -> info_submitted -> payment_initiated -> completed; cancelled is
// reachable from any non-completed state. Expiry is lazy: a session whose
// ExpiresAt has passed is treated as not found for writes.
type SessionStatus string

const (
	StatusPending          SessionStatus = "pending"
	StatusInfoSubmitted    SessionStatus = "info_submitted"
	StatusPaymentInitiated SessionStatus = "payment_initiated"
	// StatusFinalizing is the short-lived claim taken by Finalize so a
	// concurrent double-invocation cannot create duplicate rows.
	StatusFinalizing SessionStatus = "finalizing"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

type (
	PromoterDraft struct {
		Email         string `json:"email"`
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		Phone         string `json:"phone,omitempty"`
		EmailVerified bool   `json:"email_verified"`
	}

	SchoolDraft struct {
		Name      string `json:"name"`
		Subdomain string `json:"subdomain"`
		Address   string `json:"address,omitempty"`
		City      string `json:"city,omitempty"`
		Country   string `json:"country,omitempty"`
		Phone     string `json:"phone,omitempty"`
	}

	PaymentInfo struct {
		TransactionID string                    `json:"transaction_id,omitempty"`
		PaymentURL    string                    `json:"payment_url,omitempty"`
		Status        payment.TransactionStatus `json:"status,omitempty"`
	}

	// Result holds the ids created at finalization; kept on the session so
	// re-invoking Finalize returns the same ids without creating duplicates.
	Result struct {
		TenantID       string `json:"school_id"`
		PromoterID     string `json:"promoter_id"`
		SubscriptionID string `json:"subscription_id"`
	}

	// Session is the server-side registration state; clients hold only its
	// opaque id.
	Session struct {
		ID        string        `json:"id"`
		Status    SessionStatus `json:"status"`
		Promoter  PromoterDraft `json:"promoter"`
		School    SchoolDraft   `json:"school"`
		PlanID    string        `json:"plan_id,omitempty"`
		Payment   PaymentInfo   `json:"payment"`
		Result    *Result       `json:"result,omitempty"`
		CreatedAt time.Time     `json:"created_at"` // UTC
		ExpiresAt time.Time     `json:"expires_at"` // UTC; fixed TTL from creation
	}
)

func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Step1Input carries the promoter and school drafts for the first step.
type Step1Input struct {
	School struct {
		Name      string `json:"name" validate:"required"`
		Subdomain string `json:"subdomain" validate:"required,min=3,max=63,subdomain"`
		Address   string `json:"address"`
		City      string `json:"city"`
		Country   string `json:"country"`
		Phone     string `json:"phone"`
	} `json:"school"`
	Promoter struct {
		Email     string `json:"email" validate:"required,email"`
		FirstName string `json:"first_name" validate:"required"`
		LastName  string `json:"last_name" validate:"required"`
		Phone     string `json:"phone"`
	} `json:"promoter"`
}

func (in *Step1Input) Validate() error {
	in.School.Name = core.CleanString(in.School.Name)
	in.School.Subdomain = core.CleanString(in.School.Subdomain, true /* lower */)
	in.Promoter.Email = core.CleanString(in.Promoter.Email, true /* lower */)
	in.Promoter.FirstName = core.CleanString(in.Promoter.FirstName)
	in.Promoter.LastName = core.CleanString(in.Promoter.LastName)
	return core.Validate.Struct(in)
}

// PaymentOutcome is the polled client-facing view of a gateway transaction.
type PaymentOutcome string

const (
	PaymentCompleted PaymentOutcome = "completed"
	PaymentPending   PaymentOutcome = "pending"
	PaymentFailed    PaymentOutcome = "failed"
)

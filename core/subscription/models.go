package subscription

import (
	"time"

	"github.com/academiahub/backend/core/payment"
)

// BillingCycle determines how far a paid period extends from its start.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleAnnual    BillingCycle = "annual"
)

// Plan is a billable offering. The catalog is seeded, not user-editable.
type Plan struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Amount       int64        `json:"amount"` // smallest currency unit (XOF has none)
	Currency     string       `json:"currency"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	TrialDays    int          `json:"trial_days"`
	MaxStudents  int          `json:"max_students"`
}

// PeriodEnd computes the end of a billing period starting at `from`.
func (p Plan) PeriodEnd(from time.Time) time.Time {
	switch p.BillingCycle {
	case CycleQuarterly:
		return from.AddDate(0, 3, 0)
	case CycleAnnual:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Status is the lifecycle status of a subscription.
type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusTrial         Status = "trial"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
)

// Subscription entitles a tenant to the platform under a plan. At most one
// subscription per tenant is ACTIVE or TRIAL at a time. After creation,
// Status and EndDate are mutated only through the gateway-event path.
type Subscription struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"school_id"`
	PlanID      string    `json:"plan_id"`
	Status      Status    `json:"status"`
	StartDate   time.Time `json:"start_date"` // UTC
	EndDate     time.Time `json:"end_date"`   // UTC
	TrialEndsAt time.Time `json:"trial_ends_at"`
	// LastTransactionID is the external (gateway) id of the latest
	// transaction applied to this subscription.
	LastTransactionID string `json:"last_transaction_id"`
	AutoRenew         bool   `json:"auto_renew"`
	// LastReminderDays is the days-left mark of the latest expiry reminder
	// sent for the current period (0 when none); it keeps job reruns from
	// repeating a reminder. Reset when an approved payment extends the period.
	LastReminderDays int       `json:"last_reminder_days"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

func (s *Subscription) IsCurrent(now time.Time) bool {
	if s.Status != StatusActive && s.Status != StatusTrial {
		return false
	}
	return s.EndDate.After(now)
}

// TransactionType classifies what a payment was for.
type TransactionType string

const (
	TypeSubscription TransactionType = "subscription"
	TypeRenewal      TransactionType = "renewal"
	TypeAddon        TransactionType = "addon"
	TypeRefund       TransactionType = "refund"
)

// Transaction is our record of a gateway transaction. ExternalID never
// changes and is the deduplication key for webhook delivery; Status is
// updated in place as gateway events arrive.
type Transaction struct {
	ID             string                    `json:"id"`
	SubscriptionID string                    `json:"subscription_id"`
	ExternalID     string                    `json:"external_id"` // unique
	Amount         int64                     `json:"amount"`
	Status         payment.TransactionStatus `json:"status"`
	Type           TransactionType           `json:"type"`
	Metadata       payment.Metadata          `json:"metadata"`
	CreatedAt      time.Time                 `json:"created_at"` // UTC
	UpdatedAt      time.Time                 `json:"updated_at"` // UTC
}

// NewSubscription contains information needed to create a Subscription.
type NewSubscription struct {
	TenantID      string
	PlanID        string
	TransactionID string // external gateway id; empty for pending/trial
	TrialDays     int
	AutoRenew     bool
}

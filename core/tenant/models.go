package tenant

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a tenant school.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPendingKYC     Status = "pending_kyc"
	StatusActive         Status = "active"
	StatusSuspended      Status = "suspended"
	StatusExpired        Status = "expired"
)

// KYCStatus is the verification status of a tenant's KYC document set.
type KYCStatus string

const (
	KYCNotSubmitted KYCStatus = "not_submitted"
	KYCPending      KYCStatus = "pending"
	KYCVerified     KYCStatus = "verified"
	KYCRejected     KYCStatus = "rejected"
)

// Tenant is a school on the platform. Never hard-deleted; lifecycle is
// expressed through Status only. Status and KYCStatus are correlated:
// StatusActive implies KYCVerified.
type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"` // globally unique, immutable once set

	Status    Status    `json:"status"`
	KYCStatus KYCStatus `json:"kyc_status"`

	// PaymentStatus is a denormalized cache of the authoritative
	// Subscription.Status, written only by the subscription lifecycle.
	PaymentStatus string `json:"payment_status"`

	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Phone   string `json:"phone"`

	Settings map[string]string `json:"settings,omitempty"`

	KYCSubmittedAt     time.Time `json:"kyc_submitted_at"` // UTC; zero if never submitted
	KYCVerifiedAt      time.Time `json:"kyc_verified_at"`  // UTC; zero if not verified
	KYCRejectionReason string    `json:"kyc_rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (t *Tenant) IsActive() bool      { return t.Status == StatusActive }
func (t *Tenant) IsKYCVerified() bool { return t.KYCStatus == KYCVerified }

// SubdomainFromHost extracts the tenant subdomain from a request hostname.
// The bare base domain, "www" and "localhost" resolve to no tenant.
func SubdomainFromHost(host, baseDomain string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(host)
	if host == "" || host == "localhost" || host == baseDomain {
		return ""
	}
	sub := strings.TrimSuffix(host, "."+baseDomain)
	if sub == host { // not under our base domain
		return ""
	}
	if sub == "www" {
		return ""
	}
	return sub
}

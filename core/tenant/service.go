package tenant

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound        = errors.New("school not found")
	ErrSubdomainExists = errors.New("a school with this subdomain already exists")
)

type (
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		GetTenantByID(ctx context.Context, id string) (Tenant, error)
		GetTenantBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
		CheckSubdomainUniqueness(ctx context.Context, subdomain string) error
		// UpdateTenantKYC persists Status, KYCStatus and the KYC timestamp/reason fields.
		UpdateTenantKYC(ctx context.Context, t Tenant) (Tenant, error)
		SetTenantPaymentStatus(ctx context.Context, id, status string) error
	}

	// SubscriptionChecker reports whether a tenant currently holds an
	// ACTIVE or TRIAL subscription. Implemented by the subscription service.
	SubscriptionChecker interface {
		TenantHasActiveSubscription(ctx context.Context, tenantID string) (bool, error)
	}

	Service struct {
		repo       Repository
		subChecker SubscriptionChecker
		baseDomain string
	}
)

func NewService(repo Repository, subChecker SubscriptionChecker, baseDomain string) *Service {
	return &Service{repo: repo, subChecker: subChecker, baseDomain: baseDomain}
}

func (svc *Service) ResolveByID(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenantByID(ctx, id)
}

func (svc *Service) ResolveBySubdomain(ctx context.Context, subdomain string) (Tenant, error) {
	return svc.repo.GetTenantBySubdomain(ctx, subdomain)
}

// ResolveHost resolves a request hostname to its tenant, or to no tenant (nil)
// for the bare base domain, "www" and "localhost".
func (svc *Service) ResolveHost(ctx context.Context, host string) (*Tenant, error) {
	sub := SubdomainFromHost(host, svc.baseDomain)
	if sub == "" {
		return nil, nil
	}
	t, err := svc.repo.GetTenantBySubdomain(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (svc *Service) HasActiveSubscription(ctx context.Context, t Tenant) (bool, error) {
	return svc.subChecker.TenantHasActiveSubscription(ctx, t.ID)
}

// IsSubdomainAvailable is advisory only; real uniqueness is enforced by the
// storage layer's constraint at write time.
func (svc *Service) IsSubdomainAvailable(ctx context.Context, subdomain string) (bool, error) {
	err := svc.repo.CheckSubdomainUniqueness(ctx, subdomain)
	if err == ErrSubdomainExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

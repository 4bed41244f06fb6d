package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/academiahub/backend/core/tenant"
)

type tenantRepository struct {
	db *tenantTable
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) *tenantRepository {
	return &tenantRepository{db: db.tenant}
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, row := range repo.db.table {
		if row.Subdomain == t.Subdomain {
			return tenant.Tenant{}, tenant.ErrSubdomainExists
		}
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	repo.db.table[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) GetTenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.table {
		if t.Subdomain == subdomain {
			return *t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) CheckSubdomainUniqueness(ctx context.Context, subdomain string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.table {
		if t.Subdomain == subdomain {
			return tenant.ErrSubdomainExists
		}
	}
	return nil
}

func (repo *tenantRepository) UpdateTenantKYC(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.table[t.ID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	row.Status = t.Status
	row.KYCStatus = t.KYCStatus
	row.KYCSubmittedAt = t.KYCSubmittedAt
	row.KYCVerifiedAt = t.KYCVerifiedAt
	row.KYCRejectionReason = t.KYCRejectionReason
	row.UpdatedAt = time.Now().UTC()
	return *row, nil
}

func (repo *tenantRepository) SetTenantPaymentStatus(ctx context.Context, id, status string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.table[id]
	if !ok {
		return tenant.ErrNotFound
	}
	row.PaymentStatus = status
	row.UpdatedAt = time.Now().UTC()
	return nil
}

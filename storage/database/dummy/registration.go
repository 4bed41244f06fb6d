package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/academiahub/backend/core/registration"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type registrationRepository struct {
	db *DB
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db *DB) *registrationRepository {
	return &registrationRepository{db: db}
}

// CreateSchoolAccount mirrors the transactional Postgres implementation:
// either all four rows land or none do.
func (repo *registrationRepository) CreateSchoolAccount(
	ctx context.Context,
	t tenant.Tenant,
	usr user.User,
	sub subscription.Subscription,
	txn subscription.Transaction,
) (tenant.Tenant, user.User, subscription.Subscription, error) {
	repo.db.tenant.Lock()
	defer repo.db.tenant.Unlock()
	repo.db.user.Lock()
	defer repo.db.user.Unlock()
	repo.db.subscription.Lock()
	defer repo.db.subscription.Unlock()
	repo.db.transaction.Lock()
	defer repo.db.transaction.Unlock()

	for _, row := range repo.db.tenant.table {
		if row.Subdomain == t.Subdomain {
			return tenant.Tenant{}, user.User{}, subscription.Subscription{}, tenant.ErrSubdomainExists
		}
	}
	for _, row := range repo.db.user.table {
		if row.Email == usr.Email {
			return tenant.Tenant{}, user.User{}, subscription.Subscription{}, user.ErrEmailExists
		}
	}
	if _, ok := repo.db.transaction.table[txn.ExternalID]; ok {
		return tenant.Tenant{}, user.User{}, subscription.Subscription{}, errDuplicateTransaction
	}

	t.ID = uuid.New().String()
	usr.ID = uuid.New().String()
	usr.TenantID = t.ID
	sub.ID = uuid.New().String()
	sub.TenantID = t.ID
	txn.ID = uuid.New().String()
	txn.SubscriptionID = sub.ID

	repo.db.tenant.table[t.ID] = &t
	repo.db.user.table[usr.ID] = &usr
	repo.db.subscription.table[sub.ID] = &sub
	repo.db.transaction.table[txn.ExternalID] = &txn
	return t, usr, sub, nil
}

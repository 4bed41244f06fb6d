package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core/registration"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type registrationRepository struct {
	db *sqlx.DB
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db *sqlx.DB) *registrationRepository {
	return &registrationRepository{db: db}
}

// CreateSchoolAccount inserts the tenant, its promoter, the subscription and
// the confirming transaction in one database transaction, so finalization is
// all-or-nothing. Uniqueness violations surface as domain errors.
func (repo registrationRepository) CreateSchoolAccount(
	ctx context.Context,
	t tenant.Tenant,
	usr user.User,
	sub subscription.Subscription,
	txn subscription.Transaction,
) (tenant.Tenant, user.User, subscription.Subscription, error) {
	fail := func(err error, msg string) (tenant.Tenant, user.User, subscription.Subscription, error) {
		if mapped := mapConstraintErr(err); mapped != err {
			return tenant.Tenant{}, user.User{}, subscription.Subscription{}, mapped
		}
		return tenant.Tenant{}, user.User{}, subscription.Subscription{}, errors.Wrap(err, msg)
	}

	t.ID = uuid.New().String()
	usr.ID = uuid.New().String()
	usr.TenantID = t.ID
	sub.ID = uuid.New().String()
	sub.TenantID = t.ID
	txn.ID = uuid.New().String()
	txn.SubscriptionID = sub.ID

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return fail(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.NamedExecContext(ctx, tenantInsert, tenantRepository{}.pack(t)); err != nil {
		return fail(err, "inserting tenant")
	}
	if _, err = tx.NamedExecContext(ctx, userInsert, userRepository{}.pack(usr)); err != nil {
		return fail(err, "inserting promoter")
	}
	if _, err = tx.NamedExecContext(ctx, subscriptionInsert, packSubscription(sub)); err != nil {
		return fail(err, "inserting subscription")
	}
	if _, err = tx.NamedExecContext(ctx, transactionInsert, packTransaction(txn)); err != nil {
		return fail(err, "inserting transaction")
	}
	if err = tx.Commit(); err != nil {
		return fail(err, "committing school account")
	}
	return t, usr, sub, nil
}

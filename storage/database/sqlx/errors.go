package sqlxrepos

import (
	"errors"

	"github.com/lib/pq"

	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

const uniqueViolation = "23505"

var errDuplicateTransaction = errors.New("a transaction with this external id already exists")

// mapConstraintErr translates a storage uniqueness violation into the domain
// error owning that constraint; the constraint is the source of truth for
// uniqueness, advisory checks are not.
func mapConstraintErr(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "tenants_subdomain_key":
		return tenant.ErrSubdomainExists
	case "users_email_key":
		return user.ErrEmailExists
	case "transactions_external_id_key":
		return errDuplicateTransaction
	}
	return err
}

// Package dummydb provides in-memory implementations of the storage
// repositories, suitable for tests and quick local runs.
package dummydb

import (
	"sync"

	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type (
	DB struct {
		tenant       *tenantTable
		user         *userTable
		plan         *planTable
		subscription *subscriptionTable
		transaction  *transactionTable
		kyc          *kycTable
	}

	tenantTable struct {
		sync.RWMutex
		table map[string]*tenant.Tenant
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	planTable struct {
		sync.RWMutex
		table map[string]*subscription.Plan
	}

	subscriptionTable struct {
		sync.RWMutex
		table map[string]*subscription.Subscription
	}

	transactionTable struct {
		sync.RWMutex
		table map[string]*subscription.Transaction // keyed by external id
	}

	kycTable struct {
		sync.RWMutex
		table map[string][]kyc.Document // keyed by tenant id
	}
)

func Open() (*DB, error) {
	db := &DB{
		tenant:       &tenantTable{table: make(map[string]*tenant.Tenant)},
		user:         &userTable{table: make(map[string]*user.User)},
		plan:         &planTable{table: make(map[string]*subscription.Plan)},
		subscription: &subscriptionTable{table: make(map[string]*subscription.Subscription)},
		transaction:  &transactionTable{table: make(map[string]*subscription.Transaction)},
		kyc:          &kycTable{table: make(map[string][]kyc.Document)},
	}
	return db, nil
}

// SeedPlans loads a plan catalog; tests and DEV runs call it at startup.
func (db *DB) SeedPlans(plans ...subscription.Plan) {
	db.plan.Lock()
	defer db.plan.Unlock()
	for i := range plans {
		p := plans[i]
		db.plan.table[p.ID] = &p
	}
}

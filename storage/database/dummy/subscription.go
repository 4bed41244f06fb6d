package dummydb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
)

var errDuplicateTransaction = errors.New("a transaction with this external id already exists")

type subscriptionRepository struct {
	plans  *planTable
	subs   *subscriptionTable
	txns   *transactionTable
	tenant *tenantTable
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) *subscriptionRepository {
	return &subscriptionRepository{plans: db.plan, subs: db.subscription, txns: db.transaction, tenant: db.tenant}
}

func (repo *subscriptionRepository) GetPlanByID(ctx context.Context, id string) (subscription.Plan, error) {
	repo.plans.RLock()
	defer repo.plans.RUnlock()

	if p, ok := repo.plans.table[id]; ok {
		return *p, nil
	}
	return subscription.Plan{}, subscription.ErrPlanNotFound
}

func (repo *subscriptionRepository) QueryPlans(ctx context.Context) ([]subscription.Plan, error) {
	repo.plans.RLock()
	defer repo.plans.RUnlock()

	plans := make([]subscription.Plan, 0, len(repo.plans.table))
	for _, p := range repo.plans.table {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Amount < plans[j].Amount })
	return plans, nil
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	repo.subs.table[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscriptionByID(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	if sub, ok := repo.subs.table[id]; ok {
		return *sub, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) GetCurrentTenantSubscription(ctx context.Context, tenantID string) (subscription.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	var current *subscription.Subscription
	for _, sub := range repo.subs.table {
		if sub.TenantID != tenantID {
			continue
		}
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusTrial {
			continue
		}
		if current == nil || sub.EndDate.After(current.EndDate) {
			current = sub
		}
	}
	if current == nil {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return *current, nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	if _, ok := repo.subs.table[sub.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	sub.UpdatedAt = time.Now().UTC()
	repo.subs.table[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) QuerySubscriptionsExpiringBy(ctx context.Context, by time.Time) ([]subscription.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	var subs []subscription.Subscription
	for _, sub := range repo.subs.table {
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusTrial {
			continue
		}
		if !sub.EndDate.After(by) {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].EndDate.Before(subs[j].EndDate) })
	return subs, nil
}

func (repo *subscriptionRepository) CreateTransaction(ctx context.Context, txn subscription.Transaction) (subscription.Transaction, error) {
	repo.txns.Lock()
	defer repo.txns.Unlock()

	if _, ok := repo.txns.table[txn.ExternalID]; ok {
		return subscription.Transaction{}, errDuplicateTransaction
	}
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	repo.txns.table[txn.ExternalID] = &txn
	return txn, nil
}

func (repo *subscriptionRepository) GetTransactionByExternalID(ctx context.Context, externalID string) (subscription.Transaction, error) {
	repo.txns.RLock()
	defer repo.txns.RUnlock()

	if txn, ok := repo.txns.table[externalID]; ok {
		return *txn, nil
	}
	return subscription.Transaction{}, subscription.ErrTransactionNotFound
}

func (repo *subscriptionRepository) GetPendingRenewalTransaction(ctx context.Context, subscriptionID string) (subscription.Transaction, error) {
	repo.txns.RLock()
	defer repo.txns.RUnlock()

	for _, txn := range repo.txns.table {
		if txn.SubscriptionID == subscriptionID && txn.Type == subscription.TypeRenewal && txn.Status == payment.StatusPending {
			return *txn, nil
		}
	}
	return subscription.Transaction{}, subscription.ErrTransactionNotFound
}

func (repo *subscriptionRepository) UpdateTransaction(ctx context.Context, txn subscription.Transaction) (subscription.Transaction, error) {
	repo.txns.Lock()
	defer repo.txns.Unlock()

	row, ok := repo.txns.table[txn.ExternalID]
	if !ok {
		return subscription.Transaction{}, subscription.ErrTransactionNotFound
	}
	txn.ID = row.ID
	txn.UpdatedAt = time.Now().UTC()
	repo.txns.table[txn.ExternalID] = &txn
	return txn, nil
}

func (repo *subscriptionRepository) SetTenantPaymentStatus(ctx context.Context, tenantID, status string) error {
	repo.tenant.Lock()
	defer repo.tenant.Unlock()

	row, ok := repo.tenant.table[tenantID]
	if !ok {
		return tenant.ErrNotFound
	}
	row.PaymentStatus = status
	row.UpdatedAt = time.Now().UTC()
	return nil
}

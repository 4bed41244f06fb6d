package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/subscription"
)

type (
	planRow struct {
		ID           string `db:"id"`
		Name         string `db:"name"`
		Amount       int64  `db:"amount"`
		Currency     string `db:"currency"`
		BillingCycle string `db:"billing_cycle"`
		TrialDays    int    `db:"trial_days"`
		MaxStudents  int    `db:"max_students"`
	}

	subscriptionRow struct {
		ID                string      `db:"id"`
		TenantID          string      `db:"tenant_id"`
		PlanID            string      `db:"plan_id"`
		Status            string      `db:"status"`
		StartDate         null.Time   `db:"start_date"`
		EndDate           null.Time   `db:"end_date"`
		TrialEndsAt       null.Time   `db:"trial_ends_at"`
		LastTransactionID null.String `db:"last_transaction_id"`
		AutoRenew         bool        `db:"auto_renew"`
		LastReminderDays  int         `db:"last_reminder_days"`
		CreatedAt         null.Time   `db:"created_at"`
		UpdatedAt         null.Time   `db:"updated_at"`
	}

	transactionRow struct {
		ID             string    `db:"id"`
		SubscriptionID string    `db:"subscription_id"`
		ExternalID     string    `db:"external_id"`
		Amount         int64     `db:"amount"`
		Status         string    `db:"status"`
		Type           string    `db:"type"`
		Metadata       null.JSON `db:"metadata"`
		CreatedAt      null.Time `db:"created_at"`
		UpdatedAt      null.Time `db:"updated_at"`
	}
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

func unpackPlan(row planRow) subscription.Plan {
	return subscription.Plan{
		ID:           row.ID,
		Name:         row.Name,
		Amount:       row.Amount,
		Currency:     row.Currency,
		BillingCycle: subscription.BillingCycle(row.BillingCycle),
		TrialDays:    row.TrialDays,
		MaxStudents:  row.MaxStudents,
	}
}

func packSubscription(sub subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:                sub.ID,
		TenantID:          sub.TenantID,
		PlanID:            sub.PlanID,
		Status:            string(sub.Status),
		StartDate:         null.NewTime(sub.StartDate.UTC(), !sub.StartDate.IsZero()),
		EndDate:           null.NewTime(sub.EndDate.UTC(), !sub.EndDate.IsZero()),
		TrialEndsAt:       null.NewTime(sub.TrialEndsAt.UTC(), !sub.TrialEndsAt.IsZero()),
		LastTransactionID: null.NewString(sub.LastTransactionID, sub.LastTransactionID != ""),
		AutoRenew:         sub.AutoRenew,
		LastReminderDays:  sub.LastReminderDays,
		CreatedAt:         null.NewTime(sub.CreatedAt.UTC(), !sub.CreatedAt.IsZero()),
		UpdatedAt:         null.NewTime(sub.UpdatedAt.UTC(), !sub.UpdatedAt.IsZero()),
	}
}

func unpackSubscription(row subscriptionRow) subscription.Subscription {
	return subscription.Subscription{
		ID:                row.ID,
		TenantID:          row.TenantID,
		PlanID:            row.PlanID,
		Status:            subscription.Status(row.Status),
		StartDate:         row.StartDate.Time,
		EndDate:           row.EndDate.Time,
		TrialEndsAt:       row.TrialEndsAt.Time,
		LastTransactionID: row.LastTransactionID.String,
		AutoRenew:         row.AutoRenew,
		LastReminderDays:  row.LastReminderDays,
		CreatedAt:         row.CreatedAt.Time,
		UpdatedAt:         row.UpdatedAt.Time,
	}
}

func packTransaction(txn subscription.Transaction) transactionRow {
	row := transactionRow{
		ID:             txn.ID,
		SubscriptionID: txn.SubscriptionID,
		ExternalID:     txn.ExternalID,
		Amount:         txn.Amount,
		Status:         string(txn.Status),
		Type:           string(txn.Type),
		CreatedAt:      null.NewTime(txn.CreatedAt.UTC(), !txn.CreatedAt.IsZero()),
		UpdatedAt:      null.NewTime(txn.UpdatedAt.UTC(), !txn.UpdatedAt.IsZero()),
	}
	if data, err := json.Marshal(txn.Metadata); err == nil {
		row.Metadata = null.JSONFrom(data)
	}
	return row
}

func unpackTransaction(row transactionRow) subscription.Transaction {
	txn := subscription.Transaction{
		ID:             row.ID,
		SubscriptionID: row.SubscriptionID,
		ExternalID:     row.ExternalID,
		Amount:         row.Amount,
		Status:         payment.TransactionStatus(row.Status),
		Type:           subscription.TransactionType(row.Type),
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
	if row.Metadata.Valid {
		_ = json.Unmarshal(row.Metadata.JSON, &txn.Metadata)
	}
	return txn
}

// Plans

func (repo subscriptionRepository) GetPlanByID(ctx context.Context, id string) (subscription.Plan, error) {
	var row planRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM plans WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return subscription.Plan{}, subscription.ErrPlanNotFound
		}
		return subscription.Plan{}, errors.Wrap(err, "fetching plan")
	}
	return unpackPlan(row), nil
}

func (repo subscriptionRepository) QueryPlans(ctx context.Context) ([]subscription.Plan, error) {
	var rows []planRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM plans ORDER BY amount`); err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	plans := make([]subscription.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, unpackPlan(row))
	}
	return plans, nil
}

// Subscriptions

const subscriptionInsert = `
INSERT INTO subscriptions (
	id, tenant_id, plan_id, status, start_date, end_date, trial_ends_at,
	last_transaction_id, auto_renew, last_reminder_days, created_at, updated_at
) VALUES (
	:id, :tenant_id, :plan_id, :status, :start_date, :end_date, :trial_ends_at,
	:last_transaction_id, :auto_renew, :last_reminder_days, :created_at, :updated_at
)`

func (repo subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, subscriptionInsert, packSubscription(sub)); err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (repo subscriptionRepository) GetSubscriptionByID(ctx context.Context, id string) (subscription.Subscription, error) {
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "fetching subscription")
	}
	return unpackSubscription(row), nil
}

func (repo subscriptionRepository) GetCurrentTenantSubscription(ctx context.Context, tenantID string) (subscription.Subscription, error) {
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM subscriptions WHERE tenant_id = $1 AND status IN ('active', 'trial') ORDER BY end_date DESC LIMIT 1`,
		tenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "fetching current subscription")
	}
	return unpackSubscription(row), nil
}

const subscriptionUpdate = `
UPDATE subscriptions SET
	status = :status,
	end_date = :end_date,
	trial_ends_at = :trial_ends_at,
	last_transaction_id = :last_transaction_id,
	auto_renew = :auto_renew,
	last_reminder_days = :last_reminder_days,
	updated_at = :updated_at
WHERE id = :id`

func (repo subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	res, err := repo.db.NamedExecContext(ctx, subscriptionUpdate, packSubscription(sub))
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (repo subscriptionRepository) QuerySubscriptionsExpiringBy(ctx context.Context, by time.Time) ([]subscription.Subscription, error) {
	var rows []subscriptionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM subscriptions WHERE status IN ('active', 'trial') AND end_date <= $1 ORDER BY end_date`,
		by.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying expiring subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, unpackSubscription(row))
	}
	return subs, nil
}

// Transactions

const transactionInsert = `
INSERT INTO transactions (
	id, subscription_id, external_id, amount, status, type, metadata, created_at, updated_at
) VALUES (
	:id, :subscription_id, :external_id, :amount, :status, :type, :metadata, :created_at, :updated_at
)`

func (repo subscriptionRepository) CreateTransaction(ctx context.Context, txn subscription.Transaction) (subscription.Transaction, error) {
	txn.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, transactionInsert, packTransaction(txn)); err != nil {
		if mapped := mapConstraintErr(err); mapped != err {
			return subscription.Transaction{}, mapped
		}
		return subscription.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return txn, nil
}

func (repo subscriptionRepository) GetTransactionByExternalID(ctx context.Context, externalID string) (subscription.Transaction, error) {
	var row transactionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM transactions WHERE external_id = $1`, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return subscription.Transaction{}, subscription.ErrTransactionNotFound
		}
		return subscription.Transaction{}, errors.Wrap(err, "fetching transaction")
	}
	return unpackTransaction(row), nil
}

func (repo subscriptionRepository) GetPendingRenewalTransaction(ctx context.Context, subscriptionID string) (subscription.Transaction, error) {
	var row transactionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM transactions WHERE subscription_id = $1 AND type = 'renewal' AND status = 'pending' ORDER BY created_at DESC LIMIT 1`,
		subscriptionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return subscription.Transaction{}, subscription.ErrTransactionNotFound
		}
		return subscription.Transaction{}, errors.Wrap(err, "fetching pending renewal transaction")
	}
	return unpackTransaction(row), nil
}

func (repo subscriptionRepository) UpdateTransaction(ctx context.Context, txn subscription.Transaction) (subscription.Transaction, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2 WHERE external_id = $3`,
		string(txn.Status), txn.UpdatedAt.UTC(), txn.ExternalID)
	if err != nil {
		return subscription.Transaction{}, errors.Wrap(err, "updating transaction")
	}
	return txn, nil
}

func (repo subscriptionRepository) SetTenantPaymentStatus(ctx context.Context, tenantID, status string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE tenants SET payment_status = $1, updated_at = now() WHERE id = $2`, status, tenantID)
	return errors.Wrap(err, "updating tenant payment status")
}

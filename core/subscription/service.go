package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/benbjohnson/clock"
	pkgerrors "github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/user"
)

var (
	// errors
	ErrNotFound            = errors.New("subscription not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrActiveExists        = errors.New("the school already has an active subscription")
)

// reminderDays are the days-before-expiry marks at which reminders go out.
var reminderDays = []int{7, 3, 1}

type (
	Repository interface {
		GetPlanByID(ctx context.Context, id string) (Plan, error)
		QueryPlans(ctx context.Context) ([]Plan, error)

		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		GetSubscriptionByID(ctx context.Context, id string) (Subscription, error)
		// GetCurrentTenantSubscription returns the tenant's ACTIVE or TRIAL
		// subscription, or ErrNotFound.
		GetCurrentTenantSubscription(ctx context.Context, tenantID string) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// QuerySubscriptionsExpiringBy returns ACTIVE/TRIAL subscriptions
		// whose end date is on or before `by`.
		QuerySubscriptionsExpiringBy(ctx context.Context, by time.Time) ([]Subscription, error)

		CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
		GetTransactionByExternalID(ctx context.Context, externalID string) (Transaction, error)
		// GetPendingRenewalTransaction returns the subscription's PENDING
		// renewal transaction, or ErrTransactionNotFound.
		GetPendingRenewalTransaction(ctx context.Context, subscriptionID string) (Transaction, error)
		UpdateTransaction(ctx context.Context, txn Transaction) (Transaction, error)

		// SetTenantPaymentStatus refreshes the denormalized payment status
		// cache on the tenant row. Subscription status stays authoritative.
		SetTenantPaymentStatus(ctx context.Context, tenantID, status string) error
	}

	Service struct {
		repo    Repository
		gateway payment.Gateway
		usrSvc  *user.Service
		mailSvc core.EmailService
		logger  core.Logger
		clock   clock.Clock
	}
)

func NewService(repo Repository, gateway payment.Gateway, usrSvc *user.Service, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
		clock:   clock.New(),
	}
}

// WithClock swaps the wall clock; tests use a mock.
func (svc *Service) WithClock(c clock.Clock) *Service {
	svc.clock = c
	return svc
}

func (svc *Service) QueryPlans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx)
}

func (svc *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlanByID(ctx, id)
}

// Create makes a subscription for a tenant. With TrialDays the subscription
// starts as TRIAL and needs no transaction; with a TransactionID it starts
// ACTIVE; otherwise it is PENDING awaiting a payment-approved event.
func (svc *Service) Create(ctx context.Context, ns NewSubscription) (Subscription, error) {
	plan, err := svc.repo.GetPlanByID(ctx, ns.PlanID)
	if err != nil {
		return Subscription{}, err
	}

	now := svc.clock.Now().UTC()
	if cur, err := svc.repo.GetCurrentTenantSubscription(ctx, ns.TenantID); err == nil && cur.IsCurrent(now) {
		return Subscription{}, core.NewConflictError(ErrActiveExists)
	} else if err != nil && err != ErrNotFound {
		return Subscription{}, err
	}

	sub := Subscription{
		TenantID:  ns.TenantID,
		PlanID:    ns.PlanID,
		StartDate: now,
		AutoRenew: ns.AutoRenew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch {
	case ns.TrialDays > 0:
		sub.Status = StatusTrial
		sub.EndDate = now.AddDate(0, 0, ns.TrialDays)
		sub.TrialEndsAt = sub.EndDate
	case ns.TransactionID != "":
		sub.Status = StatusActive
		sub.EndDate = plan.PeriodEnd(now)
		sub.LastTransactionID = ns.TransactionID
	default:
		sub.Status = StatusPending
	}

	sub, err = svc.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return Subscription{}, err
	}
	if err = svc.repo.SetTenantPaymentStatus(ctx, sub.TenantID, string(sub.Status)); err != nil {
		return Subscription{}, pkgerrors.Wrap(err, "caching tenant payment status")
	}
	return sub, nil
}

// RecordTransaction upserts our record of a gateway transaction, keyed by its
// external id.
func (svc *Service) RecordTransaction(ctx context.Context, subID string, snap payment.Transaction, typ TransactionType) (Transaction, error) {
	now := svc.clock.Now().UTC()
	existing, err := svc.repo.GetTransactionByExternalID(ctx, snap.ID)
	if err == nil {
		existing.Status = snap.Status
		existing.UpdatedAt = now
		return svc.repo.UpdateTransaction(ctx, existing)
	}
	if err != ErrTransactionNotFound {
		return Transaction{}, err
	}
	return svc.repo.CreateTransaction(ctx, Transaction{
		SubscriptionID: subID,
		ExternalID:     snap.ID,
		Amount:         snap.Amount,
		Status:         snap.Status,
		Type:           typ,
		Metadata:       snap.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// ProcessGatewayEvent applies a webhook-delivered transaction snapshot.
// Correlation is via metadata.subscription_id only; the external transaction
// id is the sole deduplication key, so replaying the same id with the same
// terminal status is a no-op.
func (svc *Service) ProcessGatewayEvent(ctx context.Context, snap payment.Transaction) error {
	if snap.Metadata.SubscriptionID == "" {
		// Registration-time transactions carry a session id only; the
		// orchestrator reconciles those through its own polling.
		return nil
	}

	if existing, err := svc.repo.GetTransactionByExternalID(ctx, snap.ID); err == nil {
		if existing.Status == snap.Status && snap.Status.Terminal() {
			return nil
		}
	} else if err != ErrTransactionNotFound {
		return err
	}

	sub, err := svc.repo.GetSubscriptionByID(ctx, snap.Metadata.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrapf(err, "correlating transaction %s", snap.ID)
	}

	if _, err = svc.RecordTransaction(ctx, sub.ID, snap, TypeRenewal); err != nil {
		return pkgerrors.Wrap(err, "recording transaction")
	}

	now := svc.clock.Now().UTC()
	switch snap.Status {
	case payment.StatusApproved:
		plan, err := svc.repo.GetPlanByID(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		base := now
		if sub.EndDate.After(now) {
			base = sub.EndDate
		}
		sub.Status = StatusActive
		sub.EndDate = plan.PeriodEnd(base)
		sub.LastTransactionID = snap.ID
		sub.LastReminderDays = 0 // new period, reminders rearm
		sub.UpdatedAt = now
		if sub, err = svc.repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return svc.repo.SetTenantPaymentStatus(ctx, sub.TenantID, string(sub.Status))

	case payment.StatusDeclined, payment.StatusCanceled, payment.StatusFailed:
		if sub.Status == StatusExpired {
			// failed renewal of an already-expired subscription; nothing to undo
			return nil
		}
		if sub.IsCurrent(now) {
			// a failed renewal never shortens an already-valid period
			svc.logger.Warn(fmt.Sprintf("renewal failed for subscription %s; current period kept", sub.ID))
			return nil
		}
		sub.Status = StatusPaymentFailed
		sub.UpdatedAt = now
		if sub, err = svc.repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return svc.repo.SetTenantPaymentStatus(ctx, sub.TenantID, string(sub.Status))
	}
	return nil
}

// TenantHasActiveSubscription implements tenant.SubscriptionChecker.
func (svc *Service) TenantHasActiveSubscription(ctx context.Context, tenantID string) (bool, error) {
	sub, err := svc.repo.GetCurrentTenantSubscription(ctx, tenantID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.IsCurrent(svc.clock.Now().UTC()), nil
}

// CheckExpiringSubscriptions is the periodic job body; it is triggered
// externally (admin CLI, task runner) and is safe to run concurrently with
// request traffic and to re-run within the same day. Overdue subscriptions
// are expired, upcoming expiries get at most one reminder per 7/3/1-day mark
// (tracked on the subscription), and auto-renewing ones get a renewal
// transaction unless one is already pending settlement.
func (svc *Service) CheckExpiringSubscriptions(ctx context.Context) error {
	now := svc.clock.Now().UTC()
	subs, err := svc.repo.QuerySubscriptionsExpiringBy(ctx, now.AddDate(0, 0, reminderDays[0]))
	if err != nil {
		return pkgerrors.Wrap(err, "querying expiring subscriptions")
	}

	for _, sub := range subs {
		if !sub.EndDate.After(now) {
			sub.Status = StatusExpired
			sub.UpdatedAt = now
			if _, err := svc.repo.UpdateSubscription(ctx, sub); err != nil {
				svc.logger.Error(fmt.Sprintf("expiring subscription %s", sub.ID), err)
				continue
			}
			if err := svc.repo.SetTenantPaymentStatus(ctx, sub.TenantID, string(StatusExpired)); err != nil {
				svc.logger.Error(fmt.Sprintf("caching payment status for tenant %s", sub.TenantID), err)
			}
			continue
		}

		daysLeft := int(sub.EndDate.Sub(now).Hours() / 24)
		for _, d := range reminderDays {
			if daysLeft == d && sub.LastReminderDays != d {
				if err := svc.sendExpiryReminder(ctx, sub, d); err != nil {
					svc.logger.Error(fmt.Sprintf("reminding tenant %s", sub.TenantID), err)
					break
				}
				sub.LastReminderDays = d
				if sub, err = svc.repo.UpdateSubscription(ctx, sub); err != nil {
					svc.logger.Error(fmt.Sprintf("marking reminder for subscription %s", sub.ID), err)
				}
				break
			}
		}
		if sub.AutoRenew && daysLeft <= 1 {
			if err := svc.renew(ctx, sub); err != nil {
				svc.logger.Error(fmt.Sprintf("auto-renewing subscription %s", sub.ID), err)
			}
		}
	}
	return nil
}

func (svc *Service) sendExpiryReminder(ctx context.Context, sub Subscription, daysLeft int) error {
	promoter, err := svc.usrSvc.GetTenantPromoter(ctx, sub.TenantID)
	if err != nil {
		return pkgerrors.Wrapf(err, "finding promoter for tenant %s", sub.TenantID)
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: promoter.FirstName + " " + promoter.LastName, Address: promoter.Email}},
		Subject: "Your subscription is about to expire",
		BodyStr: fmt.Sprintf(
			"Your subscription expires in %d day(s), on %s. Renew it to keep access to your school.",
			daysLeft, sub.EndDate.Format("2006-01-02"),
		),
	})
	return nil
}

// renew asks the gateway for a renewal transaction carrying a typed
// subscription correlation; the approval webhook does the actual extension.
// A renewal still pending settlement suppresses a new request, so job reruns
// never mint a second transaction.
func (svc *Service) renew(ctx context.Context, sub Subscription) error {
	if _, err := svc.repo.GetPendingRenewalTransaction(ctx, sub.ID); err == nil {
		return nil
	} else if err != ErrTransactionNotFound {
		return err
	}

	plan, err := svc.repo.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	promoter, err := svc.usrSvc.GetTenantPromoter(ctx, sub.TenantID)
	if err != nil {
		return err
	}

	snap, err := svc.gateway.CreateTransaction(ctx, payment.NewTransaction{
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Description: fmt.Sprintf("%s plan renewal", plan.Name),
		Customer: payment.Customer{
			FirstName: promoter.FirstName,
			LastName:  promoter.LastName,
			Email:     promoter.Email,
		},
		Metadata: payment.Metadata{
			Version:        payment.MetadataVersion,
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
		},
	})
	if err != nil {
		return err
	}
	_, err = svc.RecordTransaction(ctx, sub.ID, snap, TypeRenewal)
	return err
}

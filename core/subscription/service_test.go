package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
	emailsvc "github.com/academiahub/backend/services/email"
	dummydb "github.com/academiahub/backend/storage/database/dummy"
	testutil "github.com/academiahub/backend/tests"
)

var monthly = subscription.Plan{
	ID:           "standard",
	Name:         "Standard",
	Amount:       35000,
	Currency:     "XOF",
	BillingCycle: subscription.CycleMonthly,
	MaxStudents:  500,
}

type subTestEnv struct {
	svc     *subscription.Service
	repo    subscription.Repository
	gateway *testutil.FakeGateway
	mail    interface {
		SentMessages() []core.EmailMessage
		Reset()
	}
	clock      *clock.Mock
	tenantRepo tenant.Repository
	school     tenant.Tenant
	promoter   user.User
}

func newSubTestEnv(t *testing.T) *subTestEnv {
	t.Helper()

	conf := testutil.NewConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)
	db.SeedPlans(monthly)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	mail := emailsvc.NewConsoleServiceMock(conf)
	gateway := testutil.NewFakeGateway()
	tenantRepo := dummydb.NewTenantRepository(db)
	usrSvc := user.NewService(dummydb.NewUserRepository(db), mail, conf)
	svc := subscription.NewService(
		dummydb.NewSubscriptionRepository(db), gateway, usrSvc, mail, testutil.NewLogger(t),
	).WithClock(mock)

	ctx := context.Background()
	school, err := tenantRepo.CreateTenant(ctx, tenant.Tenant{
		Name:      "Sunrise Academy",
		Subdomain: "sunrise",
		Status:    tenant.StatusActive,
		KYCStatus: tenant.KYCVerified,
	})
	require.NoError(t, err)
	promoter, err := usrSvc.Create(ctx, user.NewUser{
		TenantID:  school.ID,
		Email:     "promoter@sunrise.test",
		FirstName: "Awa",
		LastName:  "Diop",
		Role:      user.RolePromoter,
		Password:  "s3cr3t-pass",
	})
	require.NoError(t, err)

	return &subTestEnv{
		svc:        svc,
		repo:       dummydb.NewSubscriptionRepository(db),
		gateway:    gateway,
		mail:       mail,
		clock:      mock,
		tenantRepo: tenantRepo,
		school:     school,
		promoter:   promoter,
	}
}

func (env *subTestEnv) now() time.Time { return env.clock.Now().UTC() }

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("trial", func(t *testing.T) {
		env := newSubTestEnv(t)

		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:  env.school.ID,
			PlanID:    monthly.ID,
			TrialDays: 14,
		})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrial, sub.Status)
		assert.Equal(t, env.now().AddDate(0, 0, 14), sub.EndDate)
		assert.Equal(t, sub.EndDate, sub.TrialEndsAt)

		school, err := env.tenantRepo.GetTenantByID(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Equal(t, string(subscription.StatusTrial), school.PaymentStatus)
	})

	t.Run("paid", func(t *testing.T) {
		env := newSubTestEnv(t)

		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-paid-1",
		})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, monthly.PeriodEnd(env.now()), sub.EndDate)
		assert.Equal(t, "txn-paid-1", sub.LastTransactionID)
	})

	t.Run("pending without transaction", func(t *testing.T) {
		env := newSubTestEnv(t)

		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID: env.school.ID,
			PlanID:   monthly.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, sub.Status)
		assert.True(t, sub.EndDate.IsZero())
	})

	t.Run("unknown plan", func(t *testing.T) {
		env := newSubTestEnv(t)

		_, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID: env.school.ID,
			PlanID:   "no-such-plan",
		})
		assert.Equal(t, subscription.ErrPlanNotFound, err)
	})

	t.Run("active already exists", func(t *testing.T) {
		env := newSubTestEnv(t)

		_, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:  env.school.ID,
			PlanID:    monthly.ID,
			TrialDays: 14,
		})
		require.NoError(t, err)

		_, err = env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-paid-2",
		})
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
	})
}

func TestProcessGatewayEvent(t *testing.T) {
	ctx := context.Background()

	approvedSnap := func(id, subID string) payment.Transaction {
		return payment.Transaction{
			ID:     id,
			Status: payment.StatusApproved,
			Amount: monthly.Amount,
			Metadata: payment.Metadata{
				Version:        payment.MetadataVersion,
				SubscriptionID: subID,
			},
		}
	}

	t.Run("approval extends from current end date", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)
		firstEnd := sub.EndDate

		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, approvedSnap("txn-renew-1", sub.ID)))

		sub, err = env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, monthly.PeriodEnd(firstEnd), sub.EndDate)
		assert.Equal(t, "txn-renew-1", sub.LastTransactionID)
	})

	t.Run("replayed approval is a no-op", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		snap := approvedSnap("txn-renew-1", sub.ID)
		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))
		once, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)

		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))
		twice, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, once.EndDate, twice.EndDate, "end date must advance exactly once per transaction")
	})

	t.Run("no subscription correlation is ignored", func(t *testing.T) {
		env := newSubTestEnv(t)
		snap := approvedSnap("txn-orphan", "")
		snap.Metadata.SessionID = "some-session"
		assert.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))

		_, err := env.repo.GetTransactionByExternalID(ctx, "txn-orphan")
		assert.Equal(t, subscription.ErrTransactionNotFound, err)
	})

	t.Run("failed renewal keeps the current period", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		snap := approvedSnap("txn-renew-fail", sub.ID)
		snap.Status = payment.StatusDeclined
		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))

		got, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Equal(t, sub.EndDate, got.EndDate)
	})

	t.Run("failure after period end marks payment failed", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		env.clock.Set(sub.EndDate.Add(time.Hour))

		snap := approvedSnap("txn-renew-fail", sub.ID)
		snap.Status = payment.StatusFailed
		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))

		got, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPaymentFailed, got.Status)

		school, err := env.tenantRepo.GetTenantByID(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Equal(t, string(subscription.StatusPaymentFailed), school.PaymentStatus)
	})

	t.Run("expired subscription is left alone on failure", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		sub.Status = subscription.StatusExpired
		sub, err = env.repo.UpdateSubscription(ctx, sub)
		require.NoError(t, err)

		snap := approvedSnap("txn-late-fail", sub.ID)
		snap.Status = payment.StatusCanceled
		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))

		got, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, got.Status)
	})
}

func TestTenantHasActiveSubscription(t *testing.T) {
	ctx := context.Background()
	env := newSubTestEnv(t)

	ok, err := env.svc.TenantHasActiveSubscription(ctx, env.school.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	sub, err := env.svc.Create(ctx, subscription.NewSubscription{
		TenantID:  env.school.ID,
		PlanID:    monthly.ID,
		TrialDays: 14,
	})
	require.NoError(t, err)

	ok, err = env.svc.TenantHasActiveSubscription(ctx, env.school.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	env.clock.Set(sub.EndDate.Add(time.Minute))
	ok, err = env.svc.TenantHasActiveSubscription(ctx, env.school.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckExpiringSubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("overdue subscription expires", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		env.clock.Set(sub.EndDate.Add(time.Hour))
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))

		got, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, got.Status)

		school, err := env.tenantRepo.GetTenantByID(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Equal(t, string(subscription.StatusExpired), school.PaymentStatus)
	})

	t.Run("reminder goes out at the 7 day mark only", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		env.clock.Set(sub.EndDate.AddDate(0, 0, -7))
		env.mail.Reset()
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
		sent := env.mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, env.promoter.Email, sent[0].To[0].Address)

		// 5 days out is not a reminder mark
		env.clock.Set(sub.EndDate.AddDate(0, 0, -5))
		env.mail.Reset()
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
		assert.Empty(t, env.mail.SentMessages())
	})

	t.Run("reruns within the reminder window send one email", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
		})
		require.NoError(t, err)

		// anywhere in the 3-days-left window; hourly reruns stay in it
		env.clock.Set(sub.EndDate.Add(-90 * time.Hour))
		env.mail.Reset()
		for i := 0; i < 4; i++ {
			require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
			env.clock.Add(time.Hour)
		}
		assert.Len(t, env.mail.SentMessages(), 1)

		// the next mark re-arms
		env.clock.Set(sub.EndDate.AddDate(0, 0, -1))
		env.mail.Reset()
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
		assert.Len(t, env.mail.SentMessages(), 1)
	})

	t.Run("auto renew creates a gateway transaction", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
			AutoRenew:     true,
		})
		require.NoError(t, err)

		env.clock.Set(sub.EndDate.Add(-12 * time.Hour))
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))

		snap := env.gateway.Transaction(t, "txn-1")
		assert.Equal(t, monthly.Amount, snap.Amount)
		assert.Equal(t, sub.ID, snap.Metadata.SubscriptionID)
		assert.Equal(t, env.school.ID, snap.Metadata.TenantID)

		txn, err := env.repo.GetTransactionByExternalID(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TypeRenewal, txn.Type)
		assert.Equal(t, payment.StatusPending, txn.Status)
	})

	t.Run("reruns request a single renewal transaction", func(t *testing.T) {
		env := newSubTestEnv(t)
		sub, err := env.svc.Create(ctx, subscription.NewSubscription{
			TenantID:      env.school.ID,
			PlanID:        monthly.ID,
			TransactionID: "txn-initial",
			AutoRenew:     true,
		})
		require.NoError(t, err)

		env.clock.Set(sub.EndDate.Add(-20 * time.Hour))
		for i := 0; i < 3; i++ {
			require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
			env.clock.Add(time.Hour)
		}
		assert.Equal(t, 1, env.gateway.CreatedCount())
		_, err = env.repo.GetTransactionByExternalID(ctx, "txn-2")
		assert.Equal(t, subscription.ErrTransactionNotFound, err)

		// settling the renewal re-arms the next period
		snap := env.gateway.Transaction(t, "txn-1")
		snap.Status = payment.StatusApproved
		require.NoError(t, env.svc.ProcessGatewayEvent(ctx, snap))

		renewed, err := env.repo.GetSubscriptionByID(ctx, sub.ID)
		require.NoError(t, err)
		env.clock.Set(renewed.EndDate.Add(-12 * time.Hour))
		require.NoError(t, env.svc.CheckExpiringSubscriptions(ctx))
		assert.Equal(t, 2, env.gateway.CreatedCount())
	})
}

package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

var (
	// errors
	ErrSessionNotFound     = errors.New("registration session not found")
	ErrSessionExpired      = errors.New("registration session has expired")
	ErrWrongStep           = errors.New("step not allowed in the session's current state")
	ErrPaymentNotConfirmed = errors.New("payment has not been confirmed")
	ErrFinalizeInProgress  = errors.New("finalization already in progress")
	ErrUnknownTransaction  = errors.New("transaction does not belong to this session")
	// ErrStatusChanged is returned by Store.CompareAndSwapStatus on a lost race.
	ErrStatusChanged = errors.New("session status changed concurrently")
)

const tempPasswordLen = 12

type (
	// Store is the TTL-scoped session store. Implementations must make
	// CompareAndSwapStatus atomic; it is the claim protecting Finalize
	// against concurrent double-invocation.
	Store interface {
		SaveSession(ctx context.Context, s Session) error
		GetSession(ctx context.Context, id string) (Session, error)
		CompareAndSwapStatus(ctx context.Context, id string, from, to SessionStatus) (Session, error)
		// ReserveClaim takes a soft uniqueness reservation (subdomain/email)
		// for a session; it reports false when another session holds it.
		ReserveClaim(ctx context.Context, key, sessionID string, ttl time.Duration) (bool, error)
		ReleaseClaim(ctx context.Context, key, sessionID string) error
	}

	// Repository persists the finalization bundle. CreateSchoolAccount must
	// run in a single storage transaction and surface uniqueness-constraint
	// violations as tenant.ErrSubdomainExists / user.ErrEmailExists.
	Repository interface {
		CreateSchoolAccount(ctx context.Context, t tenant.Tenant, usr user.User, sub subscription.Subscription, txn subscription.Transaction) (tenant.Tenant, user.User, subscription.Subscription, error)
	}

	Service struct {
		store      Store
		repo       Repository
		tenantRepo tenant.Repository
		usrSvc     *user.Service
		subSvc     *subscription.Service
		gateway    payment.Gateway
		logger     core.Logger
		conf       *core.Config
		clock      clock.Clock
	}
)

func NewService(
	store Store,
	repo Repository,
	tenantRepo tenant.Repository,
	usrSvc *user.Service,
	subSvc *subscription.Service,
	gateway payment.Gateway,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		store:      store,
		repo:       repo,
		tenantRepo: tenantRepo,
		usrSvc:     usrSvc,
		subSvc:     subSvc,
		gateway:    gateway,
		logger:     logger,
		conf:       conf,
		clock:      clock.New(),
	}
}

// WithClock swaps the wall clock; tests use a mock.
func (svc *Service) WithClock(c clock.Clock) *Service {
	svc.clock = c
	return svc
}

// Start creates a fresh session with a fixed TTL and returns it; clients keep
// only the id.
func (svc *Service) Start(ctx context.Context) (Session, error) {
	now := svc.clock.Now().UTC()
	s := Session{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.conf.RegistrationSessionTTL),
	}
	if err := svc.store.SaveSession(ctx, s); err != nil {
		return Session{}, pkgerrors.Wrap(err, "saving session")
	}
	return s, nil
}

// Get returns the session for read-only use; an expired session is reported
// as such rather than hidden.
func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(svc.clock.Now().UTC()) {
		return s, ErrSessionExpired
	}
	return s, nil
}

// getWritable re-validates the TTL; write steps treat an expired session
// exactly like a missing one.
func (svc *Service) getWritable(ctx context.Context, id string) (Session, error) {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(svc.clock.Now().UTC()) {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// CheckSubdomain is the advisory availability probe; the storage constraint
// remains the source of truth at write time.
func (svc *Service) CheckSubdomain(ctx context.Context, subdomain string) (bool, error) {
	return svc.tenantSubdomainAvailable(ctx, core.CleanString(subdomain, true /* lower */))
}

func (svc *Service) tenantSubdomainAvailable(ctx context.Context, subdomain string) (bool, error) {
	err := svc.tenantRepo.CheckSubdomainUniqueness(ctx, subdomain)
	if err == tenant.ErrSubdomainExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckEmail is the advisory availability probe for the promoter email.
func (svc *Service) CheckEmail(ctx context.Context, email string) (bool, error) {
	return svc.usrSvc.IsEmailAvailable(ctx, email)
}

// SubmitPromoterAndSchool stores both drafts after re-checking subdomain and
// email uniqueness at submission time, and takes soft reservations so two
// racing sessions cannot both sail through to payment with the same claims.
func (svc *Service) SubmitPromoterAndSchool(ctx context.Context, id string, in Step1Input) (Session, error) {
	s, err := svc.getWritable(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusPending && s.Status != StatusInfoSubmitted {
		return Session{}, core.NewConflictError(ErrWrongStep)
	}
	if err = in.Validate(); err != nil {
		return Session{}, err
	}

	// authoritative-at-submission-time checks
	if ok, err := svc.tenantSubdomainAvailable(ctx, in.School.Subdomain); err != nil {
		return Session{}, err
	} else if !ok {
		return Session{}, core.NewConflictError(tenant.ErrSubdomainExists)
	}
	if ok, err := svc.usrSvc.IsEmailAvailable(ctx, in.Promoter.Email); err != nil {
		return Session{}, err
	} else if !ok {
		return Session{}, core.NewConflictError(user.ErrEmailExists)
	}

	now := svc.clock.Now().UTC()
	ttl := s.ExpiresAt.Sub(now)

	// drop superseded reservations on a resubmission
	if s.School.Subdomain != "" && s.School.Subdomain != in.School.Subdomain {
		_ = svc.store.ReleaseClaim(ctx, subdomainClaimKey(s.School.Subdomain), s.ID)
	}
	if s.Promoter.Email != "" && s.Promoter.Email != in.Promoter.Email {
		_ = svc.store.ReleaseClaim(ctx, emailClaimKey(s.Promoter.Email), s.ID)
	}

	if ok, err := svc.store.ReserveClaim(ctx, subdomainClaimKey(in.School.Subdomain), s.ID, ttl); err != nil {
		return Session{}, pkgerrors.Wrap(err, "reserving subdomain")
	} else if !ok {
		return Session{}, core.NewConflictError(tenant.ErrSubdomainExists)
	}
	if ok, err := svc.store.ReserveClaim(ctx, emailClaimKey(in.Promoter.Email), s.ID, ttl); err != nil {
		return Session{}, pkgerrors.Wrap(err, "reserving email")
	} else if !ok {
		_ = svc.store.ReleaseClaim(ctx, subdomainClaimKey(in.School.Subdomain), s.ID)
		return Session{}, core.NewConflictError(user.ErrEmailExists)
	}

	s.School = SchoolDraft{
		Name:      in.School.Name,
		Subdomain: in.School.Subdomain,
		Address:   in.School.Address,
		City:      in.School.City,
		Country:   in.School.Country,
		Phone:     in.School.Phone,
	}
	s.Promoter = PromoterDraft{
		Email:     in.Promoter.Email,
		FirstName: in.Promoter.FirstName,
		LastName:  in.Promoter.LastName,
		Phone:     in.Promoter.Phone,
	}
	s.Status = StatusInfoSubmitted
	if err = svc.store.SaveSession(ctx, s); err != nil {
		return Session{}, pkgerrors.Wrap(err, "saving session")
	}
	return s, nil
}

// SelectPlan stores the plan and synchronously obtains a checkout URL from
// the gateway; the transaction metadata carries the session id.
func (svc *Service) SelectPlan(ctx context.Context, id, planID string) (Session, error) {
	s, err := svc.getWritable(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusInfoSubmitted && s.Status != StatusPaymentInitiated {
		return Session{}, core.NewConflictError(ErrWrongStep)
	}

	plan, err := svc.subSvc.GetPlan(ctx, planID)
	if err != nil {
		if err == subscription.ErrPlanNotFound {
			return Session{}, core.NewValidationError(err, core.FieldError{Field: "plan_id", Error: err.Error()})
		}
		return Session{}, err
	}

	snap, err := svc.gateway.CreateTransaction(ctx, payment.NewTransaction{
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Description: fmt.Sprintf("%s plan - %s", plan.Name, s.School.Name),
		Customer: payment.Customer{
			FirstName: s.Promoter.FirstName,
			LastName:  s.Promoter.LastName,
			Email:     s.Promoter.Email,
		},
		Metadata: payment.Metadata{
			Version:   payment.MetadataVersion,
			SessionID: s.ID,
		},
		CallbackURL: svc.conf.FrontendBaseURL + "/register/payment-return",
	})
	if err != nil {
		return Session{}, err // GatewayError surfaces as "payment service unavailable"
	}

	s.PlanID = plan.ID
	s.Payment = PaymentInfo{
		TransactionID: snap.ID,
		PaymentURL:    snap.PaymentURL,
		Status:        snap.Status,
	}
	s.Status = StatusPaymentInitiated
	if err = svc.store.SaveSession(ctx, s); err != nil {
		return Session{}, pkgerrors.Wrap(err, "saving session")
	}
	return s, nil
}

// CheckPaymentStatus polls the gateway for the transaction's status. It never
// mutates the session, so clients can poll freely; Finalize is the explicit
// step that commits.
func (svc *Service) CheckPaymentStatus(ctx context.Context, id, transactionID string) (PaymentOutcome, error) {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		return "", err
	}
	if s.Payment.TransactionID == "" || s.Payment.TransactionID != transactionID {
		return "", core.NewValidationError(ErrUnknownTransaction,
			core.FieldError{Field: "transaction_id", Error: ErrUnknownTransaction.Error()})
	}

	snap, err := svc.gateway.GetTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	switch snap.Status {
	case payment.StatusApproved:
		return PaymentCompleted, nil
	case payment.StatusPending:
		return PaymentPending, nil
	default:
		return PaymentFailed, nil
	}
}

// Finalize verifies the payment with the gateway and atomically creates the
// tenant, its promoter account and the subscription. It is idempotent: a
// completed session short-circuits to the stored result, and the
// finalizing claim makes concurrent double-invocation safe.
func (svc *Service) Finalize(ctx context.Context, id, transactionID string) (Result, error) {
	s, err := svc.getWritable(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if s.Status == StatusCompleted {
		if s.Result == nil {
			return Result{}, pkgerrors.New("completed session without result")
		}
		return *s.Result, nil
	}
	if s.Status != StatusPaymentInitiated {
		return Result{}, core.NewConflictError(ErrWrongStep)
	}
	if s.Payment.TransactionID != transactionID {
		return Result{}, core.NewValidationError(ErrUnknownTransaction,
			core.FieldError{Field: "transaction_id", Error: ErrUnknownTransaction.Error()})
	}

	snap, err := svc.gateway.GetTransaction(ctx, transactionID)
	if err != nil {
		return Result{}, err
	}
	if snap.Status != payment.StatusApproved {
		return Result{}, core.NewConflictError(ErrPaymentNotConfirmed)
	}

	// claim the session; exactly one concurrent caller proceeds
	s, err = svc.store.CompareAndSwapStatus(ctx, s.ID, StatusPaymentInitiated, StatusFinalizing)
	if err == ErrStatusChanged {
		if latest, gerr := svc.store.GetSession(ctx, s.ID); gerr == nil && latest.Status == StatusCompleted && latest.Result != nil {
			return *latest.Result, nil
		}
		return Result{}, core.NewConflictError(ErrFinalizeInProgress)
	}
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "claiming session")
	}

	result, err := svc.createSchoolAccount(ctx, &s, snap)
	if err != nil {
		// hand the claim back so a later retry can run
		if _, cerr := svc.store.CompareAndSwapStatus(ctx, s.ID, StatusFinalizing, StatusPaymentInitiated); cerr != nil {
			svc.logger.Error(fmt.Sprintf("rolling back finalize claim for session %s", s.ID), cerr)
		}
		return Result{}, err
	}

	s.Status = StatusCompleted
	s.Result = &result
	// keep the completed session readable for the client's retry window
	s.ExpiresAt = svc.clock.Now().UTC().Add(svc.conf.RegistrationSessionTTL)
	if err = svc.store.SaveSession(ctx, s); err != nil {
		svc.logger.Error(fmt.Sprintf("saving completed session %s", s.ID), err)
	}
	svc.releaseClaims(ctx, s) // the tenant row owns uniqueness now
	return result, nil
}

func (svc *Service) createSchoolAccount(ctx context.Context, s *Session, snap payment.Transaction) (Result, error) {
	now := svc.clock.Now().UTC()

	plan, err := svc.subSvc.GetPlan(ctx, s.PlanID)
	if err != nil {
		return Result{}, err
	}

	t := tenant.Tenant{
		Name:          s.School.Name,
		Subdomain:     s.School.Subdomain,
		Status:        tenant.StatusPendingKYC,
		KYCStatus:     tenant.KYCNotSubmitted,
		PaymentStatus: string(subscription.StatusActive),
		Address:       s.School.Address,
		City:          s.School.City,
		Country:       s.School.Country,
		Phone:         s.School.Phone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tempPassword := core.RandomPassword(tempPasswordLen)
	usr := user.User{
		Email:     s.Promoter.Email,
		FirstName: s.Promoter.FirstName,
		LastName:  s.Promoter.LastName,
		Role:      user.RolePromoter,
		Status:    user.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(tempPassword); err != nil {
		return Result{}, pkgerrors.Wrap(err, "hashing temporary password")
	}

	sub := subscription.Subscription{
		PlanID:            s.PlanID,
		Status:            subscription.StatusActive,
		StartDate:         now,
		EndDate:           plan.PeriodEnd(now),
		LastTransactionID: snap.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	txn := subscription.Transaction{
		ExternalID: snap.ID,
		Amount:     snap.Amount,
		Status:     snap.Status,
		Type:       subscription.TypeSubscription,
		Metadata:   snap.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// one storage transaction; uniqueness constraints are the source of truth
	t, usr, sub, err = svc.repo.CreateSchoolAccount(ctx, t, usr, sub, txn)
	if err != nil {
		switch err {
		case tenant.ErrSubdomainExists, user.ErrEmailExists:
			return Result{}, core.NewConflictError(err)
		}
		return Result{}, pkgerrors.Wrap(err, "creating school account")
	}

	svc.usrSvc.SendTemporaryPassword(usr, t.Name, tempPassword)
	return Result{TenantID: t.ID, PromoterID: usr.ID, SubscriptionID: sub.ID}, nil
}

// Cancel marks the session cancelled and releases its soft reservations.
// Valid from any non-completed state.
func (svc *Service) Cancel(ctx context.Context, id string) error {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil // nothing to cancel
		}
		return err
	}
	if s.Status == StatusCompleted {
		return core.NewConflictError(ErrWrongStep)
	}

	svc.releaseClaims(ctx, s)
	s.Status = StatusCancelled
	if err = svc.store.SaveSession(ctx, s); err != nil {
		return pkgerrors.Wrap(err, "saving session")
	}
	return nil
}

func (svc *Service) releaseClaims(ctx context.Context, s Session) {
	if s.School.Subdomain != "" {
		_ = svc.store.ReleaseClaim(ctx, subdomainClaimKey(s.School.Subdomain), s.ID)
	}
	if s.Promoter.Email != "" {
		_ = svc.store.ReleaseClaim(ctx, emailClaimKey(s.Promoter.Email), s.ID)
	}
}

func subdomainClaimKey(subdomain string) string { return "reg:subdomain:" + subdomain }
func emailClaimKey(email string) string         { return "reg:email:" + email }

package kyc

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

var (
	// errors
	ErrNotPendingReview = errors.New("no pending submission to review")
	ErrAlreadyPending   = errors.New("a submission is already under review")
	ErrAlreadyVerified  = errors.New("the school is already verified")
	ErrWrongTenantState = errors.New("the school is not awaiting verification")
	ErrReasonRequired   = errors.New("a rejection reason is required")
)

type (
	Repository interface {
		GetTenantDocuments(ctx context.Context, tenantID string) ([]Document, error)
		// ReplaceTenantDocuments swaps the whole set; documents are never
		// edited in place.
		ReplaceTenantDocuments(ctx context.Context, tenantID string, docs []Document) error
	}

	Service struct {
		repo       Repository
		tenantRepo tenant.Repository
		usrSvc     *user.Service
		mailSvc    core.EmailService
	}
)

func NewService(repo Repository, tenantRepo tenant.Repository, usrSvc *user.Service, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, tenantRepo: tenantRepo, usrSvc: usrSvc, mailSvc: mailSvc}
}

func (svc *Service) Status(ctx context.Context, tenantID string) (StatusView, error) {
	t, err := svc.tenantRepo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return StatusView{}, err
	}
	docs, err := svc.repo.GetTenantDocuments(ctx, tenantID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		Status:          t.KYCStatus,
		SubmittedAt:     t.KYCSubmittedAt,
		VerifiedAt:      t.KYCVerifiedAt,
		RejectionReason: t.KYCRejectionReason,
		Documents:       docs,
	}, nil
}

// Submit accepts a full document set for a tenant awaiting verification and
// moves its KYC status to PENDING. A rejected tenant resubmits through here;
// the new set replaces the old one.
func (svc *Service) Submit(ctx context.Context, t tenant.Tenant, docs []Document) (tenant.Tenant, error) {
	if t.Status != tenant.StatusPendingKYC {
		return tenant.Tenant{}, core.NewConflictError(ErrWrongTenantState)
	}
	switch t.KYCStatus {
	case tenant.KYCPending:
		return tenant.Tenant{}, core.NewConflictError(ErrAlreadyPending)
	case tenant.KYCVerified:
		return tenant.Tenant{}, core.NewConflictError(ErrAlreadyVerified)
	}

	for _, d := range docs {
		if !d.Type.Valid() {
			return tenant.Tenant{}, core.NewValidationError(nil,
				core.FieldError{Field: "type", Error: fmt.Sprintf("unknown document type %q", d.Type)})
		}
	}
	if missing := MissingFrom(docs); len(missing) > 0 {
		return tenant.Tenant{}, &MissingTypesError{Missing: missing}
	}

	if err := svc.repo.ReplaceTenantDocuments(ctx, t.ID, docs); err != nil {
		return tenant.Tenant{}, pkgerrors.Wrap(err, "storing documents")
	}

	now := time.Now().UTC()
	t.KYCStatus = tenant.KYCPending
	t.KYCSubmittedAt = now
	t.KYCRejectionReason = ""
	t.UpdatedAt = now
	return svc.tenantRepo.UpdateTenantKYC(ctx, t)
}

// Approve flips the tenant to ACTIVE and its KYC status to VERIFIED in a
// single update; the two never change independently.
func (svc *Service) Approve(ctx context.Context, tenantID string) (tenant.Tenant, error) {
	t, err := svc.tenantRepo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return tenant.Tenant{}, err
	}
	if t.KYCStatus != tenant.KYCPending {
		return tenant.Tenant{}, core.NewConflictError(ErrNotPendingReview)
	}

	now := time.Now().UTC()
	t.Status = tenant.StatusActive
	t.KYCStatus = tenant.KYCVerified
	t.KYCVerifiedAt = now
	t.KYCRejectionReason = ""
	t.UpdatedAt = now
	t, err = svc.tenantRepo.UpdateTenantKYC(ctx, t)
	if err != nil {
		return tenant.Tenant{}, err
	}

	svc.notifyPromoter(ctx, t, "Your school has been verified",
		fmt.Sprintf("Congratulations, %s is now verified and active. You can start using your school space.", t.Name))
	return t, nil
}

// Reject records a mandatory reason and leaves the tenant status unchanged so
// the promoter can resubmit.
func (svc *Service) Reject(ctx context.Context, tenantID, reason string) (tenant.Tenant, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return tenant.Tenant{}, core.NewValidationError(ErrReasonRequired,
			core.FieldError{Field: "rejection_reason", Error: ErrReasonRequired.Error()})
	}

	t, err := svc.tenantRepo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return tenant.Tenant{}, err
	}
	if t.KYCStatus != tenant.KYCPending {
		return tenant.Tenant{}, core.NewConflictError(ErrNotPendingReview)
	}

	t.KYCStatus = tenant.KYCRejected
	t.KYCRejectionReason = reason
	t.UpdatedAt = time.Now().UTC()
	t, err = svc.tenantRepo.UpdateTenantKYC(ctx, t)
	if err != nil {
		return tenant.Tenant{}, err
	}

	svc.notifyPromoter(ctx, t, "Your verification was rejected",
		fmt.Sprintf("Your submission for %s was rejected: %s\nPlease fix the documents and submit again.", t.Name, reason))
	return t, nil
}

func (svc *Service) notifyPromoter(ctx context.Context, t tenant.Tenant, subject, body string) {
	promoter, err := svc.usrSvc.GetTenantPromoter(ctx, t.ID)
	if err != nil {
		return // tenant without promoter should not happen; nothing to notify
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: promoter.FirstName + " " + promoter.LastName, Address: promoter.Email}},
		Subject: subject,
		BodyStr: body,
	})
}

package kyc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
	emailsvc "github.com/academiahub/backend/services/email"
	dummydb "github.com/academiahub/backend/storage/database/dummy"
	testutil "github.com/academiahub/backend/tests"
)

type kycTestEnv struct {
	svc        *kyc.Service
	repo       kyc.Repository
	tenantRepo tenant.Repository
	mail       interface {
		SentMessages() []core.EmailMessage
		Reset()
	}
	school   tenant.Tenant
	promoter user.User
}

func newKYCTestEnv(t *testing.T) *kycTestEnv {
	t.Helper()

	conf := testutil.NewConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)

	mail := emailsvc.NewConsoleServiceMock(conf)
	tenantRepo := dummydb.NewTenantRepository(db)
	repo := dummydb.NewKYCRepository(db)
	usrSvc := user.NewService(dummydb.NewUserRepository(db), mail, conf)
	svc := kyc.NewService(repo, tenantRepo, usrSvc, mail)

	ctx := context.Background()
	school, err := tenantRepo.CreateTenant(ctx, tenant.Tenant{
		Name:      "Sunrise Academy",
		Subdomain: "sunrise",
		Status:    tenant.StatusPendingKYC,
		KYCStatus: tenant.KYCNotSubmitted,
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

	return &kycTestEnv{
		svc:        svc,
		repo:       repo,
		tenantRepo: tenantRepo,
		mail:       mail,
		school:     school,
		promoter:   promoter,
	}
}

func fullDocSet() []kyc.Document {
	return []kyc.Document{
		{Type: kyc.DocIDCard, FileRef: "uploads/id.pdf"},
		{Type: kyc.DocSchoolAuthorization, FileRef: "uploads/auth.pdf"},
		{Type: kyc.DocAddressProof, FileRef: "uploads/address.pdf"},
		{Type: kyc.DocSchoolPhotos, FileRef: "uploads/photo-1.jpg", Description: "main building"},
		{Type: kyc.DocSchoolPhotos, FileRef: "uploads/photo-2.jpg", Description: "classrooms"},
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("complete set moves status to pending", func(t *testing.T) {
		env := newKYCTestEnv(t)

		school, err := env.svc.Submit(ctx, env.school, fullDocSet())
		require.NoError(t, err)
		assert.Equal(t, tenant.KYCPending, school.KYCStatus)
		assert.Equal(t, tenant.StatusPendingKYC, school.Status)
		assert.False(t, school.KYCSubmittedAt.IsZero())

		docs, err := env.repo.GetTenantDocuments(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Len(t, docs, 5)
	})

	t.Run("incomplete set reports missing types", func(t *testing.T) {
		env := newKYCTestEnv(t)

		docs := []kyc.Document{
			{Type: kyc.DocIDCard, FileRef: "uploads/id.pdf"},
			{Type: kyc.DocSchoolPhotos, FileRef: "uploads/photo.jpg"},
		}
		_, err := env.svc.Submit(ctx, env.school, docs)
		var missing *kyc.MissingTypesError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []kyc.DocumentType{kyc.DocSchoolAuthorization, kyc.DocAddressProof}, missing.Missing)

		// nothing stored on a rejected submission
		stored, err := env.repo.GetTenantDocuments(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("unknown document type", func(t *testing.T) {
		env := newKYCTestEnv(t)

		docs := append(fullDocSet(), kyc.Document{Type: "diploma", FileRef: "uploads/x.pdf"})
		_, err := env.svc.Submit(ctx, env.school, docs)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("wrong tenant state", func(t *testing.T) {
		env := newKYCTestEnv(t)
		env.school.Status = tenant.StatusPendingPayment

		_, err := env.svc.Submit(ctx, env.school, fullDocSet())
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, kyc.ErrWrongTenantState, conflict.Err)
	})

	t.Run("already pending", func(t *testing.T) {
		env := newKYCTestEnv(t)

		school, err := env.svc.Submit(ctx, env.school, fullDocSet())
		require.NoError(t, err)

		_, err = env.svc.Submit(ctx, school, fullDocSet())
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, kyc.ErrAlreadyPending, conflict.Err)
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("pending submission", func(t *testing.T) {
		env := newKYCTestEnv(t)
		_, err := env.svc.Submit(ctx, env.school, fullDocSet())
		require.NoError(t, err)

		env.mail.Reset()
		school, err := env.svc.Approve(ctx, env.school.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, school.Status)
		assert.Equal(t, tenant.KYCVerified, school.KYCStatus)
		assert.False(t, school.KYCVerifiedAt.IsZero())

		sent := env.mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, env.promoter.Email, sent[0].To[0].Address)
	})

	t.Run("nothing pending", func(t *testing.T) {
		env := newKYCTestEnv(t)

		_, err := env.svc.Approve(ctx, env.school.ID)
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, kyc.ErrNotPendingReview, conflict.Err)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		env := newKYCTestEnv(t)

		_, err := env.svc.Approve(ctx, "no-such-tenant")
		assert.Equal(t, tenant.ErrNotFound, err)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("records reason and allows resubmission", func(t *testing.T) {
		env := newKYCTestEnv(t)
		_, err := env.svc.Submit(ctx, env.school, fullDocSet())
		require.NoError(t, err)

		env.mail.Reset()
		school, err := env.svc.Reject(ctx, env.school.ID, "authorization document is expired")
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusPendingKYC, school.Status)
		assert.Equal(t, tenant.KYCRejected, school.KYCStatus)
		assert.Equal(t, "authorization document is expired", school.KYCRejectionReason)
		require.Len(t, env.mail.SentMessages(), 1)

		// resubmission clears the rejection
		school, err = env.svc.Submit(ctx, school, fullDocSet())
		require.NoError(t, err)
		assert.Equal(t, tenant.KYCPending, school.KYCStatus)
		assert.Empty(t, school.KYCRejectionReason)
	})

	t.Run("reason is required", func(t *testing.T) {
		env := newKYCTestEnv(t)
		_, err := env.svc.Submit(ctx, env.school, fullDocSet())
		require.NoError(t, err)

		_, err = env.svc.Reject(ctx, env.school.ID, "   ")
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("nothing pending", func(t *testing.T) {
		env := newKYCTestEnv(t)

		_, err := env.svc.Reject(ctx, env.school.ID, "incomplete")
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
	})
}

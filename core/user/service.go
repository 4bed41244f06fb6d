package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/academiahub/backend/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetTenantUserByEmail(ctx context.Context, tenantID, email string) (User, error)
		GetTenantPromoter(ctx context.Context, tenantID string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) checkUniqueness(email string) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		TenantID:  nu.TenantID,
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Role:      nu.Role,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetTenantUserByEmail(ctx context.Context, tenantID, email string) (User, error) {
	return svc.repo.GetTenantUserByEmail(ctx, tenantID, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetTenantPromoter(ctx context.Context, tenantID string) (User, error) {
	return svc.repo.GetTenantPromoter(ctx, tenantID)
}

func (svc *Service) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	err := svc.repo.CheckEmailUniqueness(ctx, core.CleanString(email, true /* lower */))
	if err == ErrEmailExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetLastLogin records a successful login; a first login also activates a
// pending account.
func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	if usr.Status == StatusPending {
		usr.Status = StatusActive
	}
	return svc.repo.UpdateUser(ctx, usr)
}

// SendTemporaryPassword emails a promoter their generated password after
// registration finalization.
func (svc *Service) SendTemporaryPassword(usr User, schoolName, password string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.FirstName + " " + usr.LastName, Address: usr.Email}},
		Subject: "Your administrator account",
		BodyStr: fmt.Sprintf(
			"Your school %q has been created.\n\n"+
				"Sign in at %s with this temporary password and change it right away:\n\n\t%s\n",
			schoolName, svc.conf.FrontendBaseURL, password,
		),
	})
}

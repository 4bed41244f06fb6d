package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiahub/backend/core/user"
)

type userRow struct {
	ID           string      `db:"id"`
	TenantID     null.String `db:"tenant_id"`
	Email        string      `db:"email"`
	FirstName    string      `db:"first_name"`
	LastName     string      `db:"last_name"`
	Role         string      `db:"role"`
	Status       string      `db:"status"`
	KYCVerified  bool        `db:"kyc_verified"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) pack(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		TenantID:     null.NewString(usr.TenantID, usr.TenantID != ""),
		Email:        usr.Email,
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Role:         string(usr.Role),
		Status:       string(usr.Status),
		KYCVerified:  usr.KYCVerified,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unpack(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		TenantID:     row.TenantID.String,
		Email:        row.Email,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Role:         user.Role(row.Role),
		Status:       user.Status(row.Status),
		KYCVerified:  row.KYCVerified,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string) error {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

const userInsert = `
INSERT INTO users (
	id, tenant_id, email, first_name, last_name, role, status,
	kyc_verified, password_hash, created_at, updated_at, last_login
) VALUES (
	:id, :tenant_id, :email, :first_name, :last_name, :role, :status,
	:kyc_verified, :password_hash, :created_at, :updated_at, :last_login
)`

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, userInsert, repo.pack(usr)); err != nil {
		if mapped := mapConstraintErr(err); mapped != err {
			return user.User{}, mapped
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getOne(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "fetching user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getOne(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (repo userRepository) GetTenantUserByEmail(ctx context.Context, tenantID, email string) (user.User, error) {
	return repo.getOne(ctx, `SELECT * FROM users WHERE tenant_id = $1 AND email = $2`, tenantID, email)
}

func (repo userRepository) GetTenantPromoter(ctx context.Context, tenantID string) (user.User, error) {
	return repo.getOne(ctx, `SELECT * FROM users WHERE tenant_id = $1 AND role = $2`, tenantID, string(user.RolePromoter))
}

const userUpdate = `
UPDATE users SET
	email = :email,
	first_name = :first_name,
	last_name = :last_name,
	role = :role,
	status = :status,
	kyc_verified = :kyc_verified,
	password_hash = :password_hash,
	updated_at = :updated_at,
	last_login = :last_login
WHERE id = :id`

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.NamedExecContext(ctx, userUpdate, repo.pack(usr))
	if err != nil {
		if mapped := mapConstraintErr(err); mapped != err {
			return user.User{}, mapped
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

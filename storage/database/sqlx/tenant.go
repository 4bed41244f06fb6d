package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiahub/backend/core/tenant"
)

type tenantRow struct {
	ID                 string      `db:"id"`
	Name               string      `db:"name"`
	Subdomain          string      `db:"subdomain"`
	Status             string      `db:"status"`
	KYCStatus          string      `db:"kyc_status"`
	PaymentStatus      null.String `db:"payment_status"`
	Address            null.String `db:"address"`
	City               null.String `db:"city"`
	Country            null.String `db:"country"`
	Phone              null.String `db:"phone"`
	Settings           null.JSON   `db:"settings"`
	KYCSubmittedAt     null.Time   `db:"kyc_submitted_at"`
	KYCVerifiedAt      null.Time   `db:"kyc_verified_at"`
	KYCRejectionReason null.String `db:"kyc_rejection_reason"`
	CreatedAt          null.Time   `db:"created_at"`
	UpdatedAt          null.Time   `db:"updated_at"`
}

type tenantRepository struct {
	db *sqlx.DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *sqlx.DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo tenantRepository) pack(t tenant.Tenant) tenantRow {
	row := tenantRow{
		ID:                 t.ID,
		Name:               t.Name,
		Subdomain:          t.Subdomain,
		Status:             string(t.Status),
		KYCStatus:          string(t.KYCStatus),
		PaymentStatus:      null.NewString(t.PaymentStatus, t.PaymentStatus != ""),
		Address:            null.NewString(t.Address, t.Address != ""),
		City:               null.NewString(t.City, t.City != ""),
		Country:            null.NewString(t.Country, t.Country != ""),
		Phone:              null.NewString(t.Phone, t.Phone != ""),
		KYCSubmittedAt:     null.NewTime(t.KYCSubmittedAt.UTC(), !t.KYCSubmittedAt.IsZero()),
		KYCVerifiedAt:      null.NewTime(t.KYCVerifiedAt.UTC(), !t.KYCVerifiedAt.IsZero()),
		KYCRejectionReason: null.NewString(t.KYCRejectionReason, t.KYCRejectionReason != ""),
		CreatedAt:          null.NewTime(t.CreatedAt.UTC(), !t.CreatedAt.IsZero()),
		UpdatedAt:          null.NewTime(t.UpdatedAt.UTC(), !t.UpdatedAt.IsZero()),
	}
	if len(t.Settings) > 0 {
		if data, err := json.Marshal(t.Settings); err == nil {
			row.Settings = null.JSONFrom(data)
		}
	}
	return row
}

func (repo tenantRepository) unpack(row tenantRow) tenant.Tenant {
	t := tenant.Tenant{
		ID:                 row.ID,
		Name:               row.Name,
		Subdomain:          row.Subdomain,
		Status:             tenant.Status(row.Status),
		KYCStatus:          tenant.KYCStatus(row.KYCStatus),
		PaymentStatus:      row.PaymentStatus.String,
		Address:            row.Address.String,
		City:               row.City.String,
		Country:            row.Country.String,
		Phone:              row.Phone.String,
		KYCSubmittedAt:     row.KYCSubmittedAt.Time,
		KYCVerifiedAt:      row.KYCVerifiedAt.Time,
		KYCRejectionReason: row.KYCRejectionReason.String,
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
	}
	if row.Settings.Valid {
		_ = json.Unmarshal(row.Settings.JSON, &t.Settings)
	}
	return t
}

const tenantInsert = `
INSERT INTO tenants (
	id, name, subdomain, status, kyc_status, payment_status,
	address, city, country, phone, settings,
	kyc_submitted_at, kyc_verified_at, kyc_rejection_reason, created_at, updated_at
) VALUES (
	:id, :name, :subdomain, :status, :kyc_status, :payment_status,
	:address, :city, :country, :phone, :settings,
	:kyc_submitted_at, :kyc_verified_at, :kyc_rejection_reason, :created_at, :updated_at
)`

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	t.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, tenantInsert, repo.pack(t)); err != nil {
		if mapped := mapConstraintErr(err); mapped != err {
			return tenant.Tenant{}, mapped
		}
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return t, nil
}

func (repo tenantRepository) GetTenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	var row tenantRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM tenants WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "fetching tenant by id")
	}
	return repo.unpack(row), nil
}

func (repo tenantRepository) GetTenantBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error) {
	var row tenantRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM tenants WHERE subdomain = $1`, subdomain)
	if err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "fetching tenant by subdomain")
	}
	return repo.unpack(row), nil
}

func (repo tenantRepository) CheckSubdomainUniqueness(ctx context.Context, subdomain string) error {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenants WHERE subdomain = $1)`, subdomain)
	if err != nil {
		return errors.Wrap(err, "checking subdomain uniqueness")
	}
	if exists {
		return tenant.ErrSubdomainExists
	}
	return nil
}

const tenantKYCUpdate = `
UPDATE tenants SET
	status = :status,
	kyc_status = :kyc_status,
	kyc_submitted_at = :kyc_submitted_at,
	kyc_verified_at = :kyc_verified_at,
	kyc_rejection_reason = :kyc_rejection_reason,
	updated_at = :updated_at
WHERE id = :id`

func (repo tenantRepository) UpdateTenantKYC(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	res, err := repo.db.NamedExecContext(ctx, tenantKYCUpdate, repo.pack(t))
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant KYC")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return t, nil
}

func (repo tenantRepository) SetTenantPaymentStatus(ctx context.Context, id, status string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE tenants SET payment_status = $1, updated_at = now() WHERE id = $2`, status, id)
	return errors.Wrap(err, "updating tenant payment status")
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiahub/backend/core/kyc"
)

type kycDocumentRow struct {
	TenantID    string      `db:"tenant_id"`
	Type        string      `db:"type"`
	FileRef     string      `db:"file_ref"`
	Description null.String `db:"description"`
	UploadedAt  null.Time   `db:"uploaded_at"`
}

type kycRepository struct {
	db *sqlx.DB
}

var _ kyc.Repository = (*kycRepository)(nil) // interface compliance check

func NewKYCRepository(db *sqlx.DB) *kycRepository {
	return &kycRepository{db: db}
}

func (repo kycRepository) GetTenantDocuments(ctx context.Context, tenantID string) ([]kyc.Document, error) {
	var rows []kycDocumentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT tenant_id, type, file_ref, description, uploaded_at FROM kyc_documents WHERE tenant_id = $1 ORDER BY type`,
		tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "querying KYC documents")
	}
	docs := make([]kyc.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, kyc.Document{
			Type:        kyc.DocumentType(row.Type),
			FileRef:     row.FileRef,
			Description: row.Description.String,
			UploadedAt:  row.UploadedAt.Time,
		})
	}
	return docs, nil
}

// ReplaceTenantDocuments swaps the tenant's whole document set in one
// transaction; a resubmission never edits documents in place.
func (repo kycRepository) ReplaceTenantDocuments(ctx context.Context, tenantID string, docs []kyc.Document) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM kyc_documents WHERE tenant_id = $1`, tenantID); err != nil {
		return errors.Wrap(err, "clearing previous documents")
	}
	for _, doc := range docs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO kyc_documents (tenant_id, type, file_ref, description, uploaded_at) VALUES ($1, $2, $3, $4, $5)`,
			tenantID, string(doc.Type), doc.FileRef,
			null.NewString(doc.Description, doc.Description != ""),
			doc.UploadedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting document")
		}
	}
	return errors.Wrap(tx.Commit(), "committing documents")
}

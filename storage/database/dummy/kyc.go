package dummydb

import (
	"context"
	"sort"

	"github.com/academiahub/backend/core/kyc"
)

type kycRepository struct {
	db *kycTable
}

var _ kyc.Repository = (*kycRepository)(nil) // interface compliance check

func NewKYCRepository(db *DB) *kycRepository {
	return &kycRepository{db: db.kyc}
}

func (repo *kycRepository) GetTenantDocuments(ctx context.Context, tenantID string) ([]kyc.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	docs := make([]kyc.Document, len(repo.db.table[tenantID]))
	copy(docs, repo.db.table[tenantID])
	sort.Slice(docs, func(i, j int) bool { return docs[i].Type < docs[j].Type })
	return docs, nil
}

func (repo *kycRepository) ReplaceTenantDocuments(ctx context.Context, tenantID string, docs []kyc.Document) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[tenantID] = append([]kyc.Document(nil), docs...)
	return nil
}

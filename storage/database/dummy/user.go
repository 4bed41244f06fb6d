package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/academiahub/backend/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, row := range repo.db.table {
		if row.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetTenantUserByEmail(ctx context.Context, tenantID, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if usr.TenantID == tenantID && usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetTenantPromoter(ctx context.Context, tenantID string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if usr.TenantID == tenantID && usr.Role == user.RolePromoter {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

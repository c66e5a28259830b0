package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/lms-portal/core/user"
)

type accountRepository struct {
	db *accountTable
}

var _ user.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) user.Repository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) query() []user.Account {
	accounts := make([]user.Account, 0, len(repo.db.table))
	for _, acc := range repo.db.table {
		accounts = append(accounts, *acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

func (repo *accountRepository) CheckContactUniqueness(_ context.Context, email, phone string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acc := range repo.query() {
		if email != "" && acc.Email == email {
			return user.ErrEmailExists
		}
		if phone != "" && acc.Phone == phone {
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc user.Account) (user.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.table {
		if acc.Email != "" && other.Email == acc.Email {
			return user.Account{}, user.ErrEmailExists
		}
		if acc.Phone != "" && other.Phone == acc.Phone {
			return user.Account{}, user.ErrPhoneExists
		}
	}
	repo.db.pkCount++
	acc.ID = repo.db.pkCount
	repo.db.table[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id int64) (user.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acc, ok := repo.db.table[id]; ok {
		return *acc, nil
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (user.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acc := range repo.query() {
		if email != "" && acc.Email == email {
			return acc, nil
		}
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *accountRepository) GetAccountByPhone(_ context.Context, phone string) (user.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acc := range repo.query() {
		if phone != "" && acc.Phone == phone {
			return acc, nil
		}
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acc user.Account) (user.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[acc.ID]
	if !ok {
		return user.Account{}, user.ErrNotFound
	}
	orig.Name = acc.Name
	orig.Email = acc.Email
	orig.Phone = acc.Phone
	orig.Role = acc.Role
	orig.IsActive = acc.IsActive
	orig.PasswordHash = acc.PasswordHash
	orig.UpdatedAt = acc.UpdatedAt
	return *orig, nil
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id int64, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	acc, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	acc.LastLogin = at
	return nil
}

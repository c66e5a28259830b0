package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core/user"
)

type accountRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) user.Repository {
	return &accountRepository{db: db}
}

// account is the accounts row; empty contacts are stored as NULL to keep them unique.
type account struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	Email        sql.NullString `db:"email"`
	Phone        sql.NullString `db:"phone"`
	Role         string         `db:"role"`
	IsActive     bool           `db:"is_active"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func toRow(acc user.Account) account {
	return account{
		ID:           acc.ID,
		Name:         acc.Name,
		Email:        sql.NullString{String: acc.Email, Valid: acc.Email != ""},
		Phone:        sql.NullString{String: acc.Phone, Valid: acc.Phone != ""},
		Role:         string(acc.Role),
		IsActive:     acc.IsActive,
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    sql.NullTime{Time: acc.LastLogin.UTC(), Valid: !acc.LastLogin.IsZero()},
	}
}

func (row account) toAccount() user.Account {
	acc := user.Account{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email.String,
		Phone:        row.Phone.String,
		Role:         user.Role(row.Role),
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		acc.LastLogin = row.LastLogin.Time.UTC()
	}
	return acc
}

const selectAccount = `SELECT id, name, email, phone, role, is_active, password_hash, created_at, updated_at, last_login FROM accounts`

func (repo *accountRepository) CheckContactUniqueness(ctx context.Context, email, phone string) error {
	var rows []account
	q := repo.db.Rebind(selectAccount + ` WHERE email = ? OR phone = ?`)
	if err := repo.db.SelectContext(ctx, &rows, q, nullable(email), nullable(phone)); err != nil {
		return errors.Wrap(err, "checking contact uniqueness")
	}
	for _, row := range rows {
		if email != "" && row.Email.String == email {
			return user.ErrEmailExists
		}
		if phone != "" && row.Phone.String == phone {
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc user.Account) (user.Account, error) {
	row := toRow(acc)
	q := repo.db.Rebind(`
		INSERT INTO accounts (name, email, phone, role, is_active, password_hash, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := repo.db.QueryRowxContext(ctx, q,
		row.Name, row.Email, row.Phone, row.Role, row.IsActive, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).Scan(&acc.ID)
	if err != nil {
		return user.Account{}, errors.Wrap(uniqueErr(err), "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) get(ctx context.Context, where string, arg interface{}) (user.Account, error) {
	var row account
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(selectAccount+" WHERE "+where+" = ?"), arg); err != nil {
		if err == sql.ErrNoRows {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) GetAccountByID(ctx context.Context, id int64) (user.Account, error) {
	return repo.get(ctx, "id", id)
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (user.Account, error) {
	return repo.get(ctx, "email", email)
}

func (repo *accountRepository) GetAccountByPhone(ctx context.Context, phone string) (user.Account, error) {
	return repo.get(ctx, "phone", phone)
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc user.Account) (user.Account, error) {
	row := toRow(acc)
	q := repo.db.Rebind(`
		UPDATE accounts
		SET name = ?, email = ?, phone = ?, role = ?, is_active = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		row.Name, row.Email, row.Phone, row.Role, row.IsActive, row.PasswordHash, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return user.Account{}, errors.Wrap(uniqueErr(err), "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.Account{}, user.ErrNotFound
	}
	return repo.GetAccountByID(ctx, acc.ID)
}

func (repo *accountRepository) SetLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE accounts SET last_login = ? WHERE id = ?`), at.UTC(), id)
	return errors.Wrap(err, "setting last login")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// uniqueErr maps unique-constraint violations of both drivers to the domain errors.
func uniqueErr(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE") && !strings.Contains(msg, "unique") {
		return err
	}
	switch {
	case strings.Contains(msg, "email"):
		return user.ErrEmailExists
	case strings.Contains(msg, "phone"):
		return user.ErrPhoneExists
	}
	return err
}

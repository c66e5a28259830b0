package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
	"github.com/trezcool/lms-portal/services/logger"
	"github.com/trezcool/lms-portal/storage/database"
)

var dbCount int64

// PrepareDB returns a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	goose.SetLogger(goose.NopLogger())

	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), atomic.AddInt64(&dbCount, 1))
	db, err := database.OpenSQLite("file:" + name + "?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewValidator returns a validator with every domain tag registered.
func NewValidator() *core.Validator {
	v := core.NewValidator()
	user.InitValidators(v)
	return v
}

// NewLogger returns a logger that reports nothing.
func NewLogger() core.Logger {
	return logsvc.NewNopLogger()
}

// NewConfig returns the TEST configuration.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	return core.NewConfig()
}

func CreateAccount(
	t *testing.T,
	repo user.Repository,
	name, email, phone, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.Account {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := user.Account{
		Name:      name,
		Email:     email,
		Phone:     phone,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
	"github.com/trezcool/lms-portal/services/email"
	"github.com/trezcool/lms-portal/storage/database/sqlx"
	"github.com/trezcool/lms-portal/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewAccountRepository(db)

	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger()

	// start CLI
	return &commandLine{
		db: db,
		usrSvc: user.NewService(
			usrRepo,
			testutil.NewValidator(),
			emailsvc.NewConsoleServiceMock(conf, logger),
			logger,
			conf,
		),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantField  string // the field a *core.ValidationError must report
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantField != "":
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "want a validation error, got %v", err)
		assert.Contains(t, vErr.FieldMap(), tt.wantField)
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Equal(t, tt.wantErrStr, err.Error())
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotDir string
	gooseRunFunc = func(_ context.Context, command string, _ *sql.DB, dir string, args ...string) error {
		gotDir = dir
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Equal(t, "migrations/sqlite3", gotDir)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	testutil.CreateAccount(t, usrRepo, "Ada Admin", "admin@lms.local", "", "", user.RoleAdmin, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no contact", args: []string{"adduser", "-name", "Tina"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Tina", "-email", "tina@lms.local"}, wantErr: errHelp},
		{name: "short password", args: []string{"adduser", "-name", "Tina", "-email", "tina@lms.local"}, extra: extra{pwd: "short"}, wantField: "password"},
		{name: "invalid role", args: []string{"adduser", "-name", "Tina", "-email", "tina@lms.local", "-role", "JANITOR"}, extra: extra{pwd: "Teach@12345"}, wantField: "role"},
		{name: "existing email", args: []string{"adduser", "-name", "Ada", "-email", "Admin@lms.local"}, extra: extra{pwd: "Admin@12345"}, wantField: "email"},
		{name: "faculty", args: []string{"adduser", "-name", "Tina", "-email", "Tina@lms.local", "-role", "FACULTY"}, extra: extra{pwd: "Teach@12345"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	acc, err := usrRepo.GetAccountByEmail(context.Background(), "tina@lms.local")
	require.NoError(t, err)
	assert.Equal(t, "Tina", acc.Name)
	assert.Equal(t, user.RoleFaculty, acc.Role)
	assert.True(t, acc.IsActive)
	assert.NoError(t, acc.CheckPassword("Teach@12345"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	acc := testutil.CreateAccount(t, usrRepo, "Sam Student", "sam@lms.local", "+243810000000", "Student@123", user.RoleStudent, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "contact but no password", args: []string{"resetpassword", "-contact", "lol@lms.local"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-contact", "lol@lms.local"}, extra: extra{pwd: "Password@1"}, wantErr: user.ErrNotFound},
		{name: "short password", args: []string{"resetpassword", "-contact", acc.Email}, extra: extra{pwd: "short"}, wantField: "password"},
		{name: "reset with email", args: []string{"resetpassword", "-contact", "SAM@lms.local"}, extra: extra{pwd: "Password@1"}},
		{name: "reset with phone", args: []string{"resetpassword", "-contact", acc.Phone}, extra: extra{pwd: "Password@2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil || tt.extra == nil {
				return
			}
			refreshed, err := usrRepo.GetAccountByID(context.Background(), acc.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.extra.(extra).pwd))
		})
	}
}

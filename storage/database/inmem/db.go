package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

type (
	// DB is a process-local database; everything is lost on restart.
	DB struct {
		account *accountTable
		session *sessionTable
	}

	accountTable struct {
		sync.RWMutex
		pkCount int64
		table   map[int64]*user.Account
	}

	sessionTable struct {
		sync.Mutex
		table map[string]sessionRow
	}

	sessionRow struct {
		rec       session.Record
		expiresAt time.Time
	}
)

func Open() *DB {
	return &DB{
		account: &accountTable{table: make(map[int64]*user.Account)},
		session: &sessionTable{table: make(map[string]sessionRow)},
	}
}

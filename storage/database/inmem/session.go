package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/lms-portal/core/session"
)

type SessionRepository struct {
	db      *sessionTable
	ttl     time.Duration
	nowFunc func() time.Time
}

var _ session.Persistence = (*SessionRepository)(nil)

func NewSessionRepository(db *DB, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db.session, ttl: ttl, nowFunc: time.Now}
}

func (repo *SessionRepository) Save(_ context.Context, sid string, rec session.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[sid] = sessionRow{rec: rec, expiresAt: repo.nowFunc().Add(repo.ttl)}
	return nil
}

func (repo *SessionRepository) Load(_ context.Context, sid string) (session.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.table[sid]
	if !ok || row.rec.IsEmpty() {
		return session.Record{}, session.ErrRecordNotFound
	}
	if !repo.nowFunc().Before(row.expiresAt) {
		delete(repo.db.table, sid)
		return session.Record{}, session.ErrRecordNotFound
	}
	return row.rec, nil
}

func (repo *SessionRepository) Remove(_ context.Context, sid string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, sid)
	return nil
}

// DeleteExpired purges expired records and returns how many were removed.
func (repo *SessionRepository) DeleteExpired(context.Context) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	now := repo.nowFunc()
	for sid, row := range repo.db.table {
		if !now.Before(row.expiresAt) {
			delete(repo.db.table, sid)
			n++
		}
	}
	return n, nil
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core/session"
)

// SessionRepository stores tab session records in the tab_sessions table.
type SessionRepository struct {
	db      *sqlx.DB
	ttl     time.Duration
	nowFunc func() time.Time
}

var _ session.Persistence = (*SessionRepository)(nil)

func NewSessionRepository(db *sqlx.DB, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, ttl: ttl, nowFunc: time.Now}
}

func (repo *SessionRepository) Save(ctx context.Context, sid string, rec session.Record) error {
	q := repo.db.Rebind(`
		INSERT INTO tab_sessions (sid, token, user_data, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (sid) DO UPDATE
		SET token = excluded.token, user_data = excluded.user_data, expires_at = excluded.expires_at`)
	expiresAt := repo.nowFunc().Add(repo.ttl).Unix()
	if _, err := repo.db.ExecContext(ctx, q, sid, rec.Token, rec.User, expiresAt); err != nil {
		return errors.Wrap(err, "saving session")
	}
	return nil
}

func (repo *SessionRepository) Load(ctx context.Context, sid string) (session.Record, error) {
	var row struct {
		Token string `db:"token"`
		User  string `db:"user_data"`
	}
	q := repo.db.Rebind(`SELECT token, user_data FROM tab_sessions WHERE sid = ? AND expires_at > ?`)
	if err := repo.db.GetContext(ctx, &row, q, sid, repo.nowFunc().Unix()); err != nil {
		if err == sql.ErrNoRows {
			return session.Record{}, session.ErrRecordNotFound
		}
		return session.Record{}, errors.Wrap(err, "loading session")
	}
	rec := session.Record{Token: row.Token, User: row.User}
	if rec.IsEmpty() {
		return session.Record{}, session.ErrRecordNotFound
	}
	return rec, nil
}

func (repo *SessionRepository) Remove(ctx context.Context, sid string) error {
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM tab_sessions WHERE sid = ?`), sid); err != nil {
		return errors.Wrap(err, "removing session")
	}
	return nil
}

// DeleteExpired purges expired records and returns how many were removed.
func (repo *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	q := repo.db.Rebind(`DELETE FROM tab_sessions WHERE expires_at <= ?`)
	res, err := repo.db.ExecContext(ctx, q, repo.nowFunc().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

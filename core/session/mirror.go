package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
)

var errExpiredToken = errors.New("token expired")

// VerifyFunc looks up the profile behind the current bearer token.
type VerifyFunc func(ctx context.Context) (user.Profile, error)

type MirrorOptions struct {
	// Timeout bounds every persistence call made on behalf of a Store mutation.
	Timeout time.Duration
	// Verify, when set, is called during Restore to confirm the restored token is still accepted.
	Verify VerifyFunc
}

// Mirror keeps one tab's Store, its durable Record and its API client's bearer token in agreement.
type Mirror struct {
	sid       string
	store     *Store
	db        Persistence
	auth      Authorizer
	validator *core.Validator
	logger    core.Logger
	opts      MirrorOptions

	restoreOnce sync.Once
	restored    chan struct{}

	nowFunc func() time.Time
}

func NewMirror(
	sid string,
	store *Store,
	db Persistence,
	auth Authorizer,
	validator *core.Validator,
	logger core.Logger,
	opts MirrorOptions,
) *Mirror {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Mirror{
		sid:       sid,
		store:     store,
		db:        db,
		auth:      auth,
		validator: validator,
		logger:    logger,
		opts:      opts,
		restored:  make(chan struct{}),
		nowFunc:   time.Now,
	}
}

// Attach subscribes the mirror to its Store and to its API client's authorization failures.
// The returned func undoes both subscriptions.
func (m *Mirror) Attach() (detach func()) {
	unsubscribe := m.store.Subscribe(m.mirror)
	cancel := m.auth.OnAuthorizationExpired(m.AuthorizationExpired)
	return func() {
		cancel()
		unsubscribe()
	}
}

// AuthorizationExpired is the implicit logout: the remote API no longer accepts the token.
func (m *Mirror) AuthorizationExpired() {
	if m.store.Get().IsAuthenticated() {
		m.logger.Info("authorization expired; clearing session", map[string]interface{}{"tab": m.sid})
	}
	m.store.Clear()
}

func (m *Mirror) mirror(sess Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()

	if !sess.IsAuthenticated() {
		m.auth.ClearBearer()
		if err := m.db.Remove(ctx, m.sid); err != nil {
			m.logger.Error("removing session record", errors.Wrap(err, "removing session record"), map[string]interface{}{"tab": m.sid})
		}
		return
	}

	m.auth.SetBearer(sess.Token)
	data, err := json.Marshal(sess.User)
	if err != nil {
		m.logger.Error("encoding session user", errors.Wrap(err, "encoding session user"), *sess.User)
		return
	}
	if err = m.db.Save(ctx, m.sid, Record{Token: sess.Token, User: string(data)}); err != nil {
		m.logger.Error("saving session record", errors.Wrap(err, "saving session record"), *sess.User)
	}
}

// Restore loads the tab's durable record into the Store. Any record that is missing, partial,
// malformed or expired, and any failure to read or verify it, leaves the Store empty.
// Restore runs at most once; Ready is closed when it returns.
func (m *Mirror) Restore(ctx context.Context) {
	m.restoreOnce.Do(func() {
		defer close(m.restored)
		m.restore(ctx)
	})
}

func (m *Mirror) restore(ctx context.Context) {
	rec, err := m.db.Load(ctx, m.sid)
	if err != nil {
		if errors.Cause(err) != ErrRecordNotFound {
			m.logger.Warn("loading session record", errors.Wrap(err, "loading session record"), map[string]interface{}{"tab": m.sid})
		}
		return
	}

	usr, err := m.decode(rec)
	if err != nil {
		m.logger.Info("discarding session record", map[string]interface{}{"tab": m.sid, "reason": err.Error()})
		m.discard(ctx)
		return
	}

	if m.opts.Verify != nil {
		m.auth.SetBearer(rec.Token)
		fresh, err := m.opts.Verify(ctx)
		if err != nil || fresh.Role != usr.Role {
			m.auth.ClearBearer()
			m.logger.Info("session record not accepted by the API", map[string]interface{}{"tab": m.sid}, usr)
			m.discard(ctx)
			return
		}
		usr = fresh
	}

	m.store.Set(rec.Token, usr)
}

func (m *Mirror) decode(rec Record) (user.Profile, error) {
	if rec.Token == "" || rec.User == "" {
		return user.Profile{}, errors.New("partial record")
	}
	usr, err := user.DecodeProfile([]byte(rec.User), m.validator)
	if err != nil {
		return user.Profile{}, err
	}
	if tokenExpired(rec.Token, m.nowFunc()) {
		return user.Profile{}, errExpiredToken
	}
	return usr, nil
}

func (m *Mirror) discard(ctx context.Context) {
	if err := m.db.Remove(ctx, m.sid); err != nil {
		m.logger.Error("removing session record", errors.Wrap(err, "removing session record"), map[string]interface{}{"tab": m.sid})
	}
}

// Ready is closed once Restore has completed (successfully or not).
func (m *Mirror) Ready() <-chan struct{} {
	return m.restored
}

// Restored reports whether Restore has completed.
func (m *Mirror) Restored() bool {
	select {
	case <-m.restored:
		return true
	default:
		return false
	}
}

// MarkRestored marks a brand-new tab as restored without reading storage: it cannot have a record yet.
func (m *Mirror) MarkRestored() {
	m.restoreOnce.Do(func() { close(m.restored) })
}

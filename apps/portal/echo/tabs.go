package echoportal

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
	"github.com/trezcool/lms-portal/services/api"
)

// Tab is one browser tab's session: its Store, the Mirror keeping it durable
// and the API client carrying its token.
type Tab struct {
	ID     string
	Store  *session.Store
	Mirror *session.Mirror
	API    *apisvc.Client

	detach   func()
	lastSeen int64 // unix nano
}

func (t *Tab) touch(now time.Time) {
	atomic.StoreInt64(&t.lastSeen, now.UnixNano())
}

func (t *Tab) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, atomic.LoadInt64(&t.lastSeen)))
}

// expirer is implemented by persistence backends that do not expire records on their own.
type expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TabManager keeps the tabs seen recently in memory and restores the others from persistence.
type TabManager struct {
	conf       *core.Config
	db         session.Persistence
	httpClient *http.Client
	authSvc    *auth.Service
	validator  *core.Validator
	logger     core.Logger

	mu   sync.Mutex
	tabs map[string]*Tab

	nowFunc func() time.Time
}

func NewTabManager(
	conf *core.Config,
	db session.Persistence,
	httpClient *http.Client,
	authSvc *auth.Service,
	validator *core.Validator,
	logger core.Logger,
) *TabManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: conf.API.Timeout}
	}
	return &TabManager{
		conf:       conf,
		db:         db,
		httpClient: httpClient,
		authSvc:    authSvc,
		validator:  validator,
		logger:     logger,
		tabs:       make(map[string]*Tab),
		nowFunc:    time.Now,
	}
}

func (m *TabManager) newTab(id string) *Tab {
	tab := &Tab{
		ID:    id,
		Store: session.NewStore(),
		API:   apisvc.NewClient(m.conf.API.BaseURL, m.httpClient),
	}
	opts := session.MirrorOptions{Timeout: m.conf.Session.PersistTimeout}
	if m.conf.Session.VerifyOnRestore {
		opts.Verify = func(ctx context.Context) (user.Profile, error) {
			return m.authSvc.Me(ctx, tab.API)
		}
	}
	tab.Mirror = session.NewMirror(id, tab.Store, m.db, tab.API, m.validator, m.logger, opts)
	tab.detach = tab.Mirror.Attach()
	tab.touch(m.nowFunc())
	return tab
}

// Open returns the tab identified by sid. Unknown but well-formed ids are restored
// from persistence in the background; missing or malformed ids get a guest tab.
func (m *TabManager) Open(sid string) *Tab {
	if _, err := uuid.Parse(sid); err != nil {
		return m.guest()
	}

	m.mu.Lock()
	tab, ok := m.tabs[sid]
	if !ok {
		tab = m.newTab(sid)
		m.tabs[sid] = tab
	}
	m.mu.Unlock()

	if ok {
		tab.touch(m.nowFunc())
		return tab
	}

	go func() {
		timeout := m.conf.Session.PersistTimeout
		if m.conf.Session.VerifyOnRestore {
			timeout += m.conf.API.Timeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		tab.Mirror.Restore(ctx)
	}()
	return tab
}

// guest returns a signed-out tab without an id. It is neither registered nor
// mirrored: a browser only gets a tab id from a successful credential exchange.
func (m *TabManager) guest() *Tab {
	tab := &Tab{
		Store:  session.NewStore(),
		API:    apisvc.NewClient(m.conf.API.BaseURL, m.httpClient),
		detach: func() {},
	}
	tab.Mirror = session.NewMirror("", tab.Store, m.db, tab.API, m.validator, m.logger, session.MirrorOptions{})
	tab.Mirror.MarkRestored()
	return tab
}

// IsGuest reports whether the tab was never issued an id.
func (t *Tab) IsGuest() bool {
	return t.ID == ""
}

// Candidate returns an unregistered, restored tab used to run a credential exchange
// under a fresh id. Promote it on success, Discard it otherwise.
func (m *TabManager) Candidate() *Tab {
	tab := m.newTab(uuid.New().String())
	tab.Mirror.MarkRestored()
	return tab
}

// Promote registers next in place of prev and signs prev out.
func (m *TabManager) Promote(prev, next *Tab) {
	m.mu.Lock()
	m.tabs[next.ID] = next
	if !prev.IsGuest() {
		delete(m.tabs, prev.ID)
	}
	m.mu.Unlock()

	prev.Store.Clear()
	prev.detach()
}

// Discard drops a candidate tab that never got credentials.
func (m *TabManager) Discard(tab *Tab) {
	tab.detach()
}

// Len returns the number of tabs in memory.
func (m *TabManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

// Evict drops the tabs idle for longer than the idle timeout from memory.
// Their durable records stay and are restored if the tab comes back.
func (m *TabManager) Evict() int {
	now := m.nowFunc()
	var evicted []*Tab

	m.mu.Lock()
	for id, tab := range m.tabs {
		if tab.idleSince(now) > m.conf.Session.IdleTimeout {
			evicted = append(evicted, tab)
			delete(m.tabs, id)
		}
	}
	m.mu.Unlock()

	for _, tab := range evicted {
		tab.detach()
	}
	return len(evicted)
}

// Run evicts idle tabs and purges expired records until ctx is done.
func (m *TabManager) Run(ctx context.Context) {
	interval := m.conf.Session.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(); n > 0 {
				m.logger.Debug("evicted idle tabs", map[string]interface{}{"count": n})
			}
			if exp, ok := m.db.(expirer); ok {
				if _, err := exp.DeleteExpired(ctx); err != nil {
					m.logger.Error("purging expired sessions", errors.Wrap(err, "purging expired sessions"))
				}
			}
		}
	}
}

// Close detaches every tab.
func (m *TabManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, tab := range m.tabs {
		tab.detach()
		delete(m.tabs, id)
	}
}

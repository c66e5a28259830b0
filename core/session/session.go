// Package session holds the portal's belief about who is signed in for one browser tab,
// and keeps that belief mirrored to durable storage and to the outgoing API credentials.
package session

import (
	"sync"

	"github.com/trezcool/lms-portal/core/user"
)

// Session is the authenticated identity bound to a browser tab.
// Token and User are always set and cleared together.
type Session struct {
	Token string
	User  *user.Profile
}

func (s Session) IsAuthenticated() bool {
	return s.Token != "" && s.User != nil
}

func (s Session) copy() Session {
	if s.User == nil {
		return s
	}
	usr := *s.User
	return Session{Token: s.Token, User: &usr}
}

// Role returns the signed-in user's role, or "" when unauthenticated.
func (s Session) Role() user.Role {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.User.Role
}

// Setter is the single entry point credential exchanges use to populate a session.
type Setter interface {
	Set(token string, usr user.Profile)
}

// Store is the single source of truth for a tab's Session.
//
// Mutations are serialized (last writer wins) and every subscriber has observed a mutation
// before Set or Clear returns. Subscribers must not mutate the Store they observe.
type Store struct {
	wmu sync.Mutex // serializes mutations and their notifications

	mu   sync.RWMutex
	sess Session
	subs []*subscriber
}

type subscriber struct {
	fn func(Session)
}

var _ Setter = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

// Get returns the current Session. It never blocks on I/O.
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.copy()
}

// Set atomically replaces both the token and the user.
func (s *Store) Set(token string, usr user.Profile) {
	if token == "" {
		s.Clear()
		return
	}
	s.mutate(Session{Token: token, User: &usr})
}

// Clear atomically empties the session. Clearing an empty session is a no-op mutation.
func (s *Store) Clear() {
	s.mutate(Session{})
}

func (s *Store) mutate(next Session) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.sess = next
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next.copy())
	}
}

// Subscribe registers fn to be called synchronously after every mutation.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	sub := &subscriber{fn: fn}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, other := range s.subs {
				if other == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

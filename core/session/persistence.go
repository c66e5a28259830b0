package session

import (
	"context"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// Durable entry names; both are written and removed together.
const (
	EntryToken = "token"
	EntryUser  = "user"
)

var ErrRecordNotFound = errors.New("session record not found")

// Record is the durable form of a Session: the bearer token and the JSON-serialized profile.
// An empty field means the entry is absent.
type Record struct {
	Token string
	User  string
}

func (r Record) IsEmpty() bool {
	return r.Token == "" && r.User == ""
}

// Persistence is a durable key-value store scoped per browser tab.
type Persistence interface {
	// Save writes both entries for tab sid, replacing previous ones.
	Save(ctx context.Context, sid string, rec Record) error
	// Load returns the entries stored for tab sid; missing entries are left empty.
	// It returns ErrRecordNotFound when neither entry exists.
	Load(ctx context.Context, sid string) (Record, error)
	// Remove deletes both entries for tab sid. Removing a missing record is not an error.
	Remove(ctx context.Context, sid string) error
}

// Authorizer is implemented by API clients whose outgoing requests carry the session's bearer token.
type Authorizer interface {
	SetBearer(token string)
	ClearBearer()
	// OnAuthorizationExpired registers fn to be called whenever an authenticated call is rejected as unauthorized.
	OnAuthorizationExpired(fn func()) (cancel func())
}

// tokenExpired reports whether token is a JWT whose exp claim is in the past.
// Opaque (non-JWT) tokens never expire from the portal's point of view.
func tokenExpired(token string, now time.Time) bool {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != 0 && now.Unix() >= claims.ExpiresAt
}

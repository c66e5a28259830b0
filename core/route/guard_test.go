package route

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

func signedIn(role user.Role) session.Session {
	return session.Session{Token: "token", User: &user.Profile{ID: 1, Name: "Someone", Role: role}}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		restored bool
		sess     session.Session
		required user.Role
		want     Decision
	}{
		{name: "not restored", sess: signedIn(user.RoleAdmin), required: user.RoleAdmin, want: Decision{State: Loading}},
		{name: "not restored (anonymous)", required: user.RoleStudent, want: Decision{State: Loading}},
		{name: "anonymous", restored: true, required: user.RoleAdmin, want: Decision{State: Unauthenticated, Location: LoginPath}},
		{
			name: "token without user", restored: true, sess: session.Session{Token: "token"}, required: user.RoleFaculty,
			want: Decision{State: Unauthenticated, Location: LoginPath},
		},
		{name: "authorized", restored: true, sess: signedIn(user.RoleFaculty), required: user.RoleFaculty, want: Decision{State: Authorized}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.restored, tt.sess, tt.required)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Location != "", got.Redirect())
		})
	}
}

func TestEvaluate_everyRolePair(t *testing.T) {
	for _, have := range user.Roles() {
		for _, want := range user.Roles() {
			t.Run(fmt.Sprintf("%s on %s page", have, want), func(t *testing.T) {
				got := Evaluate(true, signedIn(have), want)
				if have == want {
					assert.Equal(t, Decision{State: Authorized}, got)
				} else {
					assert.Equal(t, Decision{State: WrongRole, Location: Home(have)}, got)
				}
			})
		}
	}
}

func TestEvaluate_everyGuardedPath(t *testing.T) {
	for _, g := range Default.Groups {
		for _, p := range append(g.Paths(), g.Prefix) {
			t.Run(p, func(t *testing.T) {
				m := Default.Resolve(p)
				if assert.NotNil(t, m.Group) {
					got := Evaluate(true, session.Session{}, m.Group.Role)
					assert.Equal(t, Decision{State: Unauthenticated, Location: LoginPath}, got)
				}
			})
		}
	}
}

func TestHome(t *testing.T) {
	tests := []struct {
		role user.Role
		want string
	}{
		{user.RoleAdmin, "/admin/dashboard"},
		{user.RoleFaculty, "/faculty/dashboard"},
		{user.RoleStudent, "/student/dashboard"},
		{user.Role("TEACHER"), LoginPath},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := Home(tt.role); got != tt.want {
				t.Errorf("Home() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestAfterAPIError(t *testing.T) {
	expired := &auth.Error{Kind: auth.ErrAuthorizationExpired, Cause: &auth.APIError{Status: http.StatusUnauthorized, Authenticated: true}}

	tests := []struct {
		name   string
		err    error
		want   string
		wantOk bool
	}{
		{name: "nil"},
		{name: "expired", err: expired, want: LoginPath, wantOk: true},
		{name: "wrapped expired", err: errors.Wrap(expired, "dashboard"), want: LoginPath, wantOk: true},
		{name: "raw 401 on authenticated call", err: &auth.APIError{Status: http.StatusUnauthorized, Authenticated: true}, want: LoginPath, wantOk: true},
		{name: "401 on login", err: &auth.APIError{Status: http.StatusUnauthorized}},
		{name: "invalid credentials", err: &auth.Error{Kind: auth.ErrInvalidCredentials}},
		{name: "network", err: &auth.Error{Kind: auth.ErrNetwork, Cause: errors.New("dial")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AfterAPIError(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestWatch(t *testing.T) {
	store := session.NewStore()
	var got []Decision
	stop := Watch(store, user.RoleAdmin, func(d Decision) { got = append(got, d) })

	// scenario A then an expiry-driven logout
	store.Set("t1", user.Profile{ID: 1, Name: "Ada", Role: user.RoleAdmin})
	store.Clear()
	stop()
	store.Set("t2", user.Profile{ID: 2, Name: "Sam", Role: user.RoleStudent})

	assert.Equal(t, []Decision{
		{State: Authorized},
		{State: Unauthenticated, Location: LoginPath},
	}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "wrong_role", WrongRole.String())
	assert.Equal(t, "authorized", Authorized.String())
	assert.Equal(t, "unknown", State(42).String())
}

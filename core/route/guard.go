// Package route decides, for every navigation, whether a tab may see a page and where to send it otherwise.
package route

import (
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

const (
	LoginPath = "/login"
	OtpPath   = "/login/otp"
	JoinPath  = "/join"

	AdminHome   = "/admin/dashboard"
	FacultyHome = "/faculty/dashboard"
	StudentHome = "/student/dashboard"
)

type State int

const (
	// Loading means the tab's session has not been restored yet: render a neutral page, never redirect.
	Loading State = iota
	Unauthenticated
	WrongRole
	Authorized
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case WrongRole:
		return "wrong_role"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

// Decision is the outcome of guarding one navigation. Location is set when the navigation must be redirected.
type Decision struct {
	State    State  `json:"-"`
	Location string `json:"location,omitempty"`
}

func (d Decision) Redirect() bool {
	return d.Location != ""
}

// Evaluate guards a page that requires role. It is a pure function of its inputs.
func Evaluate(restored bool, sess session.Session, required user.Role) Decision {
	switch {
	case !restored:
		return Decision{State: Loading}
	case !sess.IsAuthenticated():
		return Decision{State: Unauthenticated, Location: LoginPath}
	case sess.User.Role != required:
		return Decision{State: WrongRole, Location: Home(sess.User.Role)}
	default:
		return Decision{State: Authorized}
	}
}

// Home returns the landing page of role.
func Home(role user.Role) string {
	switch role {
	case user.RoleAdmin:
		return AdminHome
	case user.RoleFaculty:
		return FacultyHome
	case user.RoleStudent:
		return StudentHome
	}
	return LoginPath
}

// AfterAPIError returns where to send the tab after an API call failed with err.
// Only an expired authorization navigates; every other error is shown where it happened.
func AfterAPIError(err error) (location string, ok bool) {
	if err != nil && auth.IsAuthorizationExpired(err) {
		return LoginPath, true
	}
	return "", false
}

// Watch calls fn with a fresh Decision after every mutation of store, until stop is called.
// The tab is restored by the time anyone can mutate its Store.
func Watch(store *session.Store, required user.Role, fn func(Decision)) (stop func()) {
	return store.Subscribe(func(sess session.Session) {
		fn(Evaluate(true, sess, required))
	})
}

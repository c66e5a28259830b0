package user

import (
	"strings"

	"github.com/pkg/errors"
)

// Role is one of a closed set of portal roles. A user's role never changes during a session.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleFaculty Role = "FACULTY"
	RoleStudent Role = "STUDENT"
)

var (
	ErrInvalidRole = errors.New("invalid role")

	roles = []Role{RoleAdmin, RoleFaculty, RoleStudent}
)

// Roles returns every known role.
func Roles() []Role {
	all := make([]Role, len(roles))
	copy(all, roles)
	return all
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.Wrapf(ErrInvalidRole, "%q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleStudent:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Title is the human readable role name.
func (r Role) Title() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleFaculty:
		return "Faculty"
	case RoleStudent:
		return "Student"
	}
	return ""
}

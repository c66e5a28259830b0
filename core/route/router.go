package route

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core/user"
)

// Group is a guarded subtree: every page under Prefix requires Role.
type Group struct {
	Prefix string
	Role   user.Role
	Pages  []string
	// Index is the page the bare Prefix redirects to.
	Index string
}

// Paths returns the absolute paths of the group's pages.
func (g Group) Paths() []string {
	paths := make([]string, len(g.Pages))
	for i, p := range g.Pages {
		paths[i] = g.Prefix + "/" + p
	}
	return paths
}

func (g Group) IndexPath() string {
	return g.Prefix + "/" + g.Index
}

func (g Group) contains(p string) bool {
	return p == g.Prefix || strings.HasPrefix(p, g.Prefix+"/")
}

func (g Group) hasPage(p string) bool {
	for _, page := range g.Paths() {
		if page == p {
			return true
		}
	}
	return false
}

type Kind int

const (
	// Unmatched paths are sent to the table's fallback.
	Unmatched Kind = iota
	Public
	Page
	Index
)

// Match is the result of resolving a request path against a Table.
type Match struct {
	Kind  Kind
	Path  string
	Group *Group
}

// Table maps every path of the portal to its public page, guarded group or fallback.
type Table struct {
	Public   []string
	Groups   []Group
	Fallback string
}

// Default is the portal's route table.
var Default = Table{
	Public: []string{LoginPath, OtpPath, JoinPath},
	Groups: []Group{
		{
			Prefix: "/admin",
			Role:   user.RoleAdmin,
			Pages:  []string{"dashboard", "courses", "questions", "quizzes", "batches"},
			Index:  "dashboard",
		},
		{Prefix: "/faculty", Role: user.RoleFaculty, Pages: []string{"dashboard"}, Index: "dashboard"},
		{Prefix: "/student", Role: user.RoleStudent, Pages: []string{"dashboard"}, Index: "dashboard"},
	},
	Fallback: LoginPath,
}

// Resolve matches p against the table.
func (t Table) Resolve(p string) Match {
	if p == "" {
		p = "/"
	}
	p = path.Clean(p)

	for _, pub := range t.Public {
		if pub == p {
			return Match{Kind: Public, Path: p}
		}
	}
	for i := range t.Groups {
		g := &t.Groups[i]
		if !g.contains(p) {
			continue
		}
		switch {
		case p == g.Prefix:
			return Match{Kind: Index, Path: p, Group: g}
		case g.hasPage(p):
			return Match{Kind: Page, Path: p, Group: g}
		}
		break
	}
	return Match{Kind: Unmatched, Path: p}
}

// Group returns the group guarded by role.
func (t Table) Group(role user.Role) (Group, bool) {
	for _, g := range t.Groups {
		if g.Role == role {
			return g, true
		}
	}
	return Group{}, false
}

// Validate checks that no path is claimed twice: group prefixes do not nest,
// public pages live outside every group and each group's index is one of its pages.
func (t Table) Validate() error {
	if t.Fallback == "" {
		return errors.New("route table: missing fallback")
	}
	roles := make(map[user.Role]string, len(t.Groups))
	for i, g := range t.Groups {
		if !strings.HasPrefix(g.Prefix, "/") || strings.HasSuffix(g.Prefix, "/") {
			return errors.Errorf("route table: malformed prefix %q", g.Prefix)
		}
		if !g.Role.Valid() {
			return errors.Errorf("route table: %s: invalid role %q", g.Prefix, g.Role)
		}
		if other, ok := roles[g.Role]; ok {
			return errors.Errorf("route table: %s and %s both guard %s", other, g.Prefix, g.Role)
		}
		roles[g.Role] = g.Prefix
		if !g.hasPage(g.IndexPath()) {
			return errors.Errorf("route table: %s: index %q is not a page", g.Prefix, g.Index)
		}
		for _, other := range t.Groups[i+1:] {
			if g.contains(other.Prefix) || other.contains(g.Prefix) {
				return errors.Errorf("route table: %s overlaps %s", g.Prefix, other.Prefix)
			}
		}
		for _, pub := range t.Public {
			if g.contains(pub) {
				return errors.Errorf("route table: public page %s is inside %s", pub, g.Prefix)
			}
		}
		if g.contains(t.Fallback) {
			return errors.Errorf("route table: fallback %s is inside %s", t.Fallback, g.Prefix)
		}
	}
	for _, role := range user.Roles() {
		if _, ok := roles[role]; !ok {
			return errors.Errorf("route table: no group for %s", role)
		}
		if Home(role) == LoginPath {
			return errors.Errorf("route table: no home for %s", role)
		}
		g, _ := t.Group(role)
		if !g.hasPage(Home(role)) {
			return errors.Errorf("route table: home of %s is outside %s", role, g.Prefix)
		}
	}
	return nil
}

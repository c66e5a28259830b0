package echoportal

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core/route"
	"github.com/trezcool/lms-portal/core/user"
)

const contextTabKey = "tab"

var errNoTab = errors.New("tab not found in echo.Context")

// tabMiddleware binds every request to its browser tab. The tab cookie is only issued by a credential exchange.
func (p *portal) tabMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var sid string
		if cookie, err := ctx.Cookie(p.conf.Session.CookieName); err == nil {
			sid = cookie.Value
		}
		ctx.Set(contextTabKey, p.tabs.Open(sid))
		return next(ctx)
	}
}

// setTabCookie binds the browser to tab. The cookie lives as long as the browser session.
func (p *portal) setTabCookie(ctx echo.Context, tab *Tab) {
	ctx.SetCookie(&http.Cookie{
		Name:     p.conf.Session.CookieName,
		Value:    tab.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.conf.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func getContextTab(ctx echo.Context) (*Tab, error) {
	if tab, ok := ctx.Get(contextTabKey).(*Tab); ok {
		return tab, nil
	}
	return nil, errNoTab
}

// waitRestored waits, at most the configured restore wait, for the tab's session to be restored.
func (p *portal) waitRestored(ctx echo.Context, tab *Tab) bool {
	if tab.Mirror.Restored() {
		return true
	}
	timer := time.NewTimer(p.conf.Session.RestoreWait)
	defer timer.Stop()

	select {
	case <-tab.Mirror.Ready():
		return true
	case <-timer.C:
	case <-ctx.Request().Context().Done():
	}
	return false
}

// guard only lets the tab through when its session holds role.
func (p *portal) guard(role user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tab, err := getContextTab(ctx)
			if err != nil {
				return err
			}

			decision := route.Evaluate(p.waitRestored(ctx, tab), tab.Store.Get(), role)
			switch decision.State {
			case route.Authorized:
				return next(ctx)
			case route.Loading:
				return p.loading(ctx)
			default:
				if shared.WantsJSON(ctx) {
					code := http.StatusUnauthorized
					if decision.State == route.WrongRole {
						code = http.StatusForbidden
					}
					return ctx.JSON(code, decisionJSON(decision))
				}
				return redirect(ctx, decision.Location)
			}
		}
	}
}

// loading renders a neutral page that reloads itself until the session is restored.
func (p *portal) loading(ctx echo.Context) error {
	ctx.Response().Header().Set("Refresh", "1")
	ctx.Response().Header().Set("Cache-Control", "no-store")
	if shared.WantsJSON(ctx) {
		return ctx.JSON(http.StatusAccepted, decisionJSON(route.Decision{State: route.Loading}))
	}
	return ctx.Render(http.StatusOK, "loading.html", pageData{Title: "Loading"})
}

func decisionJSON(d route.Decision) echo.Map {
	m := echo.Map{"state": d.State.String()}
	if d.Location != "" {
		m["location"] = d.Location
	}
	return m
}

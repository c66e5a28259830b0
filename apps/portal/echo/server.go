package echoportal

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/route"
)

type ServerDeps struct {
	Conf           *core.Config
	Logger         core.Logger
	Tabs           *TabManager
	AuthSvc        *auth.Service
	Routes         route.Table
	DisableReqLogs bool
}

// NewServer returns the portal: public sign-in pages, one guarded group per role and the session endpoints.
func NewServer(deps ServerDeps) *shared.Server {
	if deps.Routes.Groups == nil {
		deps.Routes = route.Default
	}

	s := shared.NewServer(deps.Conf, deps.Conf.Server.Address, deps.DisableReqLogs)
	s.App.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, s.SignalShutdown)
	s.App.Renderer = newRenderer()

	p := &portal{
		conf:    deps.Conf,
		logger:  deps.Logger,
		tabs:    deps.Tabs,
		authSvc: deps.AuthSvc,
		routes:  deps.Routes,
	}

	s.App.Use(p.tabMiddleware)

	s.App.GET("/", toLogin)
	s.App.Any("/*", toLogin)

	// public
	s.App.GET(route.LoginPath, p.loginPage)
	s.App.POST(route.LoginPath, p.login)
	s.App.POST(route.OtpPath+"/send", p.sendOtp)
	s.App.GET(route.OtpPath, p.otpPage)
	s.App.POST(route.OtpPath, p.verifyOtp)
	s.App.GET(route.JoinPath, p.joinPage)
	s.App.POST(route.JoinPath, p.join)
	s.App.POST("/logout", p.logout)

	// session
	s.App.GET("/session/state", p.sessionState)
	s.App.GET("/session/watch", p.sessionWatch)

	// guarded
	for _, grp := range p.routes.Groups {
		grp := grp
		g := s.App.Group(grp.Prefix, p.guard(grp.Role))
		g.Any("", func(ctx echo.Context) error {
			return redirect(ctx, grp.IndexPath())
		})
		g.Any("/*", toLogin)
		for _, page := range grp.Pages {
			g.GET("/"+page, p.page(grp, page))
		}
	}

	return s
}

func toLogin(ctx echo.Context) error {
	return redirect(ctx, route.LoginPath)
}

// redirect answers GET and HEAD with 302 and everything else with 303 so the browser follows with a GET.
func redirect(ctx echo.Context, location string) error {
	switch ctx.Request().Method {
	case http.MethodGet, http.MethodHead:
		return ctx.Redirect(http.StatusFound, location)
	default:
		return ctx.Redirect(http.StatusSeeOther, location)
	}
}

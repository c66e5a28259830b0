package echoportal

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/route"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

const watchTimeout = 25 * time.Second

type portal struct {
	conf    *core.Config
	logger  core.Logger
	tabs    *TabManager
	authSvc *auth.Service
	routes  route.Table
}

// pageData is what every template receives.
type pageData struct {
	Title   string
	Path    string
	User    *user.Profile
	Nav     []string
	Notice  string
	Error   string
	Fields  map[string]string
	Form    interface{}
	Payload interface{}
}

// exchangeContext is detached from the request: a credential exchange completes even if the browser navigates away.
func (p *portal) exchangeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.conf.API.Timeout)
}

// exchange runs fn against a candidate tab and, on success, makes it the browser's tab.
func (p *portal) exchange(ctx echo.Context, fn func(c context.Context, next *Tab) (user.Profile, error)) (user.Profile, error) {
	prev, err := getContextTab(ctx)
	if err != nil {
		return user.Profile{}, err
	}
	next := p.tabs.Candidate()

	c, cancel := p.exchangeContext()
	defer cancel()

	usr, err := fn(c, next)
	if err != nil {
		p.tabs.Discard(next)
		return user.Profile{}, err
	}
	p.tabs.Promote(prev, next)
	p.setTabCookie(ctx, next)
	ctx.Set(contextTabKey, next)
	return usr, nil
}

func (p *portal) signedIn(ctx echo.Context, usr user.Profile) error {
	home := route.Home(usr.Role)
	if shared.WantsJSON(ctx) {
		return ctx.JSON(http.StatusOK, echo.Map{"user": usr, "location": home})
	}
	return redirect(ctx, home)
}

// formError renders the form again with err inline, or returns err when it is not a form error.
func (p *portal) formError(ctx echo.Context, tmpl string, data pageData, err error) error {
	code, msg, fields, ok := formErrorStatus(err)
	if !ok {
		return err
	}
	if shared.WantsJSON(ctx) {
		body := echo.Map{"error": msg}
		if fields != nil {
			body["fields"] = fields
		}
		return ctx.JSON(code, body)
	}
	data.Error = msg
	data.Fields = fields
	return ctx.Render(code, tmpl, data)
}

func formErrorStatus(err error) (code int, msg string, fields map[string]string, ok bool) {
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "please correct the errors below", vErr.FieldMap(), true
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error(), nil, true
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, auth.ErrAccountInactive.Error(), nil, true
	case errors.Is(err, auth.ErrInvalidOtp):
		return http.StatusBadRequest, auth.ErrInvalidOtp.Error(), nil, true
	case errors.Is(err, auth.ErrInvalidJoinCode):
		return http.StatusBadRequest, auth.ErrInvalidJoinCode.Error(), nil, true
	case errors.Is(err, auth.ErrNetwork):
		return http.StatusBadGateway, auth.ErrNetwork.Error(), nil, true
	}
	return 0, "", nil, false
}

// Public pages

func (p *portal) loginPage(ctx echo.Context) error {
	tab, err := getContextTab(ctx)
	if err != nil {
		return err
	}
	if !p.waitRestored(ctx, tab) {
		return p.loading(ctx)
	}
	if sess := tab.Store.Get(); sess.IsAuthenticated() {
		return redirect(ctx, route.Home(sess.Role()))
	}
	return ctx.Render(http.StatusOK, "login.html", pageData{Title: "Sign in", Form: auth.LoginRequest{}})
}

func (p *portal) login(ctx echo.Context) error {
	var req auth.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	usr, err := p.exchange(ctx, func(c context.Context, next *Tab) (user.Profile, error) {
		return p.authSvc.Login(c, next.API, next.Store, req)
	})
	if err != nil {
		req.Password = ""
		return p.formError(ctx, "login.html", pageData{Title: "Sign in", Form: req}, err)
	}
	return p.signedIn(ctx, usr)
}

func (p *portal) otpPage(ctx echo.Context) error {
	req := auth.OtpVerifyRequest{Identifier: ctx.QueryParam("identifier")}
	return ctx.Render(http.StatusOK, "otp.html", pageData{Title: "Sign in with a code", Form: req})
}

func (p *portal) sendOtp(ctx echo.Context) error {
	tab, err := getContextTab(ctx)
	if err != nil {
		return err
	}
	var req auth.OtpSendRequest
	if err = ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to OtpSendRequest")
	}

	c, cancel := p.exchangeContext()
	defer cancel()

	form := auth.OtpVerifyRequest{Identifier: req.Identifier}
	if err = p.authSvc.SendOtp(c, tab.API, req); err != nil {
		return p.formError(ctx, "otp.html", pageData{Title: "Sign in with a code", Form: form}, err)
	}
	if shared.WantsJSON(ctx) {
		return ctx.JSON(http.StatusOK, echo.Map{"sent": true})
	}
	return ctx.Render(http.StatusOK, "otp.html", pageData{
		Title:  "Sign in with a code",
		Notice: "If an account matches, a code is on its way.",
		Form:   form,
	})
}

func (p *portal) verifyOtp(ctx echo.Context) error {
	var req auth.OtpVerifyRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to OtpVerifyRequest")
	}
	usr, err := p.exchange(ctx, func(c context.Context, next *Tab) (user.Profile, error) {
		return p.authSvc.VerifyOtp(c, next.API, next.Store, req)
	})
	if err != nil {
		req.Otp = ""
		return p.formError(ctx, "otp.html", pageData{Title: "Sign in with a code", Form: req}, err)
	}
	return p.signedIn(ctx, usr)
}

func (p *portal) joinPage(ctx echo.Context) error {
	req := auth.JoinRequest{JoinCode: ctx.QueryParam("code")}
	return ctx.Render(http.StatusOK, "join.html", pageData{Title: "Join a batch", Form: req})
}

func (p *portal) join(ctx echo.Context) error {
	var req auth.JoinRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	usr, err := p.exchange(ctx, func(c context.Context, next *Tab) (user.Profile, error) {
		return p.authSvc.JoinByCode(c, next.API, next.Store, req)
	})
	if err != nil {
		return p.formError(ctx, "join.html", pageData{Title: "Join a batch", Form: req}, err)
	}
	return p.signedIn(ctx, usr)
}

func (p *portal) logout(ctx echo.Context) error {
	tab, err := getContextTab(ctx)
	if err != nil {
		return err
	}
	tab.Store.Clear()
	if shared.WantsJSON(ctx) {
		return ctx.JSON(http.StatusOK, echo.Map{"location": route.LoginPath})
	}
	return redirect(ctx, route.LoginPath)
}

// Guarded pages

func (p *portal) page(grp route.Group, name string) echo.HandlerFunc {
	title := grp.Role.Title() + " " + name
	path := grp.Prefix + "/" + name
	isDashboard := grp.IndexPath() == path

	return func(ctx echo.Context) error {
		tab, err := getContextTab(ctx)
		if err != nil {
			return err
		}

		data := pageData{Title: title, Path: path, Nav: grp.Paths()}
		if isDashboard && p.conf.Session.RefreshProfile {
			if err = p.refreshProfile(ctx, tab); err != nil {
				if loc, ok := route.AfterAPIError(err); ok {
					return redirect(ctx, loc)
				}
				if !errors.Is(err, auth.ErrNetwork) {
					return err
				}
				data.Error = err.Error()
			}
		}

		sess := tab.Store.Get()
		if !sess.IsAuthenticated() { // signed out while the page was loading
			return toLogin(ctx)
		}
		data.User = sess.User
		if shared.WantsJSON(ctx) {
			return ctx.JSON(http.StatusOK, echo.Map{"title": data.Title, "user": data.User})
		}
		return ctx.Render(http.StatusOK, "page.html", data)
	}
}

// refreshProfile looks the signed-in user up again; an expired token clears the session through the API client.
func (p *portal) refreshProfile(ctx echo.Context, tab *Tab) error {
	sess := tab.Store.Get()
	c, cancel := context.WithTimeout(ctx.Request().Context(), p.conf.API.Timeout)
	defer cancel()

	usr, err := p.authSvc.Me(c, tab.API)
	if err != nil {
		return err
	}
	if usr.Role != sess.Role() {
		// roles are fixed for the lifetime of a session
		tab.Store.Clear()
		return &auth.Error{Kind: auth.ErrAuthorizationExpired, Cause: errors.New("role changed")}
	}
	if usr != *sess.User {
		tab.Store.Set(sess.Token, usr)
	}
	return nil
}

// Session endpoints

type sessionStateResp struct {
	Authenticated bool          `json:"authenticated"`
	Restored      bool          `json:"restored"`
	User          *user.Profile `json:"user,omitempty"`
	Path          string        `json:"path,omitempty"`
	State         string        `json:"state,omitempty"`
	Location      string        `json:"location,omitempty"`
}

func (p *portal) state(restored bool, sess session.Session, path string) sessionStateResp {
	resp := sessionStateResp{
		Authenticated: sess.IsAuthenticated(),
		Restored:      restored,
		User:          sess.User,
	}
	if path == "" {
		return resp
	}

	m := p.routes.Resolve(path)
	resp.Path = m.Path
	var d route.Decision
	switch m.Kind {
	case route.Page:
		d = route.Evaluate(restored, sess, m.Group.Role)
	case route.Index:
		d = route.Evaluate(restored, sess, m.Group.Role)
		if d.State == route.Authorized {
			d.Location = m.Group.IndexPath()
		}
	case route.Public:
		d = route.Decision{State: route.Authorized}
		if m.Path == route.LoginPath && sess.IsAuthenticated() {
			d.Location = route.Home(sess.Role())
		}
	default:
		d = route.Decision{State: route.Unauthenticated, Location: p.routes.Fallback}
	}
	resp.State = d.State.String()
	resp.Location = d.Location
	return resp
}

// sessionState reports the tab's session and, given ?path=, the guard's decision for that path.
func (p *portal) sessionState(ctx echo.Context) error {
	tab, err := getContextTab(ctx)
	if err != nil {
		return err
	}
	restored := p.waitRestored(ctx, tab)
	return ctx.JSON(http.StatusOK, p.state(restored, tab.Store.Get(), ctx.QueryParam("path")))
}

// sessionWatch long-polls until the tab's session changes, so an open page learns it was signed out.
// Given the path of a guarded page, it only returns early when the guard's decision for that page changes.
func (p *portal) sessionWatch(ctx echo.Context) error {
	tab, err := getContextTab(ctx)
	if err != nil {
		return err
	}
	path := ctx.QueryParam("path")
	restored := p.waitRestored(ctx, tab)

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	var stop func()
	if m := p.routes.Resolve(path); m.Group != nil {
		initial := route.Evaluate(restored, tab.Store.Get(), m.Group.Role)
		stop = route.Watch(tab.Store, m.Group.Role, func(d route.Decision) {
			if d != initial {
				notify()
			}
		})
		// the page can no longer be shown, or a mutation came in before the subscription
		if initial.State != route.Authorized || route.Evaluate(restored, tab.Store.Get(), m.Group.Role) != initial {
			notify()
		}
	} else {
		stop = tab.Store.Subscribe(func(session.Session) { notify() })
	}
	defer stop()

	timer := time.NewTimer(watchTimeout)
	defer timer.Stop()

	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Request().Context().Done():
		return nil
	}
	return ctx.JSON(http.StatusOK, p.state(tab.Mirror.Restored(), tab.Store.Get(), path))
}

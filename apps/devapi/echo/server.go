// Package echoapi is a development implementation of the authentication API the portal signs in against.
package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
)

// BasePath prefixes every route of the API.
const BasePath = "/api/v1"

type Options struct {
	Conf           *core.Config
	Logger         core.Logger
	Validator      *core.Validator
	UserSvc        user.Service
	DisableReqLogs bool
}

func NewServer(opts *Options) *shared.Server {
	s := shared.NewServer(opts.Conf, opts.Conf.DevAPI.Address, opts.DisableReqLogs)
	tokens := NewTokens(opts.Conf)
	s.App.HTTPErrorHandler = newAppHTTPErrorHandler(opts.Logger, tokens, s.SignalShutdown)

	s.App.GET("/", home)

	v1 := s.App.Group(BasePath)
	registerAuthAPI(v1, tokens, opts.UserSvc, opts.Validator)

	return s
}

func home(ctx echo.Context) error {
	return respond(ctx, http.StatusOK, echo.Map{"status": "ok"})
}

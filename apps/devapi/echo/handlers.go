package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/user"
)

type authApi struct {
	svc       user.Service
	tokens    *Tokens
	validator *core.Validator
}

func registerAuthAPI(g *echo.Group, tokens *Tokens, svc user.Service, validator *core.Validator) {
	api := authApi{svc: svc, tokens: tokens, validator: validator}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/otp/send", api.sendOtp)
	ag.POST("/otp/verify", api.verifyOtp)
	ag.POST("/join", api.join)

	// authed endpoints
	jwt := tokens.Middleware()
	ag.GET("/me", api.me, jwt)
	ag.POST("/register", api.register, jwt, tokens.adminMiddleware())
}

// cleaner is implemented by requests that normalize their fields before validation.
type cleaner interface {
	Clean()
}

func (api *authApi) bind(ctx echo.Context, req cleaner) error {
	if err := ctx.Bind(req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	req.Clean()
	return api.validator.Struct(req)
}

// signIn answers a successful credential exchange with a fresh token.
func (api *authApi) signIn(ctx echo.Context, acc user.Account) error {
	token, err := api.tokens.GenerateToken(api.tokens.GetAccountClaims(acc))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusOK, auth.Credentials{Token: token, User: acc.Profile()})
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var req auth.LoginRequest
	if err := api.bind(ctx, &req); err != nil {
		return err
	}
	acc, err := api.svc.Authenticate(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return api.signIn(ctx, acc)
}

func (api *authApi) sendOtp(ctx echo.Context) error {
	var req auth.OtpSendRequest
	if err := api.bind(ctx, &req); err != nil {
		return err
	}
	if err := api.svc.RequestOtp(ctx.Request().Context(), req.Identifier); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, nil, "If an account matches, a code has been sent")
}

func (api *authApi) verifyOtp(ctx echo.Context) error {
	var req auth.OtpVerifyRequest
	if err := api.bind(ctx, &req); err != nil {
		return err
	}
	acc, err := api.svc.VerifyOtp(ctx.Request().Context(), req.Identifier, req.Otp)
	if err != nil {
		return err
	}
	return api.signIn(ctx, acc)
}

func (api *authApi) join(ctx echo.Context) error {
	var req auth.JoinRequest
	if err := api.bind(ctx, &req); err != nil {
		return err
	}
	acc, err := api.svc.Join(ctx.Request().Context(), req.JoinCode, req.Name, req.Contact)
	if err != nil {
		return err
	}
	return api.signIn(ctx, acc)
}

func (api *authApi) me(ctx echo.Context) error {
	acc, err := api.tokens.getContextAccount(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	if !acc.IsActive {
		return errUnauthorized
	}
	return respond(ctx, http.StatusOK, acc.Profile())
}

func (api *authApi) register(ctx echo.Context) error {
	var na user.NewAccount
	if err := ctx.Bind(&na); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	acc, err := api.svc.Create(ctx.Request().Context(), na)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, acc.Profile(), "User registered successfully")
}

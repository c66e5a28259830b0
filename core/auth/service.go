// Package auth performs the credential exchanges against the remote authentication API
// and hands their results to a session.
package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

// Service is stateless: the API client and the session to populate are passed per call.
type Service struct {
	validator *core.Validator
	logger    core.Logger
}

func NewService(validator *core.Validator, logger core.Logger) *Service {
	return &Service{validator: validator, logger: logger}
}

// Login exchanges an email and password for credentials.
func (svc *Service) Login(ctx context.Context, api API, sess session.Setter, req LoginRequest) (user.Profile, error) {
	req.Clean()
	if err := svc.validator.Struct(req); err != nil {
		return user.Profile{}, err
	}
	creds, err := api.Login(ctx, req)
	if err != nil {
		return user.Profile{}, svc.fail("login", classify(err, ErrInvalidCredentials))
	}
	return svc.establish(sess, creds)
}

// SendOtp asks the API to deliver a one-time password. The session is left untouched.
func (svc *Service) SendOtp(ctx context.Context, api API, req OtpSendRequest) error {
	req.Clean()
	if err := svc.validator.Struct(req); err != nil {
		return err
	}
	if err := api.SendOtp(ctx, req); err != nil {
		return svc.fail("otp send", classify(err, ErrInvalidOtp))
	}
	return nil
}

// VerifyOtp exchanges an identifier and one-time password for credentials.
func (svc *Service) VerifyOtp(ctx context.Context, api API, sess session.Setter, req OtpVerifyRequest) (user.Profile, error) {
	req.Clean()
	if err := svc.validator.Struct(req); err != nil {
		return user.Profile{}, err
	}
	creds, err := api.VerifyOtp(ctx, req)
	if err != nil {
		return user.Profile{}, svc.fail("otp verify", classify(err, ErrInvalidOtp))
	}
	return svc.establish(sess, creds)
}

// JoinByCode enrolls with a batch join code and signs the new student in.
func (svc *Service) JoinByCode(ctx context.Context, api API, sess session.Setter, req JoinRequest) (user.Profile, error) {
	req.Clean()
	if err := svc.validator.Struct(req); err != nil {
		return user.Profile{}, err
	}
	creds, err := api.Join(ctx, req)
	if err != nil {
		return user.Profile{}, svc.fail("join", classify(err, ErrInvalidJoinCode))
	}
	return svc.establish(sess, creds)
}

// Me looks up the profile behind the API client's current bearer token.
func (svc *Service) Me(ctx context.Context, api API) (user.Profile, error) {
	usr, err := api.Me(ctx)
	if err != nil {
		return user.Profile{}, svc.fail("me", classify(err, ErrAuthorizationExpired))
	}
	if err = svc.validator.Struct(usr); err != nil {
		return user.Profile{}, svc.fail("me", &Error{Kind: ErrNetwork, Cause: errors.Wrap(err, "invalid profile")})
	}
	return usr, nil
}

func (svc *Service) establish(sess session.Setter, creds Credentials) (user.Profile, error) {
	if creds.Token == "" {
		return user.Profile{}, svc.fail("exchange", &Error{Kind: ErrNetwork, Cause: errors.New("missing token")})
	}
	if err := svc.validator.Struct(creds.User); err != nil {
		return user.Profile{}, svc.fail("exchange", &Error{Kind: ErrNetwork, Cause: errors.Wrap(err, "invalid profile")})
	}
	sess.Set(creds.Token, creds.User)
	return creds.User, nil
}

func (svc *Service) fail(op string, err error) error {
	if errors.Is(err, ErrNetwork) {
		svc.logger.Warn(op+" failed", errors.Unwrap(err))
	}
	return err
}

package auth

import (
	"context"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
)

// API is the remote authentication API as seen by the portal.
//
// Implementations return *APIError when the API answered with an error envelope
// and *TransportError when no usable answer was received.
type API interface {
	Login(ctx context.Context, req LoginRequest) (Credentials, error)
	SendOtp(ctx context.Context, req OtpSendRequest) error
	VerifyOtp(ctx context.Context, req OtpVerifyRequest) (Credentials, error)
	Join(ctx context.Context, req JoinRequest) (Credentials, error)
	Me(ctx context.Context) (user.Profile, error)
}

// Credentials is the result of every credential exchange.
type Credentials struct {
	Token string       `json:"token"`
	User  user.Profile `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

func (r *LoginRequest) Clean() {
	r.Email = core.CleanString(r.Email, true /* lower */)
}

type OtpSendRequest struct {
	Identifier string `json:"identifier" form:"identifier" validate:"required"`
}

func (r *OtpSendRequest) Clean() {
	r.Identifier = cleanIdentifier(r.Identifier)
}

type OtpVerifyRequest struct {
	Identifier string `json:"identifier" form:"identifier" validate:"required"`
	Otp        string `json:"otp" form:"otp" validate:"required,otp"`
}

func (r *OtpVerifyRequest) Clean() {
	r.Identifier = cleanIdentifier(r.Identifier)
	r.Otp = core.CleanString(r.Otp)
}

type JoinRequest struct {
	JoinCode string `json:"joinCode" form:"joinCode" validate:"required,joincode"`
	Name     string `json:"name" form:"name" validate:"required"`
	Contact  string `json:"contact" form:"contact" validate:"required"`
}

// Clean normalizes the join code the way the API expects it: trimmed and upper-cased.
func (r *JoinRequest) Clean() {
	r.JoinCode = user.NormalizeJoinCode(r.JoinCode)
	r.Name = core.CleanString(r.Name)
	r.Contact = cleanIdentifier(r.Contact)
}

// emails are case-insensitive, phone numbers are kept as typed
func cleanIdentifier(s string) string {
	if core.IsEmail(s) {
		return core.CleanString(s, true /* lower */)
	}
	return core.CleanString(s)
}

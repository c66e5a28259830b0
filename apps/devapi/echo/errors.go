package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
)

type (
	envelope struct {
		Success bool         `json:"success"`
		Data    interface{}  `json:"data"`
		Message string       `json:"message,omitempty"`
		Error   *errorDetail `json:"error,omitempty"`
	}

	errorDetail struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	}
)

func respond(ctx echo.Context, code int, data interface{}, msg ...string) error {
	env := envelope{Success: true, Data: data}
	if len(msg) > 0 {
		env.Message = msg[0]
	}
	return ctx.JSON(code, env)
}

// statusCode names an HTTP status the way error envelopes do: "Bad Request" -> "BAD_REQUEST".
func statusCode(code int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that wraps every error in the API's envelope.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, tokens *Tokens, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		detail := new(errorDetail)

		var vErr *core.ValidationError
		switch origErr := errors.Cause(err); origErr {
		case user.ErrInvalidCredentials:
			code, detail.Message = http.StatusUnauthorized, "Invalid credentials"
		case user.ErrAccountInactive:
			code, detail.Message = http.StatusForbidden, "Account is not active"
		case user.ErrInvalidOtp:
			code, detail.Message = http.StatusBadRequest, "Invalid or expired OTP"
		case user.ErrInvalidJoinCode:
			code, detail.Message = http.StatusBadRequest, "Invalid join code"
		case user.ErrNotFound:
			code, detail.Message = http.StatusNotFound, "Not found"
		default:
			if herr, ok := origErr.(*echo.HTTPError); ok {
				if herr == middleware.ErrJWTMissing {
					code, detail.Message = http.StatusUnauthorized, "missing or malformed jwt"
					break
				}
				if herr.Internal != nil {
					if ierr, ok := herr.Internal.(*echo.HTTPError); ok {
						herr = ierr
					}
				}
				code = herr.Code
				detail.Message = http.StatusText(code)
				if m, ok := herr.Message.(string); ok {
					detail.Message = m
				}
				break
			}
			if errors.As(err, &vErr) {
				code = http.StatusBadRequest
				detail.Code = "VALIDATION_ERROR"
				detail.Message = "Validation failed"
				detail.Fields = vErr.FieldMap()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			detail.Code = "INTERNAL_ERROR"
			detail.Message = "Something went wrong. Please try again."

			args := []interface{}{errors.Wrap(err, "unhandled error")}
			if acc, ok := ctx.Get(contextUserKey).(user.Account); ok {
				args = append(args, acc.Profile())
			} else if claims, cErr := tokens.getContextClaims(ctx); cErr == nil {
				id, _ := claims.AccountID()
				args = append(args, user.Profile{ID: id, Name: claims.Name, Email: claims.Email, Role: claims.Role})
			}
			logger.Error("unhandled error", args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}
		if detail.Code == "" {
			detail.Code = statusCode(code)
		}
		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			detail.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, envelope{Error: detail})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

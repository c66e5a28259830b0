package echoportal

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string

		var vErr *core.ValidationError
		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = http.StatusText(code)
			if m, ok := origErr.Message.(string); ok {
				message = m
			}
		default:
			if errors.As(err, &vErr) {
				code = http.StatusBadRequest
				message = vErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)

			extras := map[string]interface{}{"path": ctx.Request().URL.Path}
			args := []interface{}{errors.Wrap(err, message), extras}
			if tab, tErr := getContextTab(ctx); tErr == nil {
				extras["tab"] = tab.ID
				if sess := tab.Store.Get(); sess.IsAuthenticated() {
					args = append(args, *sess.User)
				}
			}
			logger.Error(message, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			switch {
			case ctx.Request().Method == http.MethodHead: // Issue #608
				err = ctx.NoContent(code)
			case shared.WantsJSON(ctx):
				err = ctx.JSON(code, echo.Map{"error": message})
			default:
				err = ctx.Render(code, "error.html", pageData{Title: http.StatusText(code), Error: message})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

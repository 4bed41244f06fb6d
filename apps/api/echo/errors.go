package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/registration"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

var (
	errUnauthorized        = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidCredentials  = echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	errAccountDeactivated  = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired      = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden       = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound        = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTenantNotFound      = echo.NewHTTPError(http.StatusNotFound, "school not found")
	errTenantInactive      = echo.NewHTTPError(http.StatusForbidden, "school is not active")
	errSubscriptionExpired = echo.NewHTTPError(http.StatusForbidden, "school subscription has expired")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.ConflictError:
			code = http.StatusBadRequest
			message = origErr.Error()
		case *kyc.MissingTypesError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":         origErr.Error(),
				"missing_types": origErr.Missing,
			}
		case *payment.GatewayError:
			code = http.StatusServiceUnavailable
			message = "payment service unavailable"
			logger.Error("payment gateway error", errors.Wrap(err, "payment gateway error"))
		default:
			switch origErr {
			case tenant.ErrNotFound, user.ErrNotFound, subscription.ErrNotFound,
				subscription.ErrTransactionNotFound, registration.ErrSessionNotFound:
				code = http.StatusNotFound
				message = origErr.Error()
			case registration.ErrSessionExpired:
				code = http.StatusNotFound
				message = origErr.Error()
			case subscription.ErrPlanNotFound:
				code = http.StatusBadRequest
				message = origErr.Error()
			case tenant.ErrSubdomainExists, user.ErrEmailExists:
				code = http.StatusBadRequest
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Email = claims.Email
				}
				logArgs := []interface{}{errors.Wrap(err, msg), usr}
				if t, ok := ctx.Get(contextTenantKey).(*tenant.Tenant); ok && t != nil {
					logArgs = append(logArgs, *t)
				}
				logger.Error(msg, logArgs...)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

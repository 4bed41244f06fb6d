package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

// getContextTenant resolves the request's tenant from the Host header, with a
// request-scoped memoization so repeated guards don't hit storage again. A nil
// tenant means the request came in on the bare base domain.
func getContextTenant(ctx echo.Context, svc *tenant.Service) (*tenant.Tenant, error) {
	if t, ok := ctx.Get(contextTenantKey).(*tenant.Tenant); ok {
		return t, nil
	}

	t, err := svc.ResolveHost(ctx.Request().Context(), ctx.Request().Host)
	if err != nil {
		if errors.Cause(err) == tenant.ErrNotFound {
			return nil, errTenantNotFound
		}
		return nil, errors.Wrap(err, "resolving tenant from host")
	}
	ctx.Set(contextTenantKey, t)
	return t, nil
}

// requireTenant resolves the tenant and applies the same tiered gating as
// login: 404 unknown subdomain, 403 incomplete KYC, 403 inactive, 403 expired
// subscription. The resolved tenant is memoized on the context.
func requireTenant(svc *tenant.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			t, err := getContextTenant(ctx, svc)
			if err != nil {
				return err
			}
			if t == nil {
				return errTenantNotFound
			}
			if !t.IsKYCVerified() {
				return echo.NewHTTPError(http.StatusForbidden, echo.Map{
					"error":      "school verification incomplete",
					"kyc_status": t.KYCStatus,
				})
			}
			if !t.IsActive() {
				return errTenantInactive
			}
			ok, err := svc.HasActiveSubscription(ctx.Request().Context(), *t)
			if err != nil {
				return errors.Wrap(err, "checking subscription")
			}
			if !ok {
				return errSubscriptionExpired
			}
			return next(ctx)
		}
	}
}

// requireRole passes only authenticated users holding one of the given roles.
func requireRole(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			for _, role := range roles {
				if user.Role(claims.Role) == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// requirePermission passes only authenticated users whose role grants any of
// the given permissions.
func requirePermission(perms ...user.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if user.Role(claims.Role).HasAnyPermission(perms...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

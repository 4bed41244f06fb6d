package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core/tenant"
)

type schoolApi struct {
	tenantSvc *tenant.Service
}

// registerSchoolAPI exposes the tenant-scoped school profile, served on the
// school's own subdomain and gated by the full tenant check.
func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, tenantSvc *tenant.Service) {
	api := schoolApi{tenantSvc: tenantSvc}

	sg := g.Group("/school", jwt, requireTenant(tenantSvc))
	sg.GET("", api.retrieve)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	t, err := getContextTenant(ctx, api.tenantSvc)
	if err != nil {
		return errors.Wrap(err, "getting context tenant")
	}
	if t == nil {
		return errTenantNotFound
	}
	return ctx.JSON(http.StatusOK, t)
}

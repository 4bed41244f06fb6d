package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core/subscription"
)

type planApi struct {
	svc *subscription.Service
}

func registerPlanAPI(g *echo.Group, svc *subscription.Service) {
	api := planApi{svc: svc}
	g.GET("/plans", api.query)
}

func (api *planApi) query(ctx echo.Context) error {
	plans, err := api.svc.QueryPlans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []subscription.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

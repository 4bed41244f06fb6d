package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/services/payment/fedapay"
)

type webhookApi struct {
	subSvc  *subscription.Service
	gateway payment.Gateway
	logger  core.Logger
}

func registerWebhookAPI(g *echo.Group, subSvc *subscription.Service, gateway payment.Gateway, logger core.Logger) {
	api := webhookApi{subSvc: subSvc, gateway: gateway, logger: logger}
	g.POST("/payments/callback", api.callback)
}

// callback ingests gateway webhooks. An invalid or missing signature is the
// only 400; every other failure is logged and answered with 200 so the
// provider does not retry-storm us. Clients reconcile missed events through
// their own payment-status polling.
func (api *webhookApi) callback(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}

	sig := ctx.Request().Header.Get(fedapay.SignatureHeader)
	if sig == "" || !api.gateway.VerifySignature(body, sig) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	snap, err := api.gateway.ParseWebhook(body, sig)
	if err != nil {
		api.logger.Error("parsing webhook payload", err)
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
	}
	if snap == nil {
		// not a transaction event; acknowledge and move on
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
	}

	if err = api.subSvc.ProcessGatewayEvent(ctx.Request().Context(), *snap); err != nil {
		api.logger.Error("processing gateway event", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

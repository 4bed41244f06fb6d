package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/registration"
)

type registrationApi struct {
	svc *registration.Service
}

func registerRegistrationAPI(g *echo.Group, svc *registration.Service) {
	api := registrationApi{svc: svc}

	rg := g.Group("/register")

	// all endpoints are un-authed: the caller does not have an account yet
	rg.POST("/start", api.start)
	rg.POST("/check-subdomain", api.checkSubdomain)
	rg.POST("/check-email", api.checkEmail)

	sg := rg.Group("/session/:id")
	sg.GET("", api.retrieve)
	sg.POST("/step1", api.submitPromoterAndSchool)
	sg.POST("/step2", api.selectPlan)
	sg.GET("/payment-status", api.checkPaymentStatus)
	sg.POST("/finalize", api.finalize)
	sg.DELETE("", api.cancel)
}

type (
	StartResponse struct {
		SessionID string `json:"session_id"`
		ExpiresAt int64  `json:"expires_at"`
	}

	CheckSubdomainRequest struct {
		Subdomain string `json:"subdomain" validate:"required"`
	}

	CheckEmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	AvailabilityResponse struct {
		IsAvailable bool `json:"is_available"`
	}

	SelectPlanRequest struct {
		PlanID string `json:"plan_id" validate:"required"`
	}

	PaymentInitiatedResponse struct {
		PaymentURL    string `json:"payment_url"`
		TransactionID string `json:"transaction_id"`
	}

	PaymentStatusResponse struct {
		Status registration.PaymentOutcome `json:"status"`
	}

	FinalizeRequest struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}

	FinalizeResponse struct {
		TenantID       string `json:"school_id"`
		PromoterID     string `json:"promoter_id"`
		SubscriptionID string `json:"subscription_id"`
		NextStep       string `json:"next_step"`
	}

	SuccessResponse struct {
		Success bool `json:"success"`
	}
)

// Handlers

func (api *registrationApi) start(ctx echo.Context) error {
	s, err := api.svc.Start(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "starting registration session")
	}
	return ctx.JSON(http.StatusOK, StartResponse{SessionID: s.ID, ExpiresAt: s.ExpiresAt.Unix()})
}

func (api *registrationApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *registrationApi) checkSubdomain(ctx echo.Context) error {
	var data CheckSubdomainRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckSubdomainRequest")
	}
	data.Subdomain = core.CleanString(data.Subdomain, true /* lower */)
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	available, err := api.svc.CheckSubdomain(ctx.Request().Context(), data.Subdomain)
	if err != nil {
		return errors.Wrap(err, "checking subdomain availability")
	}
	return ctx.JSON(http.StatusOK, AvailabilityResponse{IsAvailable: available})
}

func (api *registrationApi) checkEmail(ctx echo.Context) error {
	var data CheckEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckEmailRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	available, err := api.svc.CheckEmail(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "checking email availability")
	}
	return ctx.JSON(http.StatusOK, AvailabilityResponse{IsAvailable: available})
}

func (api *registrationApi) submitPromoterAndSchool(ctx echo.Context) error {
	var data registration.Step1Input
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Step1Input")
	}

	s, err := api.svc.SubmitPromoterAndSchool(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *registrationApi) selectPlan(ctx echo.Context) error {
	var data SelectPlanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelectPlanRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	s, err := api.svc.SelectPlan(ctx.Request().Context(), ctx.Param("id"), data.PlanID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, PaymentInitiatedResponse{
		PaymentURL:    s.Payment.PaymentURL,
		TransactionID: s.Payment.TransactionID,
	})
}

func (api *registrationApi) checkPaymentStatus(ctx echo.Context) error {
	outcome, err := api.svc.CheckPaymentStatus(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("transaction_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, PaymentStatusResponse{Status: outcome})
}

func (api *registrationApi) finalize(ctx echo.Context) error {
	var data FinalizeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FinalizeRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	res, err := api.svc.Finalize(ctx.Request().Context(), ctx.Param("id"), data.TransactionID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, FinalizeResponse{
		TenantID:       res.TenantID,
		PromoterID:     res.PromoterID,
		SubscriptionID: res.SubscriptionID,
		NextStep:       "kyc_verification",
	})
}

func (api *registrationApi) cancel(ctx echo.Context) error {
	if err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

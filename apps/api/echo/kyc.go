package echoapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type kycApi struct {
	conf      *core.Config
	tenantSvc *tenant.Service
	usrSvc    *user.Service
	svc       *kyc.Service
}

func registerKYCAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	conf *core.Config,
	tenantSvc *tenant.Service,
	usrSvc *user.Service,
	svc *kyc.Service,
) {
	api := kycApi{conf: conf, tenantSvc: tenantSvc, usrSvc: usrSvc, svc: svc}

	kg := g.Group("/kyc", jwt)
	kg.GET("/status", api.status)
	kg.POST("/upload", api.upload, requireRole(user.RolePromoter))

	// review endpoints are for platform admins only
	kg.POST("/approve/:tenantId", api.approve, requirePermission(user.PermReviewKYC))
	kg.POST("/reject/:tenantId", api.reject, requirePermission(user.PermReviewKYC))
}

type (
	ReviewRequest struct {
		ApprovalNotes   string `json:"approval_notes"`
		RejectionReason string `json:"rejection_reason"`
	}

	ReviewResponse struct {
		TenantID  string           `json:"school_id"`
		Status    tenant.Status    `json:"status"`
		KYCStatus tenant.KYCStatus `json:"kyc_status"`
	}
)

// Handlers

func (api *kycApi) status(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.TenantID == "" {
		return errHttpNotFound
	}

	view, err := api.svc.Status(ctx.Request().Context(), usr.TenantID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

// upload accepts a multipart form with one file per required document type,
// keyed by the type name. The whole set must be present; partial uploads are
// rejected with the missing types listed.
func (api *kycApi) upload(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.TenantID == "" {
		return errHttpNotFound
	}

	rctx := ctx.Request().Context()
	t, err := api.tenantSvc.ResolveByID(rctx, usr.TenantID)
	if err != nil {
		return err
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return core.NewValidationError(errors.New("multipart form expected"))
	}

	now := time.Now().UTC()
	var docs []kyc.Document
	for field, files := range form.File {
		typ := kyc.DocumentType(field)
		if !typ.Valid() {
			continue
		}
		for _, fh := range files {
			ref, err := api.saveUpload(usr.TenantID, string(typ), fh)
			if err != nil {
				return errors.Wrap(err, "saving uploaded document")
			}
			docs = append(docs, kyc.Document{
				Type:        typ,
				FileRef:     ref,
				Description: formValue(form, field+"_description"),
				UploadedAt:  now,
			})
		}
	}

	t, err = api.svc.Submit(rctx, t, docs)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReviewResponse{TenantID: t.ID, Status: t.Status, KYCStatus: t.KYCStatus})
}

func (api *kycApi) approve(ctx echo.Context) error {
	t, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("tenantId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReviewResponse{TenantID: t.ID, Status: t.Status, KYCStatus: t.KYCStatus})
}

func (api *kycApi) reject(ctx echo.Context) error {
	var data ReviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewRequest")
	}

	t, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("tenantId"), core.CleanString(data.RejectionReason))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReviewResponse{TenantID: t.ID, Status: t.Status, KYCStatus: t.KYCStatus})
}

func formValue(form *multipart.Form, field string) string {
	if vals := form.Value[field]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// saveUpload stores the file under WorkDir/uploads/kyc/<tenant>/ and returns
// its reference path. Object storage can replace this without touching the
// service layer, which only ever sees the returned ref.
func (api *kycApi) saveUpload(tenantID, typ string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dir := filepath.Join(api.conf.WorkDir, "uploads", "kyc", tenantID)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s%s", typ, uuid.New().String(), filepath.Ext(fh.Filename))
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err = io.Copy(dst, src); err != nil {
		return "", err
	}
	return filepath.Join("uploads", "kyc", tenantID, name), nil
}

package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

const (
	jwtContextKey    = "userToken"
	contextUserKey   = "user"
	contextTenantKey = "tenant"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	TenantID     string `json:"school_id,omitempty"`
}

func newAppJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         string(usr.Role),
		TenantID:     usr.TenantID,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(conf.SecretKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

type authApi struct {
	conf      *core.Config
	tenantSvc *tenant.Service
	usrSvc    *user.Service
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, conf *core.Config, tenantSvc *tenant.Service, usrSvc *user.Service) {
	api := authApi{conf: conf, tenantSvc: tenantSvc, usrSvc: usrSvc}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)

	authed := ag.Group("", jwt)
	authed.POST("/token-refresh", api.refreshToken)
	authed.GET("/me", api.me)
}

type (
	LoginRequest struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required"`
		Subdomain string `json:"subdomain"`
	}

	LoginResponse struct {
		Token       string            `json:"token"`
		User        user.User         `json:"user"`
		Permissions []user.Permission `json:"permissions"`
		School      *tenant.Tenant    `json:"school,omitempty"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	lr.Subdomain = core.CleanString(lr.Subdomain, true /* lower */)
	return core.Validate.Struct(lr)
}

// login authenticates a user against their school (when a subdomain is
// supplied) or globally (promoters and platform admins only). Tenant checks
// run before credential checks so a suspended school cannot be logged into,
// yet credential failures stay indistinguishable from unknown emails.
func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	rctx := ctx.Request().Context()

	var t *tenant.Tenant
	var usr user.User
	var err error

	if data.Subdomain != "" {
		resolved, err := api.tenantSvc.ResolveBySubdomain(rctx, data.Subdomain)
		if err != nil {
			if errors.Cause(err) == tenant.ErrNotFound {
				return errTenantNotFound
			}
			return errors.Wrap(err, "resolving tenant")
		}
		t = &resolved

		if !t.IsKYCVerified() {
			return echo.NewHTTPError(http.StatusForbidden, echo.Map{
				"error":      "school verification incomplete",
				"kyc_status": t.KYCStatus,
			})
		}
		if !t.IsActive() {
			return errTenantInactive
		}
		ok, err := api.tenantSvc.HasActiveSubscription(rctx, resolved)
		if err != nil {
			return errors.Wrap(err, "checking subscription")
		}
		if !ok {
			return errSubscriptionExpired
		}

		usr, err = api.usrSvc.GetTenantUserByEmail(rctx, t.ID, data.Email)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return errInvalidCredentials
			}
			return errors.Wrap(err, "finding tenant user")
		}
	} else {
		usr, err = api.usrSvc.GetByEmail(rctx, data.Email)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return errInvalidCredentials
			}
			return errors.Wrap(err, "finding user by email")
		}
		// only promoters and platform admins may log in without a subdomain
		if !(usr.IsPromoter() || usr.IsAdmin()) {
			return errInvalidCredentials
		}
		if usr.IsPromoter() {
			if resolved, rerr := api.tenantSvc.ResolveByID(rctx, usr.TenantID); rerr == nil {
				t = &resolved
			}
		}
	}

	if err = usr.CheckPassword(data.Password); err != nil {
		return errInvalidCredentials
	}
	if usr.Status == user.StatusSuspended || usr.Status == user.StatusDeleted {
		return errAccountDeactivated
	}

	usr, err = api.usrSvc.SetLastLogin(rctx, usr)
	if err != nil {
		return errors.Wrap(err, "setting lastLogin")
	}

	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:       token,
		User:        usr,
		Permissions: usr.Role.Permissions(),
		School:      t,
	})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, api.usrSvc, claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if usr.Status == user.StatusSuspended || usr.Status == user.StatusDeleted {
		return errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return errRefreshExpired
	}

	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr, claims.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"user":        usr,
		"permissions": usr.Role.Permissions(),
	})
}

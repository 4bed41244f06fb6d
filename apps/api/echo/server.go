package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/payment"
	"github.com/academiahub/backend/core/registration"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type (
	ServerDeps struct {
		Conf   *core.Config
		Logger core.Logger

		TenantSvc *tenant.Service
		UserSvc   *user.Service
		RegSvc    *registration.Service
		SubSvc    *subscription.Service
		KYCSvc    *kyc.Service
		Gateway   payment.Gateway

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newAppJWTConfig(conf))

	registerRegistrationAPI(v1, s.deps.RegSvc)
	registerPlanAPI(v1, s.deps.SubSvc)
	registerWebhookAPI(v1, s.deps.SubSvc, s.deps.Gateway, s.deps.Logger)
	registerAuthAPI(v1, jwt, s.deps.Conf, s.deps.TenantSvc, s.deps.UserSvc)
	registerKYCAPI(v1, jwt, s.deps.Conf, s.deps.TenantSvc, s.deps.UserSvc, s.deps.KYCSvc)
	registerSchoolAPI(v1, jwt, s.deps.TenantSvc)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errs <- err
	}
}

func (s *server) Errors() <-chan error { return s.errs }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// signalShutdown is called by the error handler on integrity errors.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Academia Hub API!")
}

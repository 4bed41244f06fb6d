package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/academiahub/backend/apps/api/echo"
	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/kyc"
	"github.com/academiahub/backend/core/registration"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
	emailsvc "github.com/academiahub/backend/services/email"
	logsvc "github.com/academiahub/backend/services/logger"
	"github.com/academiahub/backend/services/payment/fedapay"
	"github.com/academiahub/backend/storage/database"
	sqlxrepos "github.com/academiahub/backend/storage/database/sqlx"
	sessionstore "github.com/academiahub/backend/storage/session"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	gateway := fedapay.NewService(conf)

	var store registration.Store
	if conf.Debug {
		store = sessionstore.NewInmemStore()
	} else {
		store = sessionstore.NewRedisStore(conf)
	}

	tenantRepo := sqlxrepos.NewTenantRepository(db)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	subSvc := subscription.NewService(sqlxrepos.NewSubscriptionRepository(db), gateway, usrSvc, mailSvc, logger)
	tenantSvc := tenant.NewService(tenantRepo, subSvc, conf.BaseDomain)
	kycSvc := kyc.NewService(sqlxrepos.NewKYCRepository(db), tenantRepo, usrSvc, mailSvc)
	regSvc := registration.NewService(
		store,
		sqlxrepos.NewRegistrationRepository(db),
		tenantRepo,
		usrSvc,
		subSvc,
		gateway,
		logger,
		conf,
	)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:      conf,
		Logger:    logger,
		TenantSvc: tenantSvc,
		UserSvc:   usrSvc,
		RegSvc:    regSvc,
		SubSvc:    subSvc,
		KYCSvc:    kycSvc,
		Gateway:   gateway,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, conf); err != nil {
		return nil, err
	}
	return db, nil
}

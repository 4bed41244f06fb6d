package main

import (
	"log"
	"os"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/user"
	emailsvc "github.com/academiahub/backend/services/email"
	logsvc "github.com/academiahub/backend/services/logger"
	"github.com/academiahub/backend/services/payment/fedapay"
	"github.com/academiahub/backend/storage/database"
	sqlxrepos "github.com/academiahub/backend/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, svcLogger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	subSvc := subscription.NewService(
		sqlxrepos.NewSubscriptionRepository(db),
		fedapay.NewService(conf),
		usrSvc,
		mailSvc,
		svcLogger,
	)

	// start CLI
	cli := commandLine{
		conf:   conf,
		usrSvc: usrSvc,
		subSvc: subSvc,
		db:     db.DB,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

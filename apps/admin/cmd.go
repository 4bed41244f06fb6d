package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/user"
	"github.com/academiahub/backend/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	usrSvc *user.Service
	subSvc *subscription.Service
	db     *sql.DB
}

func (cli *commandLine) migrate() error {
	return migrateFunc(cli.db, cli.conf)
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate                      - apply pending database migrations")
	fmt.Println("  createadmin -email EMAIL     - create a platform admin account")
	fmt.Println("  checksubs                    - run the subscription expiry check once")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ExitOnError)
	createAdminEmail := createAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")
	createAdminFirstName := createAdminCmd.String("first-name", "Platform", "The admin's first name.")
	createAdminLastName := createAdminCmd.String("last-name", "Admin", "The admin's last name.")

	switch args[1] {
	case "migrate":
		return cli.migrate()
	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createAdminEmail == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createAdminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(*createAdminEmail, *createAdminFirstName, *createAdminLastName, string(pwd))
	case "checksubs":
		return cli.checkSubscriptions()
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createAdmin(email, firstName, lastName, pwd string) error {
	nu := user.NewUser{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      user.RoleAdmin,
		Password:  pwd,
	}
	if err := nu.Validate(cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Printf("admin %q created (id=%s)\n", usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) checkSubscriptions() error {
	if err := cli.subSvc.CheckExpiringSubscriptions(context.Background()); err != nil {
		return err
	}
	fmt.Println("subscription expiry check done")
	return nil
}

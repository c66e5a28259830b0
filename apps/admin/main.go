// Command admin manages the development API's accounts database.
package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
	emailsvc "github.com/trezcool/lms-portal/services/email"
	logsvc "github.com/trezcool/lms-portal/services/logger"
	"github.com/trezcool/lms-portal/storage/database"
	sqlxrepos "github.com/trezcool/lms-portal/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	errAndDie(logger, database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()
	errAndDie(logger, database.Ping(ctx, db))

	validator := core.NewValidator()
	user.InitValidators(validator)

	// start CLI
	cli := commandLine{
		db: db,
		usrSvc: user.NewService(
			sqlxrepos.NewAccountRepository(db),
			validator,
			emailsvc.NewConsoleService(conf, logger),
			logger,
			conf,
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

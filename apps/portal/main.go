// Command portal serves the LMS portal: sign-in pages and the role-guarded admin, faculty and student areas.
package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoportal "github.com/trezcool/lms-portal/apps/portal/echo"
	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/route"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
	logsvc "github.com/trezcool/lms-portal/services/logger"
	"github.com/trezcool/lms-portal/storage/database"
	inmemdb "github.com/trezcool/lms-portal/storage/database/inmem"
	sqlxrepos "github.com/trezcool/lms-portal/storage/database/sqlx"
	redisstore "github.com/trezcool/lms-portal/storage/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "PORTAL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if err := route.Default.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid route table: %v", err), err)
	}

	// set up session persistence
	persistence, closePersistence, err := setUpPersistence(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up session persistence: %v", err), err)
	}
	defer func() {
		if err := closePersistence(); err != nil {
			logger.Error(fmt.Sprintf("closing session persistence: %v", err), err)
		}
	}()

	// set up services
	validator := core.NewValidator()
	user.InitValidators(validator)
	authSvc := auth.NewService(validator, logger)
	tabs := echoportal.NewTabManager(conf, persistence, nil, authSvc, validator, logger)
	defer tabs.Close()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go tabs.Run(janitorCtx)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("sessionBackend").Set(conf.Session.Backend)
	expvar.Publish("tabs", expvar.Func(func() interface{} { return tabs.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Portal Service

	server := echoportal.NewServer(echoportal.ServerDeps{
		Conf:    conf,
		Logger:  logger,
		Tabs:    tabs,
		AuthSvc: authSvc,
		Routes:  route.Default,
	})

	go func() {
		server.Start()
	}()

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

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpPersistence returns the configured session backend along with the func releasing it.
func setUpPersistence(conf *core.Config) (session.Persistence, func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	switch conf.Session.Backend {
	case "redis":
		rdb := redisstore.NewClient(conf)
		repo := redisstore.NewSessionRepository(rdb, conf.Redis.KeyPrefix, conf.Session.RecordTTL)
		if err := repo.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return repo, rdb.Close, nil

	case "sql":
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlxrepos.NewSessionRepository(db, conf.Session.RecordTTL), db.Close, nil

	default:
		repo := inmemdb.NewSessionRepository(inmemdb.Open(), conf.Session.RecordTTL)
		return repo, func() error { return nil }, nil
	}
}

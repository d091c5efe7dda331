package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/pavulla/kiosk/apps/api/echo"
	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/user"
	"github.com/pavulla/kiosk/services/camera"
	logsvc "github.com/pavulla/kiosk/services/logger"
	"github.com/pavulla/kiosk/services/portal"
	"github.com/pavulla/kiosk/storage/database"
	"github.com/pavulla/kiosk/storage/database/inmem"
	sqlxrepos "github.com/pavulla/kiosk/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	checkin.InitValidators(validate, translator)

	if err := core.ValidateConfig(validate, conf); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	// set up history storage
	repo, closer, err := setUpRepo(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closer.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up camera
	cam, err := camera.New(conf.Scanner, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up camera: %v", err), err)
	}

	// set up services
	checkinSvc := checkin.NewService(checkin.ServiceOptions{
		Provider: cam,
		Repo:     repo,
		Endpoints: checkin.Endpoints{
			ScanBaseURL: conf.Portal.ScanBaseURL,
			APIBaseURL:  conf.Portal.APIBaseURL,
			ClientAppID: conf.Portal.ClientAppID,
		},
		NewDoer: func(token string) checkin.Doer {
			return portal.NewHTTPClient(conf.Portal.APIBaseURL, token, conf.Portal.Timeout)
		},
		SampleInterval: conf.Scanner.SampleInterval,
		Constraints:    camera.ConstraintsFromConfig(conf.Scanner),
		Logger:         logger,
	})
	defer checkinSvc.Close()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("camera").Set(conf.Scanner.Camera)
	expvar.Publish("scans", expvar.Func(func() interface{} { return len(checkinSvc.ListScans()) }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			CheckinSvc: checkinSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setUpRepo opens the check-in history store selected by conf.Database.Engine.
func setUpRepo(conf *core.Config) (checkin.Repository, io.Closer, error) {
	if conf.Database.Engine != core.EnginePostgres {
		return inmemdb.NewCheckinRepository(inmemdb.Open()), nopCloser{}, nil
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf.Database); err != nil {
		return nil, nil, err
	}
	db, err := database.Open(ctx, conf.Database)
	if err != nil {
		return nil, nil, err
	}
	if err = database.Migrate(db.DB, database.MigrateUp); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sqlxrepos.NewCheckinRepository(db), db, nil
}

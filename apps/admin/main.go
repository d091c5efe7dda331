package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	logsvc "github.com/pavulla/kiosk/services/logger"
	"github.com/pavulla/kiosk/services/portal"
	"github.com/pavulla/kiosk/storage/database"
	"github.com/pavulla/kiosk/storage/database/inmem"
	sqlxrepos "github.com/pavulla/kiosk/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	logger.SetLevel(logsvc.LevelWarn)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	if err := core.ValidateConfig(validate, conf); err != nil {
		logger.Fatal("invalid configuration", err)
	}

	tokenFile := conf.Portal.TokenFile
	if tokenFile == "" {
		tokenFile = portal.DefaultTokenFile(conf.WorkDir)
	}

	// start CLI
	cli := commandLine{
		conf:     conf,
		logger:   logger,
		out:      os.Stdout,
		tokens:   portal.NewTokenStore(tokenFile),
		openRepo: func() (checkin.Repository, error) { return openRepo(conf) },
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", userMessage(err))
		}
		os.Exit(1)
	}
}

// openRepo returns the history store; the in-memory engine only lasts for this run.
func openRepo(conf *core.Config) (checkin.Repository, error) {
	if conf.Database.Engine != core.EnginePostgres {
		return inmemdb.NewCheckinRepository(inmemdb.Open()), nil
	}
	db, err := database.Open(context.Background(), conf.Database)
	if err != nil {
		return nil, err
	}
	return sqlxrepos.NewCheckinRepository(db), nil
}

func userMessage(err error) string {
	var stepErr *checkin.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Message()
	}
	return err.Error()
}

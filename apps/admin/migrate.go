package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/storage/database"
)

var (
	// mockable
	migrateFunc = database.Migrate
	openDBFunc  = func(conf core.DatabaseConfig) (*sql.DB, error) {
		db, err := database.Open(context.Background(), conf)
		if err != nil {
			return nil, err
		}
		return db.DB, nil
	}
)

func (cli *commandLine) migrate(direction string) error {
	switch direction {
	case database.MigrateUp, database.MigrateDown, database.MigrateRedo:
	default:
		cli.printUsage()
		return errHelp
	}

	db, err := openDBFunc(cli.conf.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = migrateFunc(db, direction); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "migrate %s: done\n", direction)
	return nil
}

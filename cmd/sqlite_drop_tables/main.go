package main

import (
	"context"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hetulpatel/cexarb/internal/config"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()
	logging.InitFromEnv()
	defer logging.Sync()

	store, err := sqlite.Open(config.EnvSQLitePath())
	if err != nil {
		logging.Fatalf("[sqlite] open audit store: %v", err)
	}
	defer store.Close()

	if err := store.DropTables(context.Background()); err != nil {
		logging.Fatalf("[sqlite] drop audit tables: %v", err)
	}
	logging.Infof("[sqlite] dropped audit tables %s at %s", strings.Join(sqlite.AuditTables, ", "), store.Path())
}

package main

import (
	"context"

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

	if err := store.Migrate(context.Background()); err != nil {
		logging.Fatalf("[sqlite] migrate: %v", err)
	}
	logging.Infof("[sqlite] audit schema migrated at %s", store.Path())
}

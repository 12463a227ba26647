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

	ctx := context.Background()
	store, err := sqlite.Open(config.EnvSQLitePath())
	if err != nil {
		logging.Fatalf("[sqlite] open audit store: %v", err)
	}
	defer store.Close()

	counts, err := store.RowCounts(ctx)
	if err != nil {
		logging.Fatalf("[sqlite] count audit rows: %v", err)
	}
	if err := store.ClearTables(ctx); err != nil {
		logging.Fatalf("[sqlite] clear audit tables: %v", err)
	}
	logging.Infof("[sqlite] cleared %d proposals and %d executions at %s", counts["proposals"], counts["executions"], store.Path())
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultPath = "data/arb.db"
)

// Store wraps a SQLite DB connection holding the append-only audit log.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the SQLite database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := ensureWAL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func ensureWAL(db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			if strings.Contains(err.Error(), "database is locked") {
				time.Sleep(delay)
				continue
			}
			return err
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("database is locked after retries")
}

// Path returns the path backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateTables ensures the audit tables exist.
func (s *Store) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// AuditTables lists the tables the audit schema owns.
var AuditTables = []string{"proposals", "executions"}

// DropTables removes the audit tables.
func (s *Store) DropTables(ctx context.Context) error {
	for _, table := range AuditTables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// ClearTables deletes every audit row but keeps the schema.
func (s *Store) ClearTables(ctx context.Context) error {
	for _, table := range AuditTables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// RowCounts reports how many rows each audit table holds.
func (s *Store) RowCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(AuditTables))
	for _, table := range AuditTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// Migrate drops tables left over from the market-matching pipeline and
// creates the audit schema.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`DROP TABLE IF EXISTS markets;`,
		`DROP TABLE IF EXISTS arb_opportunities;`,
		schemaSQL,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS proposals (
	proposal_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	buy_exchange TEXT NOT NULL,
	sell_exchange TEXT NOT NULL,
	buy_price REAL,
	sell_price REAL,
	gross_spread_pct REAL,
	fees_total_pct REAL,
	slippage_est_pct REAL,
	priority REAL,
	net_roi_pct REAL,
	net_profit_usd REAL,
	qty_usd REAL,
	transfer_type TEXT,
	accepted INTEGER NOT NULL,
	reason TEXT,
	created_at TEXT,
	recorded_at TEXT,
	raw_json TEXT
);
CREATE INDEX IF NOT EXISTS proposals_symbol_idx ON proposals(symbol, created_at);
CREATE TABLE IF NOT EXISTS executions (
	exec_id TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	symbol TEXT,
	buy_exchange TEXT,
	sell_exchange TEXT,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT,
	reason_detail TEXT,
	auto_trigger INTEGER NOT NULL,
	qty_usd REAL,
	pnl_usd REAL,
	fees_usd REAL,
	started_at TEXT,
	completed_at TEXT,
	steps_json TEXT,
	meta_json TEXT
);
CREATE INDEX IF NOT EXISTS executions_proposal_idx ON executions(proposal_id);
`

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

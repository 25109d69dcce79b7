package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/noah-isme/fieldsync-api/pkg/config"
)

func init() {
	// modernc registers itself as "sqlite"; teach sqlx its bindvar style.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewSQLite opens the on-device store with WAL and a busy timeout so the
// capture path and the drain pass can share the file without SQLITE_BUSY.
func NewSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./fieldsync.db"
	}
	busyMillis := cfg.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = (5 * time.Second).Milliseconds()
	}

	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, url.Values{
		"_pragma": []string{
			fmt.Sprintf("busy_timeout(%d)", busyMillis),
			"journal_mode(WAL)",
			"foreign_keys(1)",
			"synchronous(NORMAL)",
		},
	}.Encode())

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer keeps per-record writes atomic without lock churn.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

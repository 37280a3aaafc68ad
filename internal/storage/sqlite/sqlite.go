package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"newswire/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

func init() {
	storage.RegisterFactory("sqlite", New)
}

type SQLiteStorage struct {
	conn       *sql.DB
	watermarks storage.WatermarkStore
	raw        storage.RawStore
	articles   storage.ArticleStore
	summaries  storage.SummaryStore
}

func New(dbPath string) (storage.StorageInterface, error) {
	return Open(dbPath)
}

func Open(dbPath string) (*SQLiteStorage, error) {
	slog.Info("Initializing SQLite storage", "path", dbPath)

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Storage initialized successfully")

	return &SQLiteStorage{
		conn:       conn,
		watermarks: newWatermarkStore(conn),
		raw:        newRawStore(conn),
		articles:   newArticleStore(conn),
		summaries:  newSummaryStore(conn),
	}, nil
}

func runMigrations(conn *sql.DB) error {
	slog.Debug("Running database migrations")

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func (s *SQLiteStorage) GetConnection() *sql.DB {
	return s.conn
}

func (s *SQLiteStorage) Watermarks() storage.WatermarkStore {
	return s.watermarks
}

func (s *SQLiteStorage) Raw() storage.RawStore {
	return s.raw
}

func (s *SQLiteStorage) Articles() storage.ArticleStore {
	return s.articles
}

func (s *SQLiteStorage) Summaries() storage.SummaryStore {
	return s.summaries
}

func (s *SQLiteStorage) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// utc drops the monotonic reading and location so that stored timestamps
// compare correctly as text.
func utc(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return utc(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newswire/internal/storage"
	"newswire/internal/types"
)

type watermarkStore struct {
	db *sql.DB
}

func newWatermarkStore(db *sql.DB) storage.WatermarkStore {
	return &watermarkStore{db: db}
}

const watermarkColumns = `source, provider, last_event_at, last_id, last_fetch_completed_at,
	items_fetched, items_staged, status, last_error`

func (s *watermarkStore) LowerBound(ctx context.Context, source string, provider types.Provider, overlap time.Duration, fallback time.Time) (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT last_event_at FROM fetch_state WHERE source = ? AND provider = ?`,
		source, string(provider),
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	bound := fallback.UTC()
	if last.Valid {
		bound = last.Time.UTC()
	}

	return bound.Add(-overlap), nil
}

func (s *watermarkStore) Advance(ctx context.Context, source string, provider types.Provider, observed time.Time, counts types.FetchCounts) (bool, error) {
	now := utc(time.Now())
	query := `
		INSERT INTO fetch_state (source, provider, last_event_at, last_fetch_completed_at,
			items_fetched, items_staged, status, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'success', '', ?)
		ON CONFLICT(source, provider) DO UPDATE SET
			last_event_at = excluded.last_event_at,
			last_fetch_completed_at = excluded.last_fetch_completed_at,
			items_fetched = excluded.items_fetched,
			items_staged = excluded.items_staged,
			status = 'success',
			last_error = '',
			updated_at = excluded.updated_at
		WHERE fetch_state.last_event_at IS NULL
			OR excluded.last_event_at >= fetch_state.last_event_at
	`

	result, err := s.db.ExecContext(ctx, query,
		source, string(provider), utc(observed), now, counts.Fetched, counts.Staged, now)
	if err != nil {
		return false, fmt.Errorf("failed to advance watermark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if rows == 0 {
		slog.Warn("Rejected watermark regression", "source", source, "provider", provider, "observed", observed.UTC())
		return false, nil
	}

	slog.Debug("Advanced watermark", "source", source, "provider", provider, "last_event_at", observed.UTC())
	return true, nil
}

func (s *watermarkStore) Touch(ctx context.Context, source string, provider types.Provider, counts types.FetchCounts) error {
	now := utc(time.Now())
	query := `
		INSERT INTO fetch_state (source, provider, last_fetch_completed_at,
			items_fetched, items_staged, status, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, 'success', '', ?)
		ON CONFLICT(source, provider) DO UPDATE SET
			last_fetch_completed_at = excluded.last_fetch_completed_at,
			items_fetched = excluded.items_fetched,
			items_staged = excluded.items_staged,
			status = 'success',
			last_error = '',
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, source, string(provider), now, counts.Fetched, counts.Staged, now); err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

func (s *watermarkStore) LastID(ctx context.Context, source string, provider types.Provider) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_id FROM fetch_state WHERE source = ? AND provider = ?`,
		source, string(provider),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read id watermark: %w", err)
	}
	return id, nil
}

func (s *watermarkStore) AdvanceID(ctx context.Context, source string, provider types.Provider, maxID int64) (bool, error) {
	query := `
		INSERT INTO fetch_state (source, provider, last_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source, provider) DO UPDATE SET
			last_id = excluded.last_id,
			updated_at = excluded.updated_at
		WHERE excluded.last_id > fetch_state.last_id
	`

	result, err := s.db.ExecContext(ctx, query, source, string(provider), maxID, utc(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to advance id watermark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

func (s *watermarkStore) MarkFailed(ctx context.Context, source string, provider types.Provider, errMsg string) error {
	query := `
		INSERT INTO fetch_state (source, provider, status, last_error, updated_at)
		VALUES (?, ?, 'failed', ?, ?)
		ON CONFLICT(source, provider) DO UPDATE SET
			status = 'failed',
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, source, string(provider), truncate(errMsg, 500), utc(time.Now())); err != nil {
		return fmt.Errorf("failed to mark fetch state failed: %w", err)
	}
	return nil
}

func (s *watermarkStore) Get(ctx context.Context, source string, provider types.Provider) (*types.Watermark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+watermarkColumns+` FROM fetch_state WHERE source = ? AND provider = ?`,
		source, string(provider))

	wm, err := scanWatermark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch state: %w", err)
	}
	return wm, nil
}

func (s *watermarkStore) List(ctx context.Context) ([]types.Watermark, error) {
	return s.query(ctx, `SELECT `+watermarkColumns+` FROM fetch_state ORDER BY provider, source`)
}

func (s *watermarkStore) Stale(ctx context.Context, olderThan time.Time) ([]types.Watermark, error) {
	return s.query(ctx, `
		SELECT `+watermarkColumns+` FROM fetch_state
		WHERE last_fetch_completed_at IS NULL OR last_fetch_completed_at < ?
		ORDER BY provider, source`, utc(olderThan))
}

func (s *watermarkStore) Reset(ctx context.Context, source string, provider types.Provider) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_state WHERE source = ? AND provider = ?`, source, string(provider))
	if err != nil {
		return fmt.Errorf("failed to reset fetch state: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return types.ErrNotFound
	}
	slog.Info("Reset fetch state", "source", source, "provider", provider)
	return nil
}

func (s *watermarkStore) query(ctx context.Context, query string, args ...interface{}) ([]types.Watermark, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch states: %w", err)
	}
	defer rows.Close()

	var states []types.Watermark
	for rows.Next() {
		wm, err := scanWatermark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetch state: %w", err)
		}
		states = append(states, *wm)
	}
	return states, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWatermark(row scanner) (*types.Watermark, error) {
	var (
		wm        types.Watermark
		provider  string
		lastEvent sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(&wm.Source, &provider, &lastEvent, &wm.LastID, &completed,
		&wm.ItemsFetched, &wm.ItemsStaged, &wm.Status, &wm.LastError); err != nil {
		return nil, err
	}
	wm.Provider = types.Provider(provider)
	wm.LastEventAt = timePtr(lastEvent)
	wm.LastFetchCompletedAt = timePtr(completed)
	return &wm, nil
}

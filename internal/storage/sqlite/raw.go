package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newswire/internal/storage"
	"newswire/internal/types"
)

const maxErrorDetail = 1000

type rawStore struct {
	db *sql.DB
}

func newRawStore(db *sql.DB) storage.RawStore {
	return &rawStore{db: db}
}

func (s *rawStore) Stage(ctx context.Context, record *types.RawRecord) (types.StageResult, error) {
	if record.DedupKey == "" {
		return 0, fmt.Errorf("failed to stage record: empty dedup key")
	}

	symbols, err := json.Marshal(nonNil(record.Symbols))
	if err != nil {
		return 0, fmt.Errorf("failed to encode symbols: %w", err)
	}

	payload := record.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	var externalID interface{}
	if record.ExternalID != "" {
		externalID = record.ExternalID
	}

	now := utc(time.Now())
	fetchedAt := record.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}

	query := `
		INSERT INTO raw_news (provider, source, external_id, dedup_key, url, title, summary,
			source_name, symbols, payload, published_at, fetched_at, processing_status,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		string(record.Provider), record.Source, externalID, record.DedupKey, record.URL,
		record.Title, record.Summary, record.SourceName, string(symbols), string(payload),
		utc(record.PublishedAt), utc(fetchedAt), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to stage record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return types.StageSkippedDuplicate, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	record.Status = types.StatusPending
	return types.StageStaged, nil
}

func (s *rawStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_news WHERE processing_status = ?`, string(types.StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

func (s *rawStore) FetchPending(ctx context.Context, limit int) ([]*types.RawRecord, error) {
	query, args, err := sq.Select(rawColumns...).
		From("raw_news").
		Where(sq.Eq{"processing_status": string(types.StatusPending)}).
		Where(sq.Or{
			sq.Eq{"claim_token": nil},
			sq.Lt{"claimed_at": utc(time.Now())},
		}).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending records: %w", err)
	}
	defer rows.Close()

	records := make([]*types.RawRecord, 0, limit)
	for rows.Next() {
		record, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Claim takes a lease on a pending record. claimed_at holds the lease
// expiry; the record stays pending so an abandoned lease is retried.
func (s *rawStore) Claim(ctx context.Context, id int64, token string, lease time.Duration) (bool, error) {
	now := utc(time.Now())
	result, err := s.db.ExecContext(ctx, `
		UPDATE raw_news SET claim_token = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND processing_status = 'pending'
			AND (claim_token IS NULL OR claimed_at < ?)`,
		token, now.Add(lease), now, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim record %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

func (s *rawStore) MarkCompleted(ctx context.Context, id int64) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_news SET processing_status = 'completed', error_detail = NULL,
			claim_token = NULL, claimed_at = NULL, processed_at = ?, updated_at = ?
		WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d completed: %w", id, err)
	}
	return nil
}

func (s *rawStore) MarkFailed(ctx context.Context, id int64, detail string) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_news SET processing_status = 'failed', error_detail = ?,
			claim_token = NULL, claimed_at = NULL, processed_at = ?, updated_at = ?
		WHERE id = ?`, truncate(detail, maxErrorDetail), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d failed: %w", id, err)
	}
	return nil
}

func (s *rawStore) ResetFailed(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE raw_news SET processing_status = 'pending', error_detail = NULL,
			claim_token = NULL, claimed_at = NULL, processed_at = NULL, updated_at = ?
		WHERE processing_status = 'failed'`, utc(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	slog.Info("Reset failed records to pending", "count", rows)
	return int(rows), nil
}

func (s *rawStore) Stats(ctx context.Context) (types.RawStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT processing_status, COUNT(*) FROM raw_news GROUP BY processing_status`)
	if err != nil {
		return types.RawStats{}, fmt.Errorf("failed to read raw stats: %w", err)
	}
	defer rows.Close()

	var stats types.RawStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return types.RawStats{}, fmt.Errorf("failed to scan raw stats: %w", err)
		}
		stats.Total += count
		switch types.ProcessingStatus(status) {
		case types.StatusPending:
			stats.Pending = count
		case types.StatusCompleted:
			stats.Completed = count
		case types.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (s *rawStore) DeleteProcessedOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := utc(time.Now().Add(-age))

	slog.Debug("Deleting processed records older than cutoff", "age", age, "cutoff", cutoff.Format(time.RFC3339))
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM raw_news WHERE processing_status = 'completed' AND processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	slog.Debug("Deleted old records", "count", rows)
	return int(rows), nil
}

var rawColumns = []string{
	"id", "provider", "source", "external_id", "dedup_key", "url", "title", "summary",
	"source_name", "symbols", "payload", "published_at", "fetched_at", "processing_status",
	"error_detail",
}

func scanRaw(row scanner) (*types.RawRecord, error) {
	var (
		r          types.RawRecord
		provider   string
		externalID sql.NullString
		symbols    string
		payload    string
		status     string
		detail     sql.NullString
	)
	if err := row.Scan(&r.ID, &provider, &r.Source, &externalID, &r.DedupKey, &r.URL, &r.Title,
		&r.Summary, &r.SourceName, &symbols, &payload, &r.PublishedAt, &r.FetchedAt, &status,
		&detail); err != nil {
		return nil, err
	}

	r.Provider = types.Provider(provider)
	r.ExternalID = externalID.String
	r.Status = types.ProcessingStatus(status)
	r.ErrorDetail = stringPtr(detail)
	r.Payload = json.RawMessage(payload)
	r.PublishedAt = r.PublishedAt.UTC()
	r.FetchedAt = r.FetchedAt.UTC()
	if err := json.Unmarshal([]byte(symbols), &r.Symbols); err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newswire/internal/storage"
	"newswire/internal/types"
)

type summaryStore struct {
	db *sql.DB
}

func newSummaryStore(db *sql.DB) storage.SummaryStore {
	return &summaryStore{db: db}
}

func (s *summaryStore) Save(ctx context.Context, summary *types.Summary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (period_start, period_end, article_count, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		utc(summary.PeriodStart), utc(summary.PeriodEnd), summary.ArticleCount,
		summary.Content, utc(summary.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		summary.ID = id
	}
	return nil
}

func (s *summaryStore) Latest(ctx context.Context) (*types.Summary, error) {
	var sum types.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, period_start, period_end, article_count, content, created_at
		FROM summaries ORDER BY id DESC LIMIT 1`,
	).Scan(&sum.ID, &sum.PeriodStart, &sum.PeriodEnd, &sum.ArticleCount, &sum.Content, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest summary: %w", err)
	}

	sum.PeriodStart = sum.PeriodStart.UTC()
	sum.PeriodEnd = sum.PeriodEnd.UTC()
	sum.CreatedAt = sum.CreatedAt.UTC()
	return &sum, nil
}

package storage

import (
	"context"
	"database/sql"
	"time"

	"newswire/internal/types"
)

type StorageInterface interface {
	GetConnection() *sql.DB
	Watermarks() WatermarkStore
	Raw() RawStore
	Articles() ArticleStore
	Summaries() SummaryStore
	Close(ctx context.Context) error
}

// WatermarkStore persists the ingestion boundary per (source, provider).
type WatermarkStore interface {
	// LowerBound returns the stored event-time watermark minus overlap, or
	// fallback minus overlap when no watermark exists yet.
	LowerBound(ctx context.Context, source string, provider types.Provider, overlap time.Duration, fallback time.Time) (time.Time, error)
	// Advance moves the watermark to observed. It is a no-op returning false
	// when observed is earlier than the stored value.
	Advance(ctx context.Context, source string, provider types.Provider, observed time.Time, counts types.FetchCounts) (bool, error)
	Touch(ctx context.Context, source string, provider types.Provider, counts types.FetchCounts) error
	LastID(ctx context.Context, source string, provider types.Provider) (int64, error)
	AdvanceID(ctx context.Context, source string, provider types.Provider, maxID int64) (bool, error)
	MarkFailed(ctx context.Context, source string, provider types.Provider, errMsg string) error
	Get(ctx context.Context, source string, provider types.Provider) (*types.Watermark, error)
	List(ctx context.Context) ([]types.Watermark, error)
	Stale(ctx context.Context, olderThan time.Time) ([]types.Watermark, error)
	Reset(ctx context.Context, source string, provider types.Provider) error
}

// RawStore is the staging area for fetched but unclassified records.
type RawStore interface {
	Stage(ctx context.Context, record *types.RawRecord) (types.StageResult, error)
	CountPending(ctx context.Context) (int, error)
	FetchPending(ctx context.Context, limit int) ([]*types.RawRecord, error)
	Claim(ctx context.Context, id int64, token string, lease time.Duration) (bool, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, detail string) error
	ResetFailed(ctx context.Context) (int, error)
	Stats(ctx context.Context) (types.RawStats, error)
	DeleteProcessedOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// ArticleStore is the production store of classified records.
type ArticleStore interface {
	Upsert(ctx context.Context, article *types.Article) error
	UpdateLabels(ctx context.Context, id int64, update LabelUpdate) error
	Claim(ctx context.Context, id int64, token string, lease time.Duration, terminal []string) (bool, error)
	Get(ctx context.Context, provider types.Provider, externalRef string) (*types.Article, error)
	NeedingReclassification(ctx context.Context, terminal []string, limit int) ([]*types.Article, error)
	CountNeedingReclassification(ctx context.Context, terminal []string) (int, error)
	ListIncluded(ctx context.Context, included []string, since time.Time, limit int) ([]*types.Article, error)
	LabelCounts(ctx context.Context) (map[string]int, error)
}

// LabelUpdate replaces the labels of an article. A non-empty ClaimToken
// restricts the write to the holder of that claim.
type LabelUpdate struct {
	ClaimToken      string
	PrimaryLabel    string
	SecondaryLabels []string
	ModelLabel      string
	ErrorDetail     *string
}

type SummaryStore interface {
	Save(ctx context.Context, summary *types.Summary) error
	Latest(ctx context.Context) (*types.Summary, error)
}

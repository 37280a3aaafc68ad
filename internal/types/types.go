package types

import (
	"encoding/json"
	"time"
)

type Provider string

const (
	ProviderFinnhub        Provider = "finnhub"
	ProviderFinnhubCompany Provider = "finnhub_company"
	ProviderPolygon        Provider = "polygon"
	ProviderRSS            Provider = "rss"
)

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// Reserved primary labels. They are never part of the configured taxonomy.
const (
	LabelUncategorized = "UNCATEGORIZED"
	LabelError         = "ERROR"
	LabelExcluded      = "EXCLUDED"
)

// IsAbsorbing reports whether label is one that no later write replaces.
func IsAbsorbing(label string) bool {
	return label == LabelError || label == LabelExcluded
}

// RawRecord is one fetched item before classification.
type RawRecord struct {
	ID          int64
	Provider    Provider
	Source      string
	ExternalID  string
	DedupKey    string
	URL         string
	Title       string
	Summary     string
	SourceName  string
	Symbols     []string
	Payload     json.RawMessage
	PublishedAt time.Time
	FetchedAt   time.Time
	Status      ProcessingStatus
	ErrorDetail *string
}

// ExternalRef is the provider-scoped identity used by the production store.
func (r *RawRecord) ExternalRef() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	return r.DedupKey
}

type StageResult int

const (
	StageStaged StageResult = iota
	StageSkippedDuplicate
)

func (s StageResult) String() string {
	switch s {
	case StageStaged:
		return "staged"
	case StageSkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

type RawStats struct {
	Total     int
	Pending   int
	Completed int
	Failed    int
}

// Article is the production-facing classified record.
type Article struct {
	ID              int64
	RawID           int64
	Provider        Provider
	ExternalRef     string
	URL             string
	Title           string
	Summary         string
	SourceLabel     string
	PrimaryLabel    string
	SecondaryLabels []string
	ModelLabel      string
	ErrorDetail     *string
	PublishedAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Watermark struct {
	Source               string
	Provider             Provider
	LastEventAt          *time.Time
	LastID               int64
	LastFetchCompletedAt *time.Time
	ItemsFetched         int
	ItemsStaged          int
	Status               string
	LastError            string
}

type FetchCounts struct {
	Fetched int
	Staged  int
}

type Summary struct {
	ID           int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	ArticleCount int
	Content      string
	CreatedAt    time.Time
}

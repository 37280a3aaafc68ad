package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newswire/internal/storage"
	"newswire/internal/types"
)

type articleStore struct {
	db *sql.DB
}

func newArticleStore(db *sql.DB) storage.ArticleStore {
	return &articleStore{db: db}
}

var articleColumns = []string{
	"id", "raw_id", "provider", "external_ref", "url", "title", "summary", "source_label",
	"primary_label", "secondary_labels", "model_label", "error_detail", "published_at",
	"created_at", "updated_at",
}

func (s *articleStore) Upsert(ctx context.Context, article *types.Article) error {
	if article.ExternalRef == "" {
		return fmt.Errorf("failed to upsert article: empty external reference")
	}

	secondary, err := encodeLabels(article.SecondaryLabels)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	query := `
		INSERT INTO articles (raw_id, provider, external_ref, url, title, summary, source_label,
			primary_label, secondary_labels, model_label, error_detail, published_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, external_ref) DO UPDATE SET
			raw_id = excluded.raw_id,
			url = excluded.url,
			title = excluded.title,
			summary = excluded.summary,
			source_label = excluded.source_label,
			primary_label = excluded.primary_label,
			secondary_labels = excluded.secondary_labels,
			model_label = excluded.model_label,
			error_detail = excluded.error_detail,
			published_at = excluded.published_at,
			claim_token = NULL,
			claimed_at = NULL,
			updated_at = excluded.updated_at
		WHERE articles.primary_label NOT IN (?, ?)
		RETURNING id
	`

	var rawID interface{}
	if article.RawID != 0 {
		rawID = article.RawID
	}

	err = s.db.QueryRowContext(ctx, query,
		rawID, string(article.Provider), article.ExternalRef, article.URL, article.Title,
		article.Summary, article.SourceLabel, article.PrimaryLabel, secondary, article.ModelLabel,
		nullString(article.ErrorDetail), utc(article.PublishedAt), now, now,
		types.LabelError, types.LabelExcluded,
	).Scan(&article.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to upsert article %s: %w", article.ExternalRef, types.ErrAbsorbingLabel)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}
	return nil
}

func (s *articleStore) UpdateLabels(ctx context.Context, id int64, update storage.LabelUpdate) error {
	secondary, err := encodeLabels(update.SecondaryLabels)
	if err != nil {
		return err
	}

	builder := sq.Update("articles").
		Set("primary_label", update.PrimaryLabel).
		Set("secondary_labels", secondary).
		Set("model_label", update.ModelLabel).
		Set("error_detail", nullString(update.ErrorDetail)).
		Set("claim_token", nil).
		Set("claimed_at", nil).
		Set("updated_at", utc(time.Now())).
		Where(sq.Eq{"id": id})
	if update.ClaimToken != "" {
		builder = builder.Where(sq.Eq{"claim_token": update.ClaimToken})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build label update: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update labels for article %d: %w", id, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		if update.ClaimToken != "" {
			return fmt.Errorf("failed to update labels for article %d: %w", id, types.ErrClaimLost)
		}
		return fmt.Errorf("failed to update labels for article %d: %w", id, types.ErrNotFound)
	}
	return nil
}

// Claim takes a lease on an article whose label is outside terminal. It
// reports false when the row is claimed elsewhere or already settled.
func (s *articleStore) Claim(ctx context.Context, id int64, token string, lease time.Duration, terminal []string) (bool, error) {
	now := utc(time.Now())
	builder := sq.Update("articles").
		Set("claim_token", token).
		Set("claimed_at", now.Add(lease)).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{
			sq.Eq{"claim_token": nil},
			sq.Lt{"claimed_at": now},
		})
	if len(terminal) > 0 {
		builder = builder.Where(sq.NotEq{"primary_label": terminal})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build claim query: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim article %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

func (s *articleStore) Get(ctx context.Context, provider types.Provider, externalRef string) (*types.Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"provider": string(provider), "external_ref": externalRef}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	article, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

// NeedingReclassification returns articles whose primary label is outside
// terminal, oldest first, skipping rows under a live claim.
func (s *articleStore) NeedingReclassification(ctx context.Context, terminal []string, limit int) ([]*types.Article, error) {
	builder := sq.Select(articleColumns...).
		From("articles").
		Where(sq.NotEq{"primary_label": terminal}).
		Where(sq.Or{
			sq.Eq{"claim_token": nil},
			sq.Lt{"claimed_at": utc(time.Now())},
		}).
		OrderBy("id ASC").
		Limit(uint64(limit))

	return s.list(ctx, builder)
}

func (s *articleStore) CountNeedingReclassification(ctx context.Context, terminal []string) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("articles").
		Where(sq.NotEq{"primary_label": terminal}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles needing reclassification: %w", err)
	}
	return count, nil
}

// ListIncluded returns articles labelled with one of the whitelisted labels,
// newest first.
func (s *articleStore) ListIncluded(ctx context.Context, included []string, since time.Time, limit int) ([]*types.Article, error) {
	if len(included) == 0 {
		return nil, nil
	}

	builder := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"primary_label": included}).
		Where(sq.GtOrEq{"published_at": utc(since)}).
		OrderBy("published_at DESC").
		Limit(uint64(limit))

	return s.list(ctx, builder)
}

func (s *articleStore) LabelCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT primary_label, COUNT(*) FROM articles GROUP BY primary_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = count
	}
	return counts, rows.Err()
}

func (s *articleStore) list(ctx context.Context, builder sq.SelectBuilder) ([]*types.Article, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*types.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func scanArticle(row scanner) (*types.Article, error) {
	var (
		a         types.Article
		rawID     sql.NullInt64
		provider  string
		secondary string
		detail    sql.NullString
	)
	if err := row.Scan(&a.ID, &rawID, &provider, &a.ExternalRef, &a.URL, &a.Title, &a.Summary,
		&a.SourceLabel, &a.PrimaryLabel, &secondary, &a.ModelLabel, &detail, &a.PublishedAt,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	a.RawID = rawID.Int64
	a.Provider = types.Provider(provider)
	a.ErrorDetail = stringPtr(detail)
	a.PublishedAt = a.PublishedAt.UTC()
	if err := json.Unmarshal([]byte(secondary), &a.SecondaryLabels); err != nil {
		return nil, fmt.Errorf("failed to decode secondary labels: %w", err)
	}
	return &a, nil
}

// NormalizeEntities applies set semantics to secondary labels.
func NormalizeEntities(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ToUpper(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func encodeLabels(labels []string) (string, error) {
	data, err := json.Marshal(NormalizeEntities(labels))
	if err != nil {
		return "", fmt.Errorf("failed to encode secondary labels: %w", err)
	}
	return string(data), nil
}

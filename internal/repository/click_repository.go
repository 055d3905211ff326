package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shortloop/gateway/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClickRepository handles the append-only clicks table and the analytics
// aggregation queries over it.
type ClickRepository struct {
	db *pgxpool.Pool
}

// NewClickRepository creates a new click repository
func NewClickRepository(db *pgxpool.Pool) *ClickRepository {
	return &ClickRepository{db: db}
}

// Insert appends one click event. Click rows are never updated.
func (r *ClickRepository) Insert(ctx context.Context, click *model.Click) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "clicks"),
		),
	)
	defer span.End()

	query := `
		INSERT INTO clicks (id, link_id, clicked_at, ip_hash, country, city,
			referrer, user_agent, browser, os, device_type, is_bot, is_unique,
			utm_source, utm_medium, utm_campaign)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.Exec(ctx, query,
		click.ID, click.LinkID, click.ClickedAt, click.IPHash, click.Country, click.City,
		click.Referrer, click.UserAgent, click.Browser, click.OS, click.DeviceType,
		click.IsBot, click.IsUnique,
		click.UTMSource, click.UTMMedium, click.UTMCampaign,
	)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SeenWithin reports whether a click with this ip_hash exists for the link
// inside the trailing window. Used for the unique-click determination.
func (r *ClickRepository) SeenWithin(ctx context.Context, linkID uuid.UUID, ipHash string, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "clicks"),
		),
	)
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM clicks
			WHERE link_id = $1 AND ip_hash = $2 AND clicked_at > $3
		)
	`
	var seen bool
	err := r.db.QueryRow(ctx, query, linkID, ipHash, time.Now().Add(-window)).Scan(&seen)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return seen, nil
}

// Stats returns the aggregate counters for a link. Human counts exclude
// clicks flagged as bots.
func (r *ClickRepository) Stats(ctx context.Context, linkID uuid.UUID) (*model.ClickStats, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "clicks"),
		),
	)
	defer span.End()

	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_unique),
			COUNT(*) FILTER (WHERE NOT is_bot),
			COUNT(*) FILTER (WHERE is_bot)
		FROM clicks WHERE link_id = $1
	`
	var stats model.ClickStats
	err := r.db.QueryRow(ctx, query, linkID).Scan(
		&stats.TotalClicks, &stats.UniqueClicks, &stats.HumanClicks, &stats.BotClicks)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &stats, nil
}

// Daily returns the per-day click series for the trailing number of days.
func (r *ClickRepository) Daily(ctx context.Context, linkID uuid.UUID, days int) ([]model.DailyClicks, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "clicks"),
		),
	)
	defer span.End()

	query := `
		SELECT to_char(date_trunc('day', clicked_at), 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_unique)
		FROM clicks
		WHERE link_id = $1 AND clicked_at > now() - ($2 || ' days')::interval
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.Query(ctx, query, linkID, days)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var series []model.DailyClicks
	for rows.Next() {
		var d model.DailyClicks
		if err := rows.Scan(&d.Date, &d.Clicks, &d.Unique); err != nil {
			span.RecordError(err)
			return nil, err
		}
		series = append(series, d)
	}
	return series, rows.Err()
}

// Breakdown groups human clicks for a link by one of the allowed columns.
func (r *ClickRepository) Breakdown(ctx context.Context, linkID uuid.UUID, dimension string) ([]model.BreakdownEntry, error) {
	// Column names cannot be parameterized; restrict to a fixed set.
	var column string
	switch dimension {
	case "device", "devices":
		column = "device_type"
	case "country", "countries":
		column = "country"
	case "referrer", "referrers":
		column = "referrer"
	case "browser", "browsers":
		column = "browser"
	default:
		return nil, ErrNotFound
	}

	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "clicks"),
			attribute.String("dimension", column),
		),
	)
	defer span.End()

	query := `
		SELECT ` + column + `, COUNT(*)
		FROM clicks
		WHERE link_id = $1 AND NOT is_bot AND ` + column + ` <> ''
		GROUP BY ` + column + `
		ORDER BY COUNT(*) DESC
		LIMIT 20
	`
	rows, err := r.db.Query(ctx, query, linkID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var entries []model.BreakdownEntry
	for rows.Next() {
		var e model.BreakdownEntry
		if err := rows.Scan(&e.Key, &e.Clicks); err != nil {
			span.RecordError(err)
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

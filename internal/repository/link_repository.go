package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shortloop/gateway/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound     = errors.New("link not found")
	ErrCodeConflict = errors.New("short code already exists")
)

const linkColumns = `id, short_code, custom_alias, original_url, owner_id, is_active,
	redirect_status, password_hash, expires_at, max_clicks,
	click_count, unique_click_count, last_click_at,
	utm_source, utm_medium, utm_campaign,
	countries, countries_allow, device_types, created_at, updated_at`

// LinkRepository handles database operations for links
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

func scanLink(row pgx.Row) (*model.Link, error) {
	var l model.Link
	err := row.Scan(&l.ID, &l.ShortCode, &l.CustomAlias, &l.OriginalURL, &l.OwnerID, &l.IsActive,
		&l.RedirectStatus, &l.PasswordHash, &l.ExpiresAt, &l.MaxClicks,
		&l.ClickCount, &l.UniqueClickCount, &l.LastClickAt,
		&l.UTMSource, &l.UTMMedium, &l.UTMCampaign,
		&l.Countries, &l.CountriesAllow, &l.DeviceTypes, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new link record. A unique-constraint violation on the
// short code or alias is mapped to ErrCodeConflict so callers can handle
// collisions without inspecting pg error codes.
func (r *LinkRepository) Create(ctx context.Context, link *model.Link) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_code", link.ShortCode),
		),
	)
	defer span.End()

	query := `
		INSERT INTO links (id, short_code, custom_alias, original_url, owner_id, is_active,
			redirect_status, password_hash, expires_at, max_clicks,
			utm_source, utm_medium, utm_campaign,
			countries, countries_allow, device_types)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		link.ID, link.ShortCode, link.CustomAlias, link.OriginalURL, link.OwnerID, link.IsActive,
		link.RedirectStatus, link.PasswordHash, link.ExpiresAt, link.MaxClicks,
		link.UTMSource, link.UTMMedium, link.UTMCampaign,
		link.Countries, link.CountriesAllow, link.DeviceTypes,
	).Scan(&link.CreatedAt, &link.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeConflict
		}
		return err
	}

	return nil
}

// GetByCode retrieves a link by its short code or custom alias.
func (r *LinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_code", code),
		),
	)
	defer span.End()

	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1 OR custom_alias = $1`
	link, err := scanLink(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return link, nil
}

// ListByOwner returns all links belonging to an owner, newest first.
func (r *LinkRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Link, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "links"),
		),
	)
	defer span.End()

	query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Update persists mutable link fields. The short code itself is immutable.
func (r *LinkRepository) Update(ctx context.Context, link *model.Link) error {
	ctx, span := tracer.Start(ctx, "db.update",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "UPDATE"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_code", link.ShortCode),
		),
	)
	defer span.End()

	query := `
		UPDATE links SET
			original_url = $2, is_active = $3, redirect_status = $4,
			password_hash = $5, expires_at = $6, max_clicks = $7,
			utm_source = $8, utm_medium = $9, utm_campaign = $10,
			countries = $11, countries_allow = $12, device_types = $13,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		link.ID, link.OriginalURL, link.IsActive, link.RedirectStatus,
		link.PasswordHash, link.ExpiresAt, link.MaxClicks,
		link.UTMSource, link.UTMMedium, link.UTMCampaign,
		link.Countries, link.CountriesAllow, link.DeviceTypes,
	).Scan(&link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// Delete removes a link by its short code or alias.
func (r *LinkRepository) Delete(ctx context.Context, code string) error {
	ctx, span := tracer.Start(ctx, "db.delete",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "DELETE"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_code", code),
		),
	)
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM links WHERE short_code = $1 OR custom_alias = $1`, code)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementClicks bumps the click counters in place at the store. The
// increment must happen database-side: read-modify-write from the
// application loses updates under concurrent clicks.
func (r *LinkRepository) IncrementClicks(ctx context.Context, linkID uuid.UUID, unique bool) error {
	ctx, span := tracer.Start(ctx, "db.update",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "UPDATE"),
			attribute.String("db.sql.table", "links"),
		),
	)
	defer span.End()

	query := `
		UPDATE links SET
			click_count = click_count + 1,
			unique_click_count = unique_click_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_click_at = now()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, linkID, unique)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package clicks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shortloop/gateway/internal/model"
)

// Referrer and User-Agent strings are truncated before persisting.
const maxHeaderLen = 500

// ClickStore is the append-only click persistence contract.
type ClickStore interface {
	Insert(ctx context.Context, click *model.Click) error
	SeenWithin(ctx context.Context, linkID uuid.UUID, ipHash string, window time.Duration) (bool, error)
}

// CounterStore bumps the per-link counters atomically at the store.
type CounterStore interface {
	IncrementClicks(ctx context.Context, linkID uuid.UUID, unique bool) error
}

// Recorder turns a raw click message into a persisted ClickEvent:
// keyed IP hash, geo lookup, UA classification, uniqueness check, insert,
// counter increment. Every enrichment step is best-effort; only the final
// persist decides success.
type Recorder struct {
	store    ClickStore
	counters CounterStore
	hasher   *IPHasher
	geo      GeoSource
	window   time.Duration
	logger   *slog.Logger
	onRecord func()
}

// NewRecorder wires the recorder. geo may be nil (no location data).
func NewRecorder(store ClickStore, counters CounterStore, hasher *IPHasher, geo GeoSource, window time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Recorder{
		store:    store,
		counters: counters,
		hasher:   hasher,
		geo:      geo,
		window:   window,
		logger:   logger,
	}
}

// SetRecordHook registers a callback fired per persisted click, wired to
// metrics by the server.
func (r *Recorder) SetRecordHook(hook func()) {
	r.onRecord = hook
}

// Record enriches and persists one click, then bumps the link counters.
// The returned error reports a failed persist or increment; the redirect
// that caused the click has long been served either way.
func (r *Recorder) Record(ctx context.Context, raw model.RawClick) (*model.Click, error) {
	ipHash := r.hasher.Hash(raw.IP)

	country := ""
	if r.geo != nil {
		country = r.geo.Country(raw.IP)
	}

	ua := ParseUserAgent(raw.UserAgent)

	// A click is unique when this hashed IP has not hit this link inside
	// the trailing window. A failed check degrades to non-unique rather
	// than blocking the persist.
	unique := false
	seen, err := r.store.SeenWithin(ctx, raw.LinkID, ipHash, r.window)
	if err != nil {
		r.logger.Warn("uniqueness check failed",
			slog.String("code", raw.ShortCode),
			slog.String("error", err.Error()))
	} else {
		unique = !seen
	}

	clickedAt := raw.OccurredAt
	if clickedAt.IsZero() {
		clickedAt = time.Now()
	}

	click := &model.Click{
		ID:          uuid.New(),
		LinkID:      raw.LinkID,
		ClickedAt:   clickedAt,
		IPHash:      ipHash,
		Country:     country,
		Referrer:    truncate(raw.Referrer, maxHeaderLen),
		UserAgent:   truncate(raw.UserAgent, maxHeaderLen),
		Browser:     ua.Browser,
		OS:          ua.OS,
		DeviceType:  ua.DeviceType,
		IsBot:       ua.IsBot,
		IsUnique:    unique,
		UTMSource:   raw.UTMSource,
		UTMMedium:   raw.UTMMedium,
		UTMCampaign: raw.UTMCampaign,
	}

	if err := r.store.Insert(ctx, click); err != nil {
		return nil, err
	}
	if err := r.counters.IncrementClicks(ctx, raw.LinkID, unique); err != nil {
		return click, err
	}

	if r.onRecord != nil {
		r.onRecord()
	}
	return click, nil
}

// Publish lets the Recorder stand in as the dispatcher sink when no
// broker is configured: clicks are recorded in-process.
func (r *Recorder) Publish(ctx context.Context, click model.RawClick) error {
	_, err := r.Record(ctx, click)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Sink = (*Recorder)(nil)

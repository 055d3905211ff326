package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shortloop/gateway/internal/model"
	"github.com/sony/gobreaker"
)

// LinkStore is the record-store contract the cached decorator wraps.
type LinkStore interface {
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	Create(ctx context.Context, link *model.Link) error
	Update(ctx context.Context, link *model.Link) error
	Delete(ctx context.Context, code string) error
}

// CachedLinkRepository is a cache-aside decorator over LinkRepository.
// Redis reads run behind a circuit breaker so a down cache degrades to
// store-only lookups instead of paying a connection timeout per request.
// The store stays authoritative; cached entries are deleted, never
// updated in place, on every mutation.
type CachedLinkRepository struct {
	db      *LinkRepository
	cache   *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	// optional callbacks fired on lookup outcomes, wired to metrics
	onHit  func()
	onMiss func()
}

// NewCachedLinkRepository wraps db with a Redis cache. A nil cache client
// disables caching entirely.
func NewCachedLinkRepository(db *LinkRepository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLinkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "link-cache",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &CachedLinkRepository{
		db:      db,
		cache:   cache,
		ttl:     ttl,
		breaker: breaker,
		logger:  logger,
	}
}

// SetLookupHooks registers callbacks fired on cache hit and miss.
func (r *CachedLinkRepository) SetLookupHooks(onHit, onMiss func()) {
	r.onHit = onHit
	r.onMiss = onMiss
}

func cacheKey(code string) string {
	return fmt.Sprintf("link:%s", code)
}

// cacheEntry is the Redis serialization of a link. The API-facing JSON
// shape of model.Link omits the password hash, so the entry carries it
// in a shadow field; a cache hit must keep every policy-relevant field.
type cacheEntry struct {
	model.Link
	PasswordHash *string `json:"password_hash,omitempty"`
}

func newCacheEntry(link *model.Link) cacheEntry {
	return cacheEntry{Link: *link, PasswordHash: link.PasswordHash}
}

func (e cacheEntry) link() *model.Link {
	l := e.Link
	l.PasswordHash = e.PasswordHash
	return &l
}

// GetByCode resolves a link with the cache-aside pattern: cache first,
// store on miss, then populate the cache with a bounded TTL.
func (r *CachedLinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	if r.cache != nil {
		if link, ok := r.cacheGet(ctx, code); ok {
			if r.onHit != nil {
				r.onHit()
			}
			return link, nil
		}
	}
	if r.onMiss != nil {
		r.onMiss()
	}

	link, err := r.db.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(newCacheEntry(link)); err == nil {
			if err := r.cache.Set(ctx, cacheKey(code), data, r.ttl).Err(); err != nil {
				r.logger.Warn("cache set failed", slog.String("code", code), slog.String("error", err.Error()))
			}
		}
	}

	return link, nil
}

func (r *CachedLinkRepository) cacheGet(ctx context.Context, code string) (*model.Link, bool) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.cache.Get(ctx, cacheKey(code)).Result()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, gobreaker.ErrOpenState) {
			r.logger.Warn("cache get failed", slog.String("code", code), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(result.(string)), &entry); err != nil {
		return nil, false
	}
	return entry.link(), true
}

// GetByCodeFresh bypasses the cache and reads straight from the store.
// Used where a stale cached copy must not decide the outcome, e.g. the
// click-cap re-check.
func (r *CachedLinkRepository) GetByCodeFresh(ctx context.Context, code string) (*model.Link, error) {
	return r.db.GetByCode(ctx, code)
}

// Create inserts through to the store. Nothing is cached on create: the
// first lookup populates the entry.
func (r *CachedLinkRepository) Create(ctx context.Context, link *model.Link) error {
	return r.db.Create(ctx, link)
}

// Update writes through to the store and invalidates the cached entry.
func (r *CachedLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if err := r.db.Update(ctx, link); err != nil {
		return err
	}
	r.Invalidate(ctx, link.ShortCode)
	if link.CustomAlias != nil {
		r.Invalidate(ctx, *link.CustomAlias)
	}
	return nil
}

// Delete removes the record and invalidates the cached entry. The link is
// fetched first so the alias key can be invalidated along with the code.
func (r *CachedLinkRepository) Delete(ctx context.Context, code string) error {
	link, err := r.db.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := r.db.Delete(ctx, code); err != nil {
		return err
	}
	r.Invalidate(ctx, link.ShortCode)
	if link.CustomAlias != nil {
		r.Invalidate(ctx, *link.CustomAlias)
	}
	return nil
}

// Invalidate deletes the cache entry for a code. Failures are logged and
// swallowed: the entry still ages out with its TTL.
func (r *CachedLinkRepository) Invalidate(ctx context.Context, code string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(code)).Err(); err != nil {
		r.logger.Warn("cache invalidation failed", slog.String("code", code), slog.String("error", err.Error()))
	}
}

var _ LinkStore = (*CachedLinkRepository)(nil)

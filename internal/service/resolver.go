package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shortloop/gateway/internal/model"
	"github.com/shortloop/gateway/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// DenyReason is the typed outcome of a failed policy check. Denials are
// expected, user-visible results, not errors: the transport layer maps
// them to response codes.
type DenyReason string

const (
	DenyNotFound          DenyReason = "not_found"
	DenyDeactivated       DenyReason = "deactivated"
	DenyExpired           DenyReason = "expired"
	DenyPasswordRequired  DenyReason = "password_required"
	DenyPasswordMismatch  DenyReason = "password_mismatch"
	DenyGeoRestricted     DenyReason = "geo_restricted"
	DenyDeviceRestricted  DenyReason = "device_restricted"
	DenyClickLimitReached DenyReason = "click_limit_reached"
)

// Resolution is the resolver's result sum: either an allowed redirect
// (TargetURL + Status) or a typed denial (Reason).
type Resolution struct {
	Allowed   bool
	TargetURL string
	Status    int
	Reason    DenyReason
}

// ResolveRequest carries the requester context needed by the policy
// checks. The raw IP is used only for geo lookup and the click message;
// it is never persisted.
type ResolveRequest struct {
	Code      string
	Password  string
	IP        string
	UserAgent string
	Referrer  string
}

// ResolverStore is the link lookup contract: a cached read plus a
// cache-bypassing read for checks that must see the authoritative state.
type ResolverStore interface {
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	GetByCodeFresh(ctx context.Context, code string) (*model.Link, error)
}

// GeoResolver maps a requester IP to an ISO country code. Empty means
// unknown. Implementations must be in-memory: this runs on the redirect
// path.
type GeoResolver interface {
	Country(ip string) string
}

// DeviceClassifier maps a User-Agent to one of the model device types.
type DeviceClassifier func(userAgent string) string

// ClickEnqueuer accepts a click message without blocking. The return
// value reports whether the message was accepted; the resolver only logs
// a false, it never fails the redirect over it.
type ClickEnqueuer interface {
	Enqueue(click model.RawClick) bool
}

// Resolver turns a short code plus requester context into a Resolution.
// Flow: cache lookup -> store lookup on miss -> fixed-order policy check
// -> allow (fire-and-forget click) or deny.
type Resolver struct {
	links    ResolverStore
	geo      GeoResolver
	clicks   ClickEnqueuer
	device   DeviceClassifier
	logger   *slog.Logger
	onResult func(allowed bool, reason DenyReason)
}

// NewResolver wires the resolver's collaborators. geo and clicks may be
// nil (no geo data, recording disabled); device must not be.
func NewResolver(links ResolverStore, geo GeoResolver, clicks ClickEnqueuer, device DeviceClassifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		links:  links,
		geo:    geo,
		clicks: clicks,
		device: device,
		logger: logger,
	}
}

// SetResultHook registers a callback fired once per resolution, wired to
// metrics by the server.
func (r *Resolver) SetResultHook(hook func(allowed bool, reason DenyReason)) {
	r.onResult = hook
}

// Resolve evaluates the policy chain in fixed order; the first failing
// check decides the denial. A returned error means infrastructure
// failure, never a policy outcome.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	link, err := r.links.GetByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return r.deny(DenyNotFound), nil
		}
		return Resolution{}, err
	}

	// 1. Active flag
	if !link.IsActive {
		return r.deny(DenyDeactivated), nil
	}

	// 2. Expiry
	if link.Expired() {
		return r.deny(DenyExpired), nil
	}

	// 3. Password
	if link.PasswordProtected() {
		if req.Password == "" {
			return r.deny(DenyPasswordRequired), nil
		}
		if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(req.Password)) != nil {
			return r.deny(DenyPasswordMismatch), nil
		}
	}

	// 4. Country restriction
	if len(link.Countries) > 0 {
		country := ""
		if r.geo != nil {
			country = r.geo.Country(req.IP)
		}
		if !countryAllowed(country, link.Countries, link.CountriesAllow) {
			return r.deny(DenyGeoRestricted), nil
		}
	}

	// 5. Device restriction
	if len(link.DeviceTypes) > 0 {
		device := r.device(req.UserAgent)
		if !contains(link.DeviceTypes, device) {
			return r.deny(DenyDeviceRestricted), nil
		}
	}

	// 6. Click cap. The counter is re-read from the store whenever a cap
	// is configured: a cached copy may lag behind the true count, and the
	// cap must hold against the authoritative counter.
	if link.MaxClicks != nil {
		fresh, err := r.links.GetByCodeFresh(ctx, req.Code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return r.deny(DenyNotFound), nil
			}
			return Resolution{}, err
		}
		if fresh.AtClickCap() {
			return r.deny(DenyClickLimitReached), nil
		}
	}

	target := mergeUTM(link)
	status := link.RedirectStatus
	if status == 0 {
		status = http.StatusFound
	}

	r.recordClick(link, req)

	if r.onResult != nil {
		r.onResult(true, "")
	}
	return Resolution{Allowed: true, TargetURL: target, Status: status}, nil
}

func (r *Resolver) deny(reason DenyReason) Resolution {
	if r.onResult != nil {
		r.onResult(false, reason)
	}
	return Resolution{Reason: reason}
}

// recordClick hands the click to the dispatcher and forgets about it.
// A full buffer or missing dispatcher never affects the redirect.
func (r *Resolver) recordClick(link *model.Link, req ResolveRequest) {
	if r.clicks == nil {
		return
	}
	raw := model.RawClick{
		LinkID:     link.ID,
		ShortCode:  link.ShortCode,
		OccurredAt: time.Now(),
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		Referrer:   req.Referrer,
	}
	if link.UTMSource != nil {
		raw.UTMSource = *link.UTMSource
	}
	if link.UTMMedium != nil {
		raw.UTMMedium = *link.UTMMedium
	}
	if link.UTMCampaign != nil {
		raw.UTMCampaign = *link.UTMCampaign
	}
	if !r.clicks.Enqueue(raw) {
		r.logger.Warn("click dropped, dispatch buffer full",
			slog.String("code", link.ShortCode))
	}
}

// countryAllowed applies allowlist/denylist semantics. An unknown country
// fails an allowlist and passes a denylist.
func countryAllowed(country string, list []string, allow bool) bool {
	in := contains(list, country)
	if allow {
		return in
	}
	return !in
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// mergeUTM appends the link's configured UTM parameters to the
// destination, keeping any parameter the destination already carries.
func mergeUTM(link *model.Link) string {
	if link.UTMSource == nil && link.UTMMedium == nil && link.UTMCampaign == nil {
		return link.OriginalURL
	}
	u, err := url.Parse(link.OriginalURL)
	if err != nil {
		return link.OriginalURL
	}
	q := u.Query()
	setIfAbsent(q, "utm_source", link.UTMSource)
	setIfAbsent(q, "utm_medium", link.UTMMedium)
	setIfAbsent(q, "utm_campaign", link.UTMCampaign)
	u.RawQuery = q.Encode()
	return u.String()
}

func setIfAbsent(q url.Values, key string, val *string) {
	if val == nil || *val == "" || q.Has(key) {
		return
	}
	q.Set(key, *val)
}

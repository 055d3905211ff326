package model

import (
	"time"

	"github.com/google/uuid"
)

// Click is an append-only record of a single resolved redirect.
// The requester IP is stored only as a keyed hash.
type Click struct {
	ID          uuid.UUID `json:"id"`
	LinkID      uuid.UUID `json:"link_id"`
	ClickedAt   time.Time `json:"clicked_at"`
	IPHash      string    `json:"ip_hash"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	Referrer    string    `json:"referrer,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
	DeviceType  string    `json:"device_type"`
	IsBot       bool      `json:"is_bot"`
	IsUnique    bool      `json:"is_unique"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
}

// RawClick is the message published by the redirect path and consumed by
// the analytics recorder. It carries the raw requester context; the raw IP
// never leaves the pipeline.
type RawClick struct {
	LinkID      uuid.UUID `json:"link_id"`
	ShortCode   string    `json:"short_code"`
	OccurredAt  time.Time `json:"occurred_at"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
}

// ClickStats summarises click activity for one link.
type ClickStats struct {
	TotalClicks  int64 `json:"total_clicks"`
	UniqueClicks int64 `json:"unique_clicks"`
	HumanClicks  int64 `json:"human_clicks"`
	BotClicks    int64 `json:"bot_clicks"`
}

// DailyClicks is one point of the per-day click series.
type DailyClicks struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
	Unique int64  `json:"unique"`
}

// BreakdownEntry is one bucket of a device/country/referrer breakdown.
type BreakdownEntry struct {
	Key    string `json:"key"`
	Clicks int64  `json:"clicks"`
}

// AnalyticsResponse is the owner-facing analytics payload for a link.
type AnalyticsResponse struct {
	ShortCode string           `json:"short_code"`
	Summary   ClickStats       `json:"summary"`
	Daily     []DailyClicks    `json:"daily,omitempty"`
	Devices   []BreakdownEntry `json:"devices,omitempty"`
	Countries []BreakdownEntry `json:"countries,omitempty"`
	Referrers []BreakdownEntry `json:"referrers,omitempty"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Device type values used in link restrictions and click records.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Link represents a shortened URL entity.
type Link struct {
	ID               uuid.UUID  `json:"id"`
	ShortCode        string     `json:"short_code"`
	CustomAlias      *string    `json:"custom_alias,omitempty"`
	OriginalURL      string     `json:"original_url"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	IsActive         bool       `json:"is_active"`
	RedirectStatus   int        `json:"redirect_status"`
	PasswordHash     *string    `json:"-"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	MaxClicks        *int64     `json:"max_clicks,omitempty"`
	ClickCount       int64      `json:"click_count"`
	UniqueClickCount int64      `json:"unique_click_count"`
	LastClickAt      *time.Time `json:"last_click_at,omitempty"`
	UTMSource        *string    `json:"utm_source,omitempty"`
	UTMMedium        *string    `json:"utm_medium,omitempty"`
	UTMCampaign      *string    `json:"utm_campaign,omitempty"`
	// Countries holds ISO 3166-1 alpha-2 codes. CountriesAllow selects
	// allowlist (true) or denylist (false) semantics. Empty means no
	// country restriction.
	Countries      []string `json:"countries,omitempty"`
	CountriesAllow bool     `json:"countries_allow"`
	// DeviceTypes restricts which device classes may resolve the link.
	// Empty means no device restriction.
	DeviceTypes []string   `json:"device_types,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the link's expiry timestamp has passed.
func (l *Link) Expired() bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(time.Now())
}

// PasswordProtected reports whether a password must accompany resolution.
func (l *Link) PasswordProtected() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// AtClickCap reports whether the configured click cap has been reached.
func (l *Link) AtClickCap() bool {
	return l.MaxClicks != nil && l.ClickCount >= *l.MaxClicks
}

// CreateLinkRequest represents the request body for creating a short link.
type CreateLinkRequest struct {
	URL            string   `json:"url" binding:"required"`
	CustomAlias    string   `json:"custom_alias,omitempty"`
	ExpiresIn      int      `json:"expires_in,omitempty"` // days; 0 means no expiry
	Password       string   `json:"password,omitempty"`
	RedirectStatus int      `json:"redirect_status,omitempty"`
	MaxClicks      int64    `json:"max_clicks,omitempty"`
	UTMSource      string   `json:"utm_source,omitempty"`
	UTMMedium      string   `json:"utm_medium,omitempty"`
	UTMCampaign    string   `json:"utm_campaign,omitempty"`
	Countries      []string `json:"countries,omitempty"`
	CountriesAllow *bool    `json:"countries_allow,omitempty"`
	DeviceTypes    []string `json:"device_types,omitempty"`
}

// UpdateLinkRequest represents a partial update to an existing link.
// Nil fields are left unchanged.
type UpdateLinkRequest struct {
	URL            *string    `json:"url,omitempty"`
	IsActive       *bool      `json:"is_active,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Password       *string    `json:"password,omitempty"`
	RedirectStatus *int       `json:"redirect_status,omitempty"`
	MaxClicks      *int64     `json:"max_clicks,omitempty"`
	UTMSource      *string    `json:"utm_source,omitempty"`
	UTMMedium      *string    `json:"utm_medium,omitempty"`
	UTMCampaign    *string    `json:"utm_campaign,omitempty"`
	Countries      *[]string  `json:"countries,omitempty"`
	CountriesAllow *bool      `json:"countries_allow,omitempty"`
	DeviceTypes    *[]string  `json:"device_types,omitempty"`
}

// CreateLinkResponse represents the response for a created short link.
type CreateLinkResponse struct {
	ShortCode string   `json:"short_code"`
	ShortURL  string   `json:"short_url"`
	ExpiresAt string   `json:"expires_at,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// LinkResponse represents the full link metadata response.
type LinkResponse struct {
	ShortCode        string   `json:"short_code"`
	CustomAlias      string   `json:"custom_alias,omitempty"`
	OriginalURL      string   `json:"original_url"`
	ShortURL         string   `json:"short_url"`
	IsActive         bool     `json:"is_active"`
	RedirectStatus   int      `json:"redirect_status"`
	CreatedAt        string   `json:"created_at"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
	ClickCount       int64    `json:"click_count"`
	UniqueClickCount int64    `json:"unique_click_count"`
	LastClickAt      string   `json:"last_click_at,omitempty"`
	MaxClicks        int64    `json:"max_clicks,omitempty"`
	Countries        []string `json:"countries,omitempty"`
	CountriesAllow   bool     `json:"countries_allow"`
	DeviceTypes      []string `json:"device_types,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

package service

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength bounds accepted destination URLs.
const MaxURLLength = 2048

// Destination domains rejected outright. A production deployment feeds
// this from a threat list; the built-in set covers the test surface.
var blockedDomains = map[string]bool{
	"malware.example":  true,
	"phishing.example": true,
}

// Domains of other shorteners. Nesting is legal but worth a warning since
// it hides the final destination and doubles redirect latency.
var shortenerDomains = map[string]bool{
	"bit.ly":  true,
	"t.co":    true,
	"goo.gl":  true,
	"ow.ly":   true,
	"is.gd":   true,
	"buff.ly": true,
}

var injectionFragments = []string{
	"javascript:",
	"data:",
	"vbscript:",
	"<script",
	"%3cscript",
	"../",
	"..%2f",
}

// URLChecker normalizes and vets destination URLs. In strict mode
// (production) it additionally rejects loopback and private-network hosts
// so the service cannot be used to probe internal infrastructure.
type URLChecker struct {
	strict bool
}

// NewURLChecker creates a checker. strict enables private-host rejection.
func NewURLChecker(strict bool) *URLChecker {
	return &URLChecker{strict: strict}
}

// Check validates rawURL and returns the normalized form plus non-fatal
// warnings. Hard failures return ErrInvalidURL (wrapped with the reason);
// warnings never block acceptance. Check is idempotent: running it on a
// returned clean URL yields the same clean URL.
func (c *URLChecker) Check(rawURL string) (string, []string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	// Default the scheme before parsing so host-only input parses as a
	// host rather than a path.
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.User != nil {
		return "", nil, fmt.Errorf("%w: embedded credentials", ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if blockedDomains[host] || blockedDomains[registrableDomain(host)] {
		return "", nil, fmt.Errorf("%w: destination domain is blocked", ErrInvalidURL)
	}
	if c.strict && isPrivateHost(host) {
		return "", nil, fmt.Errorf("%w: destination host is not public", ErrInvalidURL)
	}

	lowered := strings.ToLower(u.Path + "?" + u.RawQuery)
	for _, frag := range injectionFragments {
		if strings.Contains(lowered, frag) {
			return "", nil, fmt.Errorf("%w: suspicious path or query", ErrInvalidURL)
		}
	}

	// Normalize: lowercase host, strip default ports and fragments.
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	u.Fragment = ""

	clean := u.String()
	if len(clean) > MaxURLLength {
		return "", nil, fmt.Errorf("%w: exceeds %d characters", ErrInvalidURL, MaxURLLength)
	}

	var warnings []string
	if u.Scheme == "http" {
		warnings = append(warnings, "destination uses insecure http")
	}
	if shortenerDomains[host] || shortenerDomains[registrableDomain(host)] {
		warnings = append(warnings, "destination is itself a URL shortener")
	}
	if len(u.Path) > 512 {
		warnings = append(warnings, "destination has an unusually long path")
	}

	return clean, warnings, nil
}

// registrableDomain reduces a host to its last two labels, enough for the
// flat domain sets above.
func registrableDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

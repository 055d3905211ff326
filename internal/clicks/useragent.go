package clicks

import (
	"strings"

	"github.com/shortloop/gateway/internal/model"
)

// ParsedUA is the result of the rule-based User-Agent classification.
type ParsedUA struct {
	Browser    string
	OS         string
	DeviceType string
	IsBot      bool
}

var botSignatures = []string{
	"bot", "crawler", "spider", "slurp", "crawling",
	"facebookexternalhit", "whatsapp", "telegrambot",
	"curl/", "wget/", "python-requests", "python-urllib", "go-http-client",
	"httpclient", "okhttp", "headlesschrome", "phantomjs", "scrapy",
	"pingdom", "uptimerobot", "monitis", "lighthouse",
}

// ParseUserAgent classifies a User-Agent string into browser, OS, device
// type and a bot flag using substring rules. It is deliberately coarse:
// analytics needs stable buckets, not version extraction.
func ParseUserAgent(ua string) ParsedUA {
	if ua == "" {
		return ParsedUA{Browser: "", OS: "", DeviceType: model.DeviceUnknown}
	}
	lower := strings.ToLower(ua)

	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return ParsedUA{Browser: "", OS: parseOS(lower), DeviceType: model.DeviceBot, IsBot: true}
		}
	}

	return ParsedUA{
		Browser:    parseBrowser(lower),
		OS:         parseOS(lower),
		DeviceType: parseDevice(lower),
	}
}

// DeviceType returns just the device class for a User-Agent. The resolver
// uses this for device restrictions on the redirect path.
func DeviceType(ua string) string {
	return ParseUserAgent(ua).DeviceType
}

// Browser checks are ordered: Chromium-family agents also claim Safari,
// and Edge/Opera also claim Chrome.
func parseBrowser(lower string) string {
	switch {
	case strings.Contains(lower, "edg/"), strings.Contains(lower, "edge/"):
		return "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		return "Opera"
	case strings.Contains(lower, "samsungbrowser"):
		return "Samsung Internet"
	case strings.Contains(lower, "firefox/"):
		return "Firefox"
	case strings.Contains(lower, "chrome/"), strings.Contains(lower, "crios/"):
		return "Chrome"
	case strings.Contains(lower, "safari/"):
		return "Safari"
	case strings.Contains(lower, "msie"), strings.Contains(lower, "trident/"):
		return "Internet Explorer"
	default:
		return ""
	}
}

func parseOS(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ipod"):
		return "iOS"
	case strings.Contains(lower, "mac os x"), strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return ""
	}
}

func parseDevice(lower string) string {
	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"),
		strings.Contains(lower, "kindle"),
		// Android without "mobile" is tablet per Google's UA guidance
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return model.DeviceTablet
	case strings.Contains(lower, "mobi"), strings.Contains(lower, "iphone"), strings.Contains(lower, "ipod"):
		return model.DeviceMobile
	case strings.Contains(lower, "windows"), strings.Contains(lower, "macintosh"),
		strings.Contains(lower, "x11"), strings.Contains(lower, "linux"):
		return model.DeviceDesktop
	default:
		return model.DeviceUnknown
	}
}

package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is the device fingerprint stored with audit rows
type DeviceInfo struct {
	Kind    string `json:"kind"` // mobile, tablet, desktop, bot, unknown
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Version string `json:"version,omitempty"`
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "sm-t", "nexus 7", "nexus 9", "nexus 10"}

// ParseUserAgent fingerprints a User-Agent header
func ParseUserAgent(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{Kind: "unknown", OS: "unknown", Browser: "unknown"}
	}

	parsed := ua.New(userAgent)
	browser, version := parsed.Browser()
	if browser == "" {
		browser = "unknown"
	}

	info := DeviceInfo{
		Kind:    deviceKind(parsed, userAgent),
		OS:      osLabel(parsed.OSInfo()),
		Browser: browser,
		Version: version,
	}
	return info
}

// Map renders the fingerprint for JSONB details columns
func (d DeviceInfo) Map() map[string]interface{} {
	return map[string]interface{}{
		"kind":    d.Kind,
		"os":      d.OS,
		"browser": d.Browser,
		"version": d.Version,
	}
}

func deviceKind(parsed *ua.UserAgent, raw string) string {
	if parsed.Bot() {
		return "bot"
	}
	if !parsed.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(raw)
	for _, marker := range tabletMarkers {
		if strings.Contains(lower, marker) {
			return "tablet"
		}
	}
	return "mobile"
}

func osLabel(info ua.OSInfo) string {
	switch {
	case info.Name == "":
		return "unknown"
	case info.Version == "":
		return info.Name
	default:
		return info.Name + " " + info.Version
	}
}

package auth

import "strings"

// Device is the coarse classification recorded on a session row.
type Device struct {
	Type    string
	OS      string
	Browser string
}

const deviceUnknown = "unknown"

// ParseUserAgent classifies a User-Agent header into device type, operating
// system and browser. Best effort: anything unrecognized is "unknown".
func ParseUserAgent(ua string) Device {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Device{Type: deviceUnknown, OS: deviceUnknown, Browser: deviceUnknown}
	}
	lower := strings.ToLower(ua)
	return Device{
		Type:    deviceType(lower),
		OS:      deviceOS(lower),
		Browser: deviceBrowser(lower),
	}
}

func deviceType(ua string) string {
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

func deviceOS(ua string) string {
	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac os x") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return deviceUnknown
	}
}

func deviceBrowser(ua string) string {
	// Order matters: Chrome-family agents also advertise Safari.
	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return deviceUnknown
	}
}

package logger

import (
	"net/url"
	"strings"
)

// MaskAddress masks a delivery address for logging, keeping enough of the
// local part and the full domain to correlate complaints.
func MaskAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return maskTail(value)
	}
	local := value[:at]
	domain := value[at+1:]
	return maskTail(local) + "@" + domain
}

// MaskWebhookURL masks query strings and userinfo in webhook URLs, which
// frequently carry signing tokens.
func MaskWebhookURL(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return maskTail(value)
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "***"
	}
	if segments := strings.Split(parsed.Path, "/"); len(segments) > 2 {
		// Webhook providers put the secret in the last path segment.
		segments[len(segments)-1] = maskTail(segments[len(segments)-1])
		parsed.Path = strings.Join(segments, "/")
	}
	return parsed.String()
}

func maskTail(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	return value[:2] + "***"
}

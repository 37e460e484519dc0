package logger

import (
	"log/slog"
	"strings"
)

// Key patterns whose string values are never logged. The import pipeline
// handles RSA private keys, unwrapped content keys, and staging run keys;
// none of them may reach a log sink.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"credential",
	"token",
	"key",
	"pem",
}

// PEM blocks are redacted regardless of the attribute key.
const pemPrefix = "-----BEGIN "

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data and
// redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}
		if strings.HasPrefix(strVal, pemPrefix) {
			return slog.String(a.Key, redactedValue)
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		return a
	}

	// Handle nested groups recursively
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

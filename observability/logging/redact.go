package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// Redacted replaces secret values in log output.
const Redacted = "[REDACTED]"

// publicKeys are logged verbatim. Everything else passed through SafeAttr is
// treated as a credential.
var publicKeys = map[string]bool{
	"endpoint":     true,
	"market":       true,
	"account":      true,
	"action":       true,
	"content-type": true,
	"x-request-id": true,
}

// SafeAttr renders key=value, masking the value unless the key is public.
// Empty values stay empty so an absent credential is visible as such.
func SafeAttr(key, value string) slog.Attr {
	if value == "" || publicKeys[strings.ToLower(strings.TrimSpace(key))] {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}

// SafeHeaders groups a header map under "headers" with sorted, masked entries.
func SafeHeaders(headers map[string]string) slog.Attr {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, SafeAttr(key, headers[key]))
	}
	return slog.Attr{Key: "headers", Value: slog.GroupValue(attrs...)}
}

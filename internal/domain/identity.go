package domain

import (
	"strings"
	"time"
)

// IdentitySeparator joins the identity fields. It is multi-character so that
// protocol punctuation inside a message cannot produce a colliding key, and it
// matches the keys already present in the store.
const IdentitySeparator = "-*-*-"

// UniqueID builds the dedup key for a log line from its reported timestamp,
// message text and port.
func UniqueID(timestamp, message, portID string) string {
	var b strings.Builder
	b.Grow(len(timestamp) + len(message) + len(portID) + 2*len(IdentitySeparator))
	b.WriteString(timestamp)
	b.WriteString(IdentitySeparator)
	b.WriteString(message)
	b.WriteString(IdentitySeparator)
	b.WriteString(portID)
	return b.String()
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a log timestamp into a UTC instant.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

package sqlitedb

import (
	"fmt"
	"time"
)

// timeLayout keeps a fixed-width fraction so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t as the UTC RFC3339 text SQLite columns hold.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses the timestamp strings stored in SQLite.
// SQLite has no native datetime type; we store RFC3339 TEXT.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

// NullableString returns nil for empty strings so SQLite stores NULL.
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Package timeutil normalizes timestamps to UTC and converts them to and
// from the SQL TIMESTAMP text format used in the database, matching sqlite's
// CURRENT_TIMESTAMP ('YYYY-MM-DD HH:MM:SS').
package timeutil

import (
	"fmt"
	"time"
)

const sqlFormat = "2006-01-02 15:04:05"

// Now returns the current time in UTC, truncated to whole seconds so that
// round-tripping through the SQL format is lossless.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// ToSQL formats a time as a SQL TIMESTAMP string in UTC.
func ToSQL(t time.Time) string {
	return t.UTC().Format(sqlFormat)
}

// FromSQL parses a SQL TIMESTAMP string into a UTC time.
func FromSQL(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqlFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

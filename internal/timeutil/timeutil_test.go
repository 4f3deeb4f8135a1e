package timeutil

import (
	"testing"
	"time"
)

func TestNow(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Errorf("Expected UTC, got %v", now.Location())
	}
	if now.Nanosecond() != 0 {
		t.Errorf("Expected whole seconds, got %d ns", now.Nanosecond())
	}
}

func TestSQLRoundTrip(t *testing.T) {
	original := time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)

	s := ToSQL(original)
	if s != "2024-03-15 09:30:45" {
		t.Errorf("Unexpected SQL format %q", s)
	}

	parsed, err := FromSQL(s)
	if err != nil {
		t.Fatalf("FromSQL failed: %v", err)
	}
	if !parsed.Equal(original) {
		t.Errorf("Round trip changed the time: %v != %v", parsed, original)
	}
}

func TestToSQLConvertsToUTC(t *testing.T) {
	east := time.FixedZone("east", 3*60*60)
	local := time.Date(2024, 3, 15, 12, 0, 0, 0, east)
	if got := ToSQL(local); got != "2024-03-15 09:00:00" {
		t.Errorf("Expected the UTC instant, got %q", got)
	}
}

func TestFromSQLRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not a time", "2024-03-15T09:30:45Z"} {
		if _, err := FromSQL(s); err == nil {
			t.Errorf("Expected an error for %q", s)
		}
	}
}

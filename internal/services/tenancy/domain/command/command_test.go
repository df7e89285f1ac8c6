package command

import (
	"testing"
	"time"
)

func TestTimestampUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.FixedZone("X", 3600))
	meta := Meta{Now: func() time.Time { return fixed }}

	got := meta.Timestamp()
	want := time.Date(2026, 3, 4, 4, 6, 7, 891000000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v", got, want)
	}
}

func TestTimestampDefaultsToWallClock(t *testing.T) {
	before := time.Now().Add(-time.Second)
	if got := (Meta{}).Timestamp(); got.Before(before) {
		t.Fatalf("timestamp = %v, want after %v", got, before)
	}
}

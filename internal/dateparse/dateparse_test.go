package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSinceFrom(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-01-05", day(2026, 1, 5)},
		{"2026-02-17T08:30:00Z", time.Date(2026, 2, 17, 8, 30, 0, 0, time.UTC)},
		{"today", day(2026, 2, 18)},
		{"Yesterday", day(2026, 2, 17)},
		{"this-week", day(2026, 2, 16)},
		{"this-month", day(2026, 2, 1)},
		{"12h", time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)},
		{"0d", day(2026, 2, 18)},
		{"3d", day(2026, 2, 15)},
		{"2w", day(2026, 2, 4)},
		{"1m", day(2026, 1, 18)},
		{"wednesday", day(2026, 2, 18)},
		{"monday", day(2026, 2, 16)},
		{"thursday", day(2026, 2, 12)},
		{"  Sunday ", day(2026, 2, 15)},
	}
	for _, tt := range tests {
		got, err := SinceFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("SinceFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("SinceFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSinceFrom_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "soonish", "3y", "-2d"} {
		if _, err := SinceFrom(input, testNow); err == nil {
			t.Errorf("SinceFrom(%q): expected error", input)
		}
	}
}

func TestSinceFrom_NaturalLanguage(t *testing.T) {
	got, err := SinceFrom("3 days ago", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y, m, d := got.Date(); y != 2026 || m != time.February || d != 15 {
		t.Errorf("3 days ago = %v, want 2026-02-15", got)
	}
}

func TestSinceFrom_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2026, 2, 18, 1, 0, 0, 0, loc)
	got, err := SinceFrom("today", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 2, 18, 0, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSince(t *testing.T) {
	got, err := Since("1d")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Before(time.Now()) {
		t.Errorf("Since(1d) = %v, should be in the past", got)
	}
}

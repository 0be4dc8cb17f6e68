package session

import (
	"testing"
	"time"
)

func at(day, hh, mm, ss int) time.Time {
	// 2025-04-07 is a Monday.
	return time.Date(2025, 4, day, hh, mm, ss, 0, time.UTC)
}

func TestFilterInclusiveBounds(t *testing.T) {
	f, err := NewFilter([]string{"07:00-11:59", "13:00-17:00"}, []string{"saturday", "sunday"})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	cases := []struct {
		t    time.Time
		want bool
	}{
		{at(7, 7, 0, 0), true},
		{at(7, 11, 59, 0), true},
		{at(7, 11, 59, 30), false},
		{at(7, 12, 30, 0), false},
		{at(7, 13, 0, 0), true},
		{at(7, 17, 0, 0), true},
		{at(7, 17, 5, 0), false},
		{at(7, 6, 59, 0), false},
		{at(12, 9, 0, 0), false}, // Saturday
		{at(13, 9, 0, 0), false}, // Sunday
		{at(11, 9, 0, 0), true},  // Friday
	}
	for _, c := range cases {
		if got := f.Allowed(c.t); got != c.want {
			t.Fatalf("Allowed(%s) = %v, want %v", c.t.Format(time.DateTime), got, c.want)
		}
	}
}

func TestZeroFilterAllowsEverything(t *testing.T) {
	var f Filter
	if !f.Allowed(at(13, 3, 0, 0)) {
		t.Fatal("zero filter should allow every bar")
	}
}

func TestParseWindowErrors(t *testing.T) {
	for _, s := range []string{"0700-1159", "7-11", "12:00-11:00", "25:00-26:00"} {
		if _, err := ParseWindow(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
	w, err := ParseWindow(" 13:00 - 17:00 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.String() != "13:00-17:00" {
		t.Fatalf("round trip mismatch: %s", w)
	}
}

func TestWeekdayPrefixes(t *testing.T) {
	f, err := NewFilter(nil, []string{"Sat", "SUN"})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if f.Allowed(at(12, 9, 0, 0)) || f.Allowed(at(13, 9, 0, 0)) {
		t.Fatal("weekend should be blocked")
	}
	if _, err := NewFilter(nil, []string{"funday"}); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

// Package session decides whether a bar falls inside the tradable part of
// the week.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Window is an inclusive time-of-day range, in seconds since midnight.
type Window struct {
	Start int
	End   int
}

// Contains reports whether the time of day of t lies in the window.
func (w Window) Contains(t time.Time) bool {
	s := secondsOfDay(t)
	return w.Start <= s && s <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/3600, w.Start%3600/60, w.End/3600, w.End%3600/60)
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("session %q: want HH:MM-HH:MM", s)
	}
	start, err := time.Parse("15:04", strings.TrimSpace(parts[0]))
	if err != nil {
		return Window{}, fmt.Errorf("session %q: %w", s, err)
	}
	end, err := time.Parse("15:04", strings.TrimSpace(parts[1]))
	if err != nil {
		return Window{}, fmt.Errorf("session %q: %w", s, err)
	}
	w := Window{Start: secondsOfDay(start), End: secondsOfDay(end)}
	if w.End < w.Start {
		return Window{}, fmt.Errorf("session %q ends before it starts", s)
	}
	return w, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// Filter combines weekend days and allowed windows. The zero value allows
// every bar.
type Filter struct {
	windows []Window
	weekend [7]bool
}

// NewFilter parses session strings and weekday names (case-insensitive,
// three-letter prefixes accepted).
func NewFilter(sessions, weekendDays []string) (Filter, error) {
	var f Filter
	for _, s := range sessions {
		w, err := ParseWindow(s)
		if err != nil {
			return Filter{}, err
		}
		f.windows = append(f.windows, w)
	}
	for _, d := range weekendDays {
		wd, err := parseWeekday(d)
		if err != nil {
			return Filter{}, err
		}
		f.weekend[wd] = true
	}
	return f, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[key]; ok {
		return wd, nil
	}
	if len(key) >= 3 {
		for name, wd := range weekdays {
			if strings.HasPrefix(name, key) {
				return wd, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Allowed reports whether a bar stamped t may trade. With no windows
// configured every time of day is allowed.
func (f Filter) Allowed(t time.Time) bool {
	if f.weekend[t.Weekday()] {
		return false
	}
	if len(f.windows) == 0 {
		return true
	}
	for _, w := range f.windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Windows returns the configured windows.
func (f Filter) Windows() []Window {
	return append([]Window(nil), f.windows...)
}

// Package hours maps a calendar date to the studio's bookable windows.
package hours

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

type DayType int

const (
	Weekday DayType = iota + 1
	Weekend
)

func (t DayType) String() string {
	switch t {
	case Weekday:
		return "weekday"
	case Weekend:
		return "weekend"
	default:
		return fmt.Sprintf("DayType(%d)", int(t))
	}
}

// DayTypeOf is Weekend for Saturday and Sunday, Weekday otherwise.
func DayTypeOf(d civil.Date) DayType {
	switch d.In(time.UTC).Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}

// WallWindow is a [Start, End) range of local wall-clock times.
type WallWindow struct {
	Start civil.Time
	End   civil.Time
}

func (w WallWindow) String() string {
	return fmt.Sprintf("[%02d:%02d, %02d:%02d)", w.Start.Hour, w.Start.Minute, w.End.Hour, w.End.Minute)
}

// Rule lists the windows for each day type, sorted and non-overlapping.
type Rule map[DayType][]WallWindow

func hm(hour, minute int) civil.Time { return civil.Time{Hour: hour, Minute: minute} }

// DefaultRule is the studio's fixed schedule.
var DefaultRule = Rule{
	Weekday: {
		{Start: hm(6, 0), End: hm(8, 0)},
		{Start: hm(17, 30), End: hm(21, 0)},
	},
	Weekend: {
		{Start: hm(9, 0), End: hm(21, 0)},
	},
}

func init() {
	if err := DefaultRule.Validate(); err != nil {
		panic(err)
	}
}

func secondOfDay(t civil.Time) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Validate checks every window is well formed and each day's list is sorted
// without overlap.
func (r Rule) Validate() error {
	for _, dt := range []DayType{Weekday, Weekend} {
		prevEnd := -1
		for _, w := range r[dt] {
			if !w.Start.IsValid() || !w.End.IsValid() {
				return fmt.Errorf("%s window %s: invalid wall-clock time", dt, w)
			}
			start, end := secondOfDay(w.Start), secondOfDay(w.End)
			if start >= end {
				return fmt.Errorf("%s window %s: start must be before end", dt, w)
			}
			if start < prevEnd {
				return fmt.Errorf("%s window %s: overlaps or is out of order", dt, w)
			}
			prevEnd = end
		}
	}
	return nil
}

// TimeWindow is a window anchored to a concrete date.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether [start, end) lies inside the window.
func (w TimeWindow) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

type Policy struct {
	rule Rule
	loc  *time.Location
}

func NewPolicy(rule Rule, loc *time.Location) (*Policy, error) {
	if loc == nil {
		return nil, fmt.Errorf("hours: location is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("hours: %w", err)
	}
	return &Policy{rule: rule, loc: loc}, nil
}

// DefaultPolicy applies DefaultRule in loc.
func DefaultPolicy(loc *time.Location) *Policy {
	p, err := NewPolicy(DefaultRule, loc)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Location() *time.Location { return p.loc }

// WindowsFor returns the windows of date in the studio location, in order.
//
// Wall-clock times are taken literally, so on a daylight-saving transition day
// a window can be an hour longer or shorter in absolute time. A window that
// collapses to nothing inside a spring-forward gap is left out.
func (p *Policy) WindowsFor(date civil.Date) []TimeWindow {
	rule := p.rule[DayTypeOf(date)]
	out := make([]TimeWindow, 0, len(rule))
	for _, w := range rule {
		tw := TimeWindow{
			Start: civil.DateTime{Date: date, Time: w.Start}.In(p.loc),
			End:   civil.DateTime{Date: date, Time: w.End}.In(p.loc),
		}
		if !tw.End.After(tw.Start) {
			continue
		}
		out = append(out, tw)
	}
	return out
}

// DateOf is the studio-local calendar date of t.
func (p *Policy) DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(p.loc))
}

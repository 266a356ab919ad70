package hours

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestDayTypeOf(t *testing.T) {
	assert.Equal(t, Weekday, DayTypeOf(civil.Date{Year: 2025, Month: time.March, Day: 10})) // Monday
	assert.Equal(t, Weekday, DayTypeOf(civil.Date{Year: 2025, Month: time.March, Day: 14})) // Friday
	assert.Equal(t, Weekend, DayTypeOf(civil.Date{Year: 2025, Month: time.March, Day: 15})) // Saturday
	assert.Equal(t, Weekend, DayTypeOf(civil.Date{Year: 2025, Month: time.March, Day: 16})) // Sunday
}

func TestWindowsFor_Tuesday(t *testing.T) {
	loc := newYork(t)
	p := DefaultPolicy(loc)

	got := p.WindowsFor(civil.Date{Year: 2025, Month: time.March, Day: 11})
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(time.Date(2025, 3, 11, 6, 0, 0, 0, loc)))
	assert.True(t, got[0].End.Equal(time.Date(2025, 3, 11, 8, 0, 0, 0, loc)))
	assert.True(t, got[1].Start.Equal(time.Date(2025, 3, 11, 17, 30, 0, 0, loc)))
	assert.True(t, got[1].End.Equal(time.Date(2025, 3, 11, 21, 0, 0, 0, loc)))
}

func TestWindowsFor_Weekend(t *testing.T) {
	loc := newYork(t)
	got := DefaultPolicy(loc).WindowsFor(civil.Date{Year: 2025, Month: time.March, Day: 15})
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(time.Date(2025, 3, 15, 9, 0, 0, 0, loc)))
	assert.Equal(t, 12*time.Hour, got[0].Duration())
}

// Daylight-saving days keep the written wall-clock times. A window that spans
// the transition changes absolute length; this is expected.
func TestWindowsFor_DaylightSavingLiteralWallClock(t *testing.T) {
	loc := newYork(t)
	overnight := Rule{
		Weekday: {{Start: hm(9, 0), End: hm(10, 0)}},
		Weekend: {{Start: hm(0, 0), End: hm(6, 0)}},
	}
	p, err := NewPolicy(overnight, loc)
	require.NoError(t, err)

	springForward := p.WindowsFor(civil.Date{Year: 2025, Month: time.March, Day: 9})
	require.Len(t, springForward, 1)
	assert.Equal(t, 5*time.Hour, springForward[0].Duration())
	assert.Equal(t, 6, springForward[0].End.Hour())

	fallBack := p.WindowsFor(civil.Date{Year: 2025, Month: time.November, Day: 2})
	require.Len(t, fallBack, 1)
	assert.Equal(t, 7*time.Hour, fallBack[0].Duration())

	// The default schedule sits outside the 02:00 transition, so its windows
	// keep their usual length on the same days.
	def := DefaultPolicy(loc).WindowsFor(civil.Date{Year: 2025, Month: time.March, Day: 9})
	require.Len(t, def, 1)
	assert.Equal(t, 12*time.Hour, def[0].Duration())
}

func TestWindowsFor_GapNeverYieldsEmptyWindow(t *testing.T) {
	loc := newYork(t)
	p, err := NewPolicy(Rule{
		Weekend: {{Start: hm(1, 30), End: hm(2, 30)}, {Start: hm(9, 0), End: hm(10, 0)}},
	}, loc)
	require.NoError(t, err)

	for _, w := range p.WindowsFor(civil.Date{Year: 2025, Month: time.March, Day: 9}) {
		assert.True(t, w.End.After(w.Start), "window %v collapsed", w)
	}
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, DefaultRule.Validate())

	inverted := Rule{Weekday: {{Start: hm(8, 0), End: hm(6, 0)}}}
	assert.Error(t, inverted.Validate())

	overlapping := Rule{Weekday: {{Start: hm(6, 0), End: hm(9, 0)}, {Start: hm(8, 0), End: hm(10, 0)}}}
	assert.Error(t, overlapping.Validate())

	_, err := NewPolicy(DefaultRule, nil)
	assert.Error(t, err)
}

func TestDateOf(t *testing.T) {
	loc := newYork(t)
	p := DefaultPolicy(loc)
	// 02:30 UTC on the 12th is still the evening of the 11th in New York.
	got := p.DateOf(time.Date(2025, 3, 12, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 11}, got)
}

func TestTimeWindowContains(t *testing.T) {
	w := TimeWindow{
		Start: time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
	}
	assert.True(t, w.Contains(w.Start, w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Minute), w.End))
	assert.False(t, w.Contains(w.Start, w.End.Add(time.Minute)))
}

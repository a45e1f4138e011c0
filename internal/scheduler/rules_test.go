package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// January 2024: Mon Jan 1, Fri Jan 5, Sat Jan 6, Sun Jan 7.
func utc(day, hour, min int) time.Time {
	return time.Date(2024, time.January, day, hour, min, 0, 0, time.UTC)
}

func testRules() Rules {
	return Rules{
		Loc:        time.UTC,
		StartHour:  9,
		EndHour:    17,
		MinSpacing: 210 * time.Second,
	}
}

func TestAdjustToWindow(t *testing.T) {
	r := testRules()

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"inside window unchanged", utc(1, 10, 30), utc(1, 10, 30)},
		{"window start unchanged", utc(1, 9, 0), utc(1, 9, 0)},
		{"before start moves to start", utc(1, 8, 15), utc(1, 9, 0)},
		{"after end moves to next morning", utc(1, 17, 30), utc(2, 9, 0)},
		{"exactly at end moves to next morning", utc(1, 17, 0), utc(2, 9, 0)},
		{"friday evening lands monday", utc(5, 17, 5), utc(8, 9, 0)},
		{"saturday lands monday", utc(6, 12, 0), utc(8, 9, 0)},
		{"sunday lands monday", utc(7, 3, 0), utc(8, 9, 0)},
		{"friday early morning moves to friday start", utc(5, 6, 0), utc(5, 9, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.AdjustToWindow(tc.in))
		})
	}
}

func TestAdjustToWindowAlwaysOpen(t *testing.T) {
	r := testRules()
	r.AlwaysOpen = true

	at := utc(6, 23, 45) // Saturday night
	assert.Equal(t, at, r.AdjustToWindow(at))
}

func TestInWindow(t *testing.T) {
	r := testRules()

	assert.True(t, r.InWindow(utc(1, 9, 0)))
	assert.True(t, r.InWindow(utc(1, 16, 59)))
	assert.False(t, r.InWindow(utc(1, 17, 0)))
	assert.False(t, r.InWindow(utc(1, 8, 59)))
	assert.False(t, r.InWindow(utc(6, 12, 0)), "saturday")
	assert.False(t, r.InWindow(utc(7, 12, 0)), "sunday")

	r.AlwaysOpen = true
	assert.True(t, r.InWindow(utc(7, 12, 0)))
}

func TestAdjustToWindowRespectsTimezone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	r := testRules()
	r.Loc = la

	// Mon Jan 1 2024 16:30 UTC is 08:30 in Los Angeles, before the window.
	got := r.AdjustToWindow(time.Date(2024, time.January, 1, 16, 30, 0, 0, time.UTC))
	want := time.Date(2024, time.January, 1, 9, 0, 0, 0, la)
	assert.True(t, got.Equal(want), "got %v want %v", got, want)
}

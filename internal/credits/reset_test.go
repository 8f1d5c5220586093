package credits

import (
	"testing"
	"time"
)

func TestNeedsReset(t *testing.T) {
	utc := func(y int, m time.Month, d, hh int) time.Time {
		return time.Date(y, m, d, hh, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name      string
		lastReset time.Time
		now       time.Time
		want      bool
	}{
		{
			name:      "same day",
			lastReset: utc(2026, time.March, 10, 9),
			now:       utc(2026, time.March, 10, 23),
			want:      false,
		},
		{
			name:      "next day just after midnight",
			lastReset: utc(2026, time.March, 10, 23),
			now:       utc(2026, time.March, 11, 0),
			want:      true,
		},
		{
			name:      "less than 24h across a day boundary",
			lastReset: utc(2026, time.March, 10, 23),
			now:       utc(2026, time.March, 11, 1),
			want:      true,
		},
		{
			name:      "more than 23h within the same day",
			lastReset: utc(2026, time.March, 10, 0),
			now:       utc(2026, time.March, 10, 23),
			want:      false,
		},
		{
			name:      "year boundary",
			lastReset: utc(2025, time.December, 31, 23),
			now:       utc(2026, time.January, 1, 0),
			want:      true,
		},
		{
			name:      "many days stale",
			lastReset: utc(2026, time.January, 1, 12),
			now:       utc(2026, time.February, 15, 12),
			want:      true,
		},
		{
			name:      "clock skew backwards",
			lastReset: utc(2026, time.March, 11, 1),
			now:       utc(2026, time.March, 10, 23),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsReset(tt.lastReset, tt.now); got != tt.want {
				t.Errorf("needsReset(%v, %v) = %v, want %v", tt.lastReset, tt.now, got, tt.want)
			}
		})
	}
}

func TestNeedsResetNonUTCInputs(t *testing.T) {
	// 2026-03-10 23:30 UTC expressed in a +02:00 zone is already
	// 2026-03-11 local; the decision must follow the UTC date.
	zone := time.FixedZone("EET", 2*60*60)
	lastReset := time.Date(2026, time.March, 11, 1, 30, 0, 0, zone)
	now := time.Date(2026, time.March, 10, 23, 45, 0, 0, time.UTC)

	if needsReset(lastReset, now) {
		t.Errorf("needsReset treated same UTC day as stale")
	}
}

package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/trigger"
)

func TestParseSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw    string
		kind   Kind
		cron   string
		every  time.Duration
		source string
	}{
		{raw: "*/5 * * * *", kind: KindCron, cron: "*/5 * * * *", source: "cron"},
		{raw: "0 */5 * * * *", kind: KindCron, cron: "0 */5 * * * *", source: "cron"},
		{raw: "@hourly", kind: KindCron, cron: "@hourly", source: "cron"},
		{raw: "cron:55 * * * *", kind: KindCron, cron: "55 * * * *", source: "cron"},
		{raw: "@every 55m", kind: KindInterval, every: 55 * time.Minute, source: "duration"},
		{raw: "5m", kind: KindInterval, every: 5 * time.Minute, source: "duration"},
		{raw: "2h30m", kind: KindInterval, every: 150 * time.Minute, source: "duration"},
		{raw: "00:50", kind: KindInterval, every: 50 * time.Minute, source: "hhmm"},
		{raw: "interval: 02:30", kind: KindInterval, every: 150 * time.Minute, source: "hhmm"},
		{raw: "every:90s", kind: KindInterval, every: 90 * time.Second, source: "duration"},
		{raw: "daily 09:30", kind: KindCron, cron: "30 9 * * *", source: "daily"},
		{raw: "weekly Mon 18:05", kind: KindCron, cron: "5 18 * * 1", source: "weekly"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSpec(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.cron, got.Cron)
			assert.Equal(t, tt.every, got.Every)
			assert.Equal(t, tt.source, got.Source)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"   ",
		"soon",
		"0s",
		"-5m",
		"cron:",
		"interval:",
		"10:75",
		"daily 25:00",
		"weekly funday 09:00",
		"weekly mon",
		"* * *",
		"61 * * * *",
	} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(raw, time.UTC)
			require.Error(t, err)
			assert.True(t, errors.Is(err, trigger.ErrInvalidSpec), "got %v", err)
		})
	}
}

func TestIntervalAnchoredAtStart(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 12, 0, 7, 0, time.UTC)
	s := Interval{Every: 5 * time.Minute}

	assert.Equal(t, start.Add(5*time.Minute), s.NextAfter(start, start))
	assert.Equal(t, start.Add(5*time.Minute), s.NextAfter(start, start.Add(-time.Hour)))
	assert.Equal(t, start.Add(10*time.Minute), s.NextAfter(start, start.Add(5*time.Minute)))
	assert.Equal(t, start.Add(15*time.Minute), s.NextAfter(start, start.Add(12*time.Minute)))
}

func TestCronIgnoresStart(t *testing.T) {
	t.Parallel()
	s, err := Parse("*/15 * * * *", time.UTC)
	require.NoError(t, err)

	after := time.Date(2024, 3, 1, 12, 7, 0, 0, time.UTC)
	want := time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)
	assert.True(t, want.Equal(s.NextAfter(time.Time{}, after)))
	assert.True(t, want.Equal(s.NextAfter(after.Add(-time.Hour), after)))
}

func TestCronLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	s, err := Parse("daily 09:00", loc)
	require.NoError(t, err)

	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := s.NextAfter(after, after)
	assert.True(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC).Equal(got), "got %s", got)
}

func TestPreview(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := Preview(Interval{Every: time.Hour}, start, 3)
	require.Len(t, got, 3)
	assert.Equal(t, start.Add(time.Hour), got[0])
	assert.Equal(t, start.Add(3*time.Hour), got[2])

	assert.Empty(t, Preview(nil, start, 3))
	assert.Empty(t, Preview(Interval{Every: time.Hour}, start, 0))
}

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSim_SubSeed(t *testing.T) {
	t.Parallel()

	t.Run("same_identity_same_seed", func(t *testing.T) {
		t.Parallel()

		a := SubSeed(42, "PRESS-001", "2026-03-01T06", "telemetry")
		b := SubSeed(42, "PRESS-001", "2026-03-01T06", "telemetry")
		require.Equal(t, a, b)
	})

	t.Run("any_part_changes_the_seed", func(t *testing.T) {
		t.Parallel()

		base := SubSeed(42, "PRESS-001", "2026-03-01T06", "telemetry")
		require.NotEqual(t, base, SubSeed(43, "PRESS-001", "2026-03-01T06", "telemetry"))
		require.NotEqual(t, base, SubSeed(42, "PRESS-002", "2026-03-01T06", "telemetry"))
		require.NotEqual(t, base, SubSeed(42, "PRESS-001", "2026-03-01T07", "telemetry"))
		require.NotEqual(t, base, SubSeed(42, "PRESS-001", "2026-03-01T06", "maintenance"))
	})

	t.Run("parts_are_delimited_not_concatenated", func(t *testing.T) {
		t.Parallel()

		require.NotEqual(t,
			SubSeed(42, "ab", "c"),
			SubSeed(42, "a", "bc"))
	})

	t.Run("draws_are_reproducible", func(t *testing.T) {
		t.Parallel()

		first := NewRand(7, "CNC-001", "noise").Float64()
		second := NewRand(7, "CNC-001", "noise").Float64()
		require.Equal(t, first, second)
	})
}

func TestSim_HashRange(t *testing.T) {
	t.Parallel()

	t.Run("stays_in_bounds", func(t *testing.T) {
		t.Parallel()

		for i := range 200 {
			v := HashRange(int64(i), 120, 360, "rul-base")
			require.GreaterOrEqual(t, v, 120)
			require.Less(t, v, 360)
		}
	})

	t.Run("degenerate_range_returns_lo", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 5, HashRange(1, 5, 5, "x"))
		require.Equal(t, 0, HashMod(1, 0, "x"))
	})
}

func TestSim_Round2(t *testing.T) {
	t.Parallel()

	require.Equal(t, 71.46, Round2(71.456))
	require.Equal(t, 71.45, Round2(71.454))
	require.Equal(t, -0.5, Round2(-0.499))
	require.Equal(t, 0.0, Round2(0))
}

func TestSim_Window(t *testing.T) {
	t.Parallel()

	t.Run("bounds_truncate_to_hour", func(t *testing.T) {
		t.Parallel()

		w := NewWindow(
			time.Date(2026, 3, 1, 6, 42, 13, 0, time.UTC),
			time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
		)
		require.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), w.Start)
		require.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("hours_are_inclusive_of_both_ends", func(t *testing.T) {
		t.Parallel()

		w := NewWindow(
			time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		)
		hours := w.Hours()
		require.Len(t, hours, 4)
		require.Equal(t, w.Start, hours[0])
		require.Equal(t, w.End, hours[3])
	})

	t.Run("single_hour_window", func(t *testing.T) {
		t.Parallel()

		ts := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		w := NewWindow(ts, ts)
		require.False(t, w.IsEmpty())
		require.Len(t, w.Hours(), 1)
		require.Len(t, w.Days(), 1)
	})

	t.Run("inverted_window_is_empty", func(t *testing.T) {
		t.Parallel()

		w := NewWindow(
			time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		)
		require.True(t, w.IsEmpty())
		require.Nil(t, w.Hours())
		require.Nil(t, w.Days())
	})

	t.Run("days_span_partial_edges", func(t *testing.T) {
		t.Parallel()

		w := NewWindow(
			time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC),
		)
		days := w.Days()
		require.Len(t, days, 3)
		require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), days[0])
		require.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), days[2])
	})

	t.Run("day_index_counts_whole_days", func(t *testing.T) {
		t.Parallel()

		epoch := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		require.Equal(t, 0, DayIndex(epoch, epoch.Add(5*time.Hour)))
		require.Equal(t, 1, DayIndex(epoch, epoch.AddDate(0, 0, 1)))
		require.Equal(t, 14, DayIndex(epoch, epoch.AddDate(0, 0, 14).Add(23*time.Hour)))
	})

	t.Run("keys_format_utc", func(t *testing.T) {
		t.Parallel()

		loc := time.FixedZone("UTC+5", 5*3600)
		ts := time.Date(2026, 3, 1, 3, 30, 0, 0, loc)
		require.Equal(t, "2026-02-28", DateKey(ts))
		require.Equal(t, "2026-02-28T22", HourKey(ts))
	})
}

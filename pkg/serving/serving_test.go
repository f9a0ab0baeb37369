package serving

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/features"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

type mockBatch struct {
	rows    [][]any
	sendErr error
	sent    bool
	closed  bool
}

func (b *mockBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *mockBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = true
	return nil
}

func (b *mockBatch) Close() error {
	b.closed = true
	return nil
}

type mockConn struct {
	execs    []string
	execArgs [][]any
	batches  []*mockBatch

	execErr   error
	sendFails int
}

func (c *mockConn) Ping(context.Context) error { return nil }

func (c *mockConn) Exec(_ context.Context, query string, args ...any) error {
	c.execs = append(c.execs, query)
	c.execArgs = append(c.execArgs, args)
	return c.execErr
}

func (c *mockConn) PrepareBatch(_ context.Context, _ string) (Batch, error) {
	b := &mockBatch{}
	if c.sendFails > 0 {
		c.sendFails--
		b.sendErr = errors.New("broken pipe")
	}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *mockConn) Close() error { return nil }

func testWriter(t *testing.T, conn Conn) *Writer {
	t.Helper()
	w, err := NewWriter(context.Background(),
		WithConn(conn),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return w
}

func pf(v float64) *float64 { return &v }

func TestServing_Writer(t *testing.T) {
	t.Parallel()

	hour := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	t.Run("creates_the_mirror_tables", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		w := testWriter(t, conn)

		require.NoError(t, w.EnsureTables(context.Background()))
		require.Len(t, conn.execs, 3)
		require.Contains(t, conn.execs[0], "agg_asset_hourly_health")
		require.Contains(t, conn.execs[1], "ml_feature_daily")
		require.Contains(t, conn.execs[2], "dim_asset_current")
		for _, ddl := range conn.execs {
			require.Contains(t, ddl, "MergeTree")
		}
	})

	t.Run("replace_hourly_clears_the_window_then_inserts", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		w := testWriter(t, conn)

		window := sim.NewWindow(hour, hour.Add(time.Hour))
		rows := []features.HourlyHealth{
			{
				AssetID: "PRESS-001", HourTS: hour,
				AvgTemperatureC: 71.25, MaxVibrationMMS: 3.4, StddevPressurePSI: pf(2.5),
				LatestHealthScore: 96.0, AvgFailureProbability: 0.04, MinRULDays: 100,
			},
			{
				AssetID: "CTRL-001", HourTS: hour.Add(time.Hour),
				AvgTemperatureC: 38.1, MaxVibrationMMS: 0.4,
				LatestHealthScore: 99.0, AvgFailureProbability: 0.01, MinRULDays: 118,
			},
		}
		require.NoError(t, w.ReplaceHourlyHealth(context.Background(), rows, window))

		require.Len(t, conn.execs, 1)
		require.Contains(t, conn.execs[0], "ALTER TABLE agg_asset_hourly_health DELETE")
		require.Contains(t, conn.execs[0], "mutations_sync = 1")
		require.Equal(t, []any{window.Start, window.End}, conn.execArgs[0])

		require.Len(t, conn.batches, 1)
		batch := conn.batches[0]
		require.True(t, batch.sent)
		require.True(t, batch.closed)
		require.Len(t, batch.rows, 2)

		first := batch.rows[0]
		require.Equal(t, "PRESS-001", first[0])
		require.Equal(t, hour, first[1])
		require.Equal(t, pf(2.5), first[4])
		require.Equal(t, int32(100), first[7])

		// Absent pressure stays a typed nil pointer, not zero.
		require.Nil(t, conn.batches[0].rows[1][4])
	})

	t.Run("empty_replace_still_clears_the_window", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		w := testWriter(t, conn)

		window := sim.NewWindow(hour, hour.Add(3*time.Hour))
		require.NoError(t, w.ReplaceHourlyHealth(context.Background(), nil, window))

		require.Len(t, conn.execs, 1)
		require.Empty(t, conn.batches)
	})

	t.Run("replace_daily_binds_day_bounds", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		w := testWriter(t, conn)

		window := sim.NewWindow(hour, hour.AddDate(0, 0, 6))
		rows := []features.FeatureRow{
			{
				AssetID: "CNC-001", FeatureDate: sim.Day(hour),
				AvgTempLast24h: 71.0, VibrationStddev7d: 1.2, PressureTrend7d: nil,
				CyclesSinceLastPM: 96, DaysSinceLastFailure: 999,
				OEMFailureRateEst: 0.1375, DowntimeImpactRisk: 4750.0, FailedInNext7d: true,
			},
		}
		require.NoError(t, w.ReplaceDailyFeatures(context.Background(), rows, window))

		require.Contains(t, conn.execs[0], "ALTER TABLE ml_feature_daily DELETE")
		require.Equal(t, []any{"2026-01-05", "2026-01-11"}, conn.execArgs[0])

		require.Len(t, conn.batches, 1)
		row := conn.batches[0].rows[0]
		require.Equal(t, "CNC-001", row[0])
		require.Equal(t, int32(96), row[5])
		require.Equal(t, int32(999), row[6])
		require.Equal(t, true, row[9])
	})

	t.Run("truncates_the_current_dim_before_reload", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		w := testWriter(t, conn)

		assets := catalog.DefaultFleet().Assets
		require.NoError(t, w.ReplaceCurrentAssets(context.Background(), assets))

		require.Len(t, conn.execs, 1)
		require.True(t, strings.HasPrefix(conn.execs[0], "TRUNCATE TABLE dim_asset_current"))
		require.Len(t, conn.batches, 1)
		require.Len(t, conn.batches[0].rows, len(assets))
		require.Equal(t, "PRESS-001", conn.batches[0].rows[0][0])
		require.Equal(t, "ROTATING", conn.batches[0].rows[0][6])
	})

	t.Run("retries_transient_send_failures", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{sendFails: 2}
		w := testWriter(t, conn)

		assets := catalog.DefaultFleet().Assets[:1]
		require.NoError(t, w.ReplaceCurrentAssets(context.Background(), assets))

		// Two failed sends, then the third attempt lands.
		require.Len(t, conn.batches, 3)
		require.True(t, conn.batches[2].sent)
	})

	t.Run("gives_up_after_max_tries", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{sendFails: 10}
		w := testWriter(t, conn)

		assets := catalog.DefaultFleet().Assets[:1]
		err := w.ReplaceCurrentAssets(context.Background(), assets)
		require.ErrorContains(t, err, "failed to send batch")
		require.Len(t, conn.batches, sendMaxTries)
	})
}

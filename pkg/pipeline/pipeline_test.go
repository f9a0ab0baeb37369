package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/duck"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/features"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) duck.DB {
	t.Helper()
	db, err := duck.NewDB(context.Background(), filepath.Join(t.TempDir(), "test.duckdb"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testClock pins "now" well past the simulated windows so they never look
// like the future.
func testClock() clockwork.Clock {
	return clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
}

func testPipeline(t *testing.T, db duck.DB, mirror Mirror) *Pipeline {
	t.Helper()
	p, err := New(Config{
		Logger:  testLogger(),
		Clock:   testClock(),
		DB:      db,
		Catalog: catalog.DefaultFleet(),
		Seed:    42,
		Mirror:  mirror,
	})
	require.NoError(t, err)
	return p
}

type fakeMirror struct {
	ensured  int
	hourly   int
	features int
	assets   int
}

func (m *fakeMirror) EnsureTables(context.Context) error { m.ensured++; return nil }

func (m *fakeMirror) ReplaceHourlyHealth(_ context.Context, rows []features.HourlyHealth, _ sim.Window) error {
	m.hourly = len(rows)
	return nil
}

func (m *fakeMirror) ReplaceDailyFeatures(_ context.Context, rows []features.FeatureRow, _ sim.Window) error {
	m.features = len(rows)
	return nil
}

func (m *fakeMirror) ReplaceCurrentAssets(_ context.Context, assets []catalog.Asset) error {
	m.assets = len(assets)
	return nil
}

func TestPipeline_Config(t *testing.T) {
	t.Parallel()

	t.Run("rejects_missing_pieces", func(t *testing.T) {
		t.Parallel()
		db := testDB(t)

		_, err := New(Config{DB: db, Catalog: catalog.DefaultFleet()})
		require.ErrorContains(t, err, "logger is required")

		_, err = New(Config{Logger: testLogger(), Catalog: catalog.DefaultFleet()})
		require.ErrorContains(t, err, "db is required")

		_, err = New(Config{Logger: testLogger(), DB: db})
		require.ErrorContains(t, err, "catalog is required")

		_, err = New(Config{Logger: testLogger(), DB: db, Catalog: &catalog.Catalog{}})
		require.ErrorContains(t, err, "invalid catalog")
	})

	t.Run("applies_defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(), DB: testDB(t), Catalog: catalog.DefaultFleet()}
		require.NoError(t, cfg.Validate())
		require.Equal(t, DefaultWorkers, cfg.Workers)
		require.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
		require.NotNil(t, cfg.Clock)
	})
}

func TestPipeline_RunOnce(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	t.Run("lands_every_surface", func(t *testing.T) {
		t.Parallel()
		db := testDB(t)
		p := testPipeline(t, db, nil)
		ctx := context.Background()

		// 30 days; each asset's preventive cadence fires at least once.
		window := sim.NewWindow(start, start.Add(30*24*time.Hour-time.Hour))
		report, err := p.RunOnce(ctx, window)
		require.NoError(t, err)

		cat := catalog.DefaultFleet()
		assets := len(cat.Assets)
		require.Equal(t, assets+len(cat.Sensors)+len(cat.Technicians)+
			len(cat.WorkOrderTypes)+len(cat.FailureCodes), report.DimensionRows)
		require.Equal(t, assets*30*24, report.TelemetryRows)
		require.Equal(t, assets*30*24, report.HourlyRows)
		require.Equal(t, assets*30, report.ProductionRows)
		require.Equal(t, assets*30, report.FeatureRows)
		require.GreaterOrEqual(t, report.EventRows, assets)
		require.Positive(t, report.PartRows)
		require.Empty(t, report.SkippedAssets)

		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		counts := map[string]int{
			"dim_asset_current":       assets,
			"fct_asset_telemetry":     report.TelemetryRows,
			"fct_maintenance_log":     report.EventRows,
			"fct_parts_usage":         report.PartRows,
			"fct_production_log":      report.ProductionRows,
			"agg_asset_hourly_health": report.HourlyRows,
			"ml_feature_daily":        report.FeatureRows,
		}
		for table, want := range counts {
			var n int
			require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
			require.Equal(t, want, n, "row count for %s", table)
		}
	})

	t.Run("rerun_converges", func(t *testing.T) {
		t.Parallel()
		db := testDB(t)
		p := testPipeline(t, db, nil)
		ctx := context.Background()

		window := sim.NewWindow(start, start.Add(7*24*time.Hour-time.Hour))
		first, err := p.RunOnce(ctx, window)
		require.NoError(t, err)
		second, err := p.RunOnce(ctx, window)
		require.NoError(t, err)

		require.NotEqual(t, first.RunID, second.RunID)
		require.Equal(t, first.TelemetryRows, second.TelemetryRows)
		require.Equal(t, first.EventRows, second.EventRows)
		require.Equal(t, first.FeatureRows, second.FeatureRows)

		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var n int
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM fct_asset_telemetry").Scan(&n))
		require.Equal(t, first.TelemetryRows, n)
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM ml_feature_daily").Scan(&n))
		require.Equal(t, first.FeatureRows, n)
	})

	t.Run("empty_window_is_a_noop", func(t *testing.T) {
		t.Parallel()
		p := testPipeline(t, testDB(t), nil)

		window := sim.Window{Start: start, End: start.Add(-time.Hour)}
		report, err := p.RunOnce(context.Background(), window)
		require.NoError(t, err)
		require.Zero(t, report.TelemetryRows)
		require.Zero(t, report.DimensionRows)
		require.False(t, p.Ready())
	})

	t.Run("future_window_is_a_noop", func(t *testing.T) {
		t.Parallel()
		p := testPipeline(t, testDB(t), nil)

		// The test clock sits at 2026-06-01.
		future := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
		report, err := p.RunOnce(context.Background(), sim.NewWindow(future, future.Add(24*time.Hour)))
		require.NoError(t, err)
		require.Zero(t, report.TelemetryRows)
		require.False(t, p.Ready())
	})

	t.Run("becomes_ready_after_first_run", func(t *testing.T) {
		t.Parallel()
		p := testPipeline(t, testDB(t), nil)
		ctx := context.Background()

		require.False(t, p.Ready())
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		require.Error(t, p.WaitReady(waitCtx))

		_, err := p.RunOnce(ctx, sim.NewWindow(start, start.Add(23*time.Hour)))
		require.NoError(t, err)
		require.True(t, p.Ready())
		require.NoError(t, p.WaitReady(ctx))
	})

	t.Run("mirror_receives_the_derived_surfaces", func(t *testing.T) {
		t.Parallel()
		mirror := &fakeMirror{}
		p := testPipeline(t, testDB(t), mirror)

		report, err := p.RunOnce(context.Background(), sim.NewWindow(start, start.Add(3*24*time.Hour-time.Hour)))
		require.NoError(t, err)

		require.Equal(t, 1, mirror.ensured)
		require.Equal(t, report.HourlyRows, mirror.hourly)
		require.Equal(t, report.FeatureRows, mirror.features)
		require.Equal(t, len(catalog.DefaultFleet().Assets), mirror.assets)
	})
}

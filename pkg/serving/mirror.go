package serving

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/features"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const sendMaxTries = 3

// Mirror DDL. Deletes are mutations, so replaces run them with
// mutations_sync=1 to keep re-runs read-consistent.
const (
	hourlyHealthDDL = `
CREATE TABLE IF NOT EXISTS agg_asset_hourly_health (
	asset_id LowCardinality(String),
	hour_ts DateTime('UTC'),
	avg_temperature_c Float64,
	max_vibration_mm_s Float64,
	stddev_pressure_psi Nullable(Float64),
	latest_health_score Float64,
	avg_failure_probability Float64,
	min_rul_days Int32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(hour_ts)
ORDER BY (asset_id, hour_ts)`

	dailyFeaturesDDL = `
CREATE TABLE IF NOT EXISTS ml_feature_daily (
	asset_id LowCardinality(String),
	feature_date Date,
	avg_temp_last_24h Float64,
	vibration_stddev_7d Float64,
	pressure_trend_7d Nullable(Float64),
	cycles_since_last_pm Int32,
	days_since_last_failure Int32,
	oem_failure_rate_est Float64,
	downtime_impact_risk Float64,
	failed_in_next_7d Bool
) ENGINE = MergeTree
ORDER BY (asset_id, feature_date)`

	currentAssetsDDL = `
CREATE TABLE IF NOT EXISTS dim_asset_current (
	asset_id LowCardinality(String),
	asset_name String,
	model String,
	oem_name String,
	installation_date Date,
	downtime_impact_per_hour Float64,
	asset_class LowCardinality(String),
	process_name String,
	line_name String,
	plant_name String
) ENGINE = ReplacingMergeTree
ORDER BY asset_id`
)

// EnsureTables creates the mirror tables when they do not exist yet.
func (w *Writer) EnsureTables(ctx context.Context) error {
	for _, ddl := range []string{hourlyHealthDDL, dailyFeaturesDDL, currentAssetsDDL} {
		if err := w.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create mirror table: %w", err)
		}
	}
	return nil
}

// ReplaceHourlyHealth clears the window in the mirror and re-inserts the
// rollup rows.
func (w *Writer) ReplaceHourlyHealth(ctx context.Context, rows []features.HourlyHealth, window sim.Window) error {
	err := w.conn.Exec(ctx,
		`ALTER TABLE agg_asset_hourly_health DELETE WHERE hour_ts >= ? AND hour_ts <= ? SETTINGS mutations_sync = 1`,
		window.Start.UTC(), window.End.UTC())
	if err != nil {
		return fmt.Errorf("failed to clear hourly health window: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	err = w.sendBatch(ctx, `INSERT INTO agg_asset_hourly_health (
	asset_id, hour_ts, avg_temperature_c, max_vibration_mm_s,
	stddev_pressure_psi, latest_health_score, avg_failure_probability, min_rul_days
)`, func(batch Batch) error {
		for _, r := range rows {
			if err := batch.Append(
				r.AssetID,
				r.HourTS.UTC(),
				r.AvgTemperatureC,
				r.MaxVibrationMMS,
				r.StddevPressurePSI,
				r.LatestHealthScore,
				r.AvgFailureProbability,
				int32(r.MinRULDays),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.log.Debug("serving: mirrored hourly health", "rows", len(rows), "window", window.String())
	return nil
}

// ReplaceDailyFeatures clears the window's feature days in the mirror and
// re-inserts the feature rows.
func (w *Writer) ReplaceDailyFeatures(ctx context.Context, rows []features.FeatureRow, window sim.Window) error {
	firstDay, lastDay := window.DayBounds()
	err := w.conn.Exec(ctx,
		`ALTER TABLE ml_feature_daily DELETE WHERE feature_date >= toDate(?) AND feature_date <= toDate(?) SETTINGS mutations_sync = 1`,
		sim.DateKey(firstDay), sim.DateKey(lastDay))
	if err != nil {
		return fmt.Errorf("failed to clear daily features window: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	err = w.sendBatch(ctx, `INSERT INTO ml_feature_daily (
	asset_id, feature_date, avg_temp_last_24h, vibration_stddev_7d, pressure_trend_7d,
	cycles_since_last_pm, days_since_last_failure, oem_failure_rate_est,
	downtime_impact_risk, failed_in_next_7d
)`, func(batch Batch) error {
		for _, r := range rows {
			if err := batch.Append(
				r.AssetID,
				r.FeatureDate,
				r.AvgTempLast24h,
				r.VibrationStddev7d,
				r.PressureTrend7d,
				int32(r.CyclesSinceLastPM),
				int32(r.DaysSinceLastFailure),
				r.OEMFailureRateEst,
				r.DowntimeImpactRisk,
				r.FailedInNext7d,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.log.Debug("serving: mirrored daily features", "rows", len(rows), "window", window.String())
	return nil
}

// ReplaceCurrentAssets reloads the asset dimension snapshot.
func (w *Writer) ReplaceCurrentAssets(ctx context.Context, assets []catalog.Asset) error {
	if err := w.conn.Exec(ctx, `TRUNCATE TABLE dim_asset_current`); err != nil {
		return fmt.Errorf("failed to truncate current assets: %w", err)
	}
	if len(assets) == 0 {
		return nil
	}

	err := w.sendBatch(ctx, `INSERT INTO dim_asset_current (
	asset_id, asset_name, model, oem_name, installation_date,
	downtime_impact_per_hour, asset_class, process_name, line_name, plant_name
)`, func(batch Batch) error {
		for _, a := range assets {
			if err := batch.Append(
				a.ID,
				a.Name,
				a.Model,
				a.OEMName,
				a.InstallationDate,
				a.DowntimeImpactPerHour,
				string(a.Class),
				a.ProcessName,
				a.LineName,
				a.PlantName,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.log.Debug("serving: mirrored current assets", "rows", len(assets))
	return nil
}

// sendBatch prepares, fills and sends one insert batch, retrying the whole
// sequence on failure. A sent batch cannot be reused, so each attempt
// prepares a fresh one.
func (w *Writer) sendBatch(ctx context.Context, insertSQL string, fill func(batch Batch) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (any, error) {
		attempt++
		if attempt > 1 {
			w.log.Warn("serving: retrying clickhouse batch", "attempt", attempt)
		}

		batch, err := w.conn.PrepareBatch(ctx, insertSQL)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare batch: %w", err)
		}
		if err := fill(batch); err != nil {
			_ = batch.Close()
			return nil, fmt.Errorf("failed to append rows: %w", err)
		}
		if err := batch.Send(); err != nil {
			_ = batch.Close()
			return nil, fmt.Errorf("failed to send batch: %w", err)
		}
		if err := batch.Close(); err != nil {
			return nil, fmt.Errorf("failed to close batch: %w", err)
		}
		return nil, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(sendMaxTries))
	return err
}

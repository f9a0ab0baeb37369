// Package analytics serves read-side summaries over the warehouse: line OEE,
// production at risk, fleet health and maintenance spend. Results are cached
// with a short TTL so dashboard polling does not hammer DuckDB.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hyperforge-labs/forgelake/pkg/duck"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	defaultSummaryCacheTTL = 1 * time.Minute

	// Performance is pinned; the simulator does not model rate loss.
	performanceFactor = 0.95

	hoursPerDay = 24
)

type ServiceConfig struct {
	Logger *slog.Logger
	DB     duck.DB

	// Optional with default.
	SummaryCacheTTL time.Duration
}

func (c *ServiceConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DB == nil {
		return errors.New("db is required")
	}
	if c.SummaryCacheTTL == 0 {
		c.SummaryCacheTTL = defaultSummaryCacheTTL
	}
	return nil
}

type Service struct {
	log *slog.Logger
	cfg *ServiceConfig

	cache   *ttlcache.Cache[string, any]
	cacheMu sync.RWMutex
}

func NewService(cfg *ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, any](cfg.SummaryCacheTTL),
	)

	return &Service{
		log:   cfg.Logger,
		cfg:   cfg,
		cache: cache,
	}, nil
}

// LineOEE is overall equipment effectiveness for one production line over a
// day range. Availability and quality come from the production log;
// performance is fixed at 0.95.
type LineOEE struct {
	PlantName    string  `json:"plant_name"`
	LineName     string  `json:"line_name"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
}

// OEEByLine aggregates the production log per (plant, line) over the day
// range, inclusive on both ends. Lines with no planned hours report zero
// availability rather than dividing by zero.
func (s *Service) OEEByLine(ctx context.Context, from, to time.Time) ([]LineOEE, error) {
	if cached := s.getCachedOEE(from, to); cached != nil {
		return cached, nil
	}

	conn, err := s.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
SELECT d.plant_name, d.line_name,
	SUM(p.planned_runtime_hours) AS planned,
	SUM(p.actual_runtime_hours) AS actual,
	CAST(SUM(p.units_produced) AS BIGINT) AS produced,
	CAST(SUM(p.units_scrapped) AS BIGINT) AS scrapped
FROM fct_production_log p
JOIN dim_asset_current d ON d.asset_id = p.asset_id
WHERE p.production_date >= ? AND p.production_date <= ?
GROUP BY d.plant_name, d.line_name
ORDER BY d.plant_name, d.line_name`,
		sim.DateKey(from), sim.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query production log: %w", err)
	}
	defer rows.Close()

	var out []LineOEE
	for rows.Next() {
		var (
			line               LineOEE
			planned, actual    float64
			produced, scrapped int64
		)
		if err := rows.Scan(&line.PlantName, &line.LineName, &planned, &actual, &produced, &scrapped); err != nil {
			return nil, fmt.Errorf("failed to scan OEE row: %w", err)
		}

		if planned > 0 {
			line.Availability = round4(actual / planned)
		}
		line.Performance = performanceFactor
		if produced > 0 {
			line.Quality = round4(float64(produced-scrapped) / float64(produced))
		}
		line.OEE = round4(line.Availability * line.Performance * line.Quality)
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	s.setCachedOEE(from, to, out)
	return out, nil
}

// AssetRisk prices the production exposed if the asset fails today: its mean
// failure probability over the latest rolled-up day times a day of downtime
// impact.
type AssetRisk struct {
	AssetID               string  `json:"asset_id"`
	PlantName             string  `json:"plant_name"`
	AvgFailureProbability float64 `json:"avg_failure_probability"`
	DowntimeImpactPerHour float64 `json:"downtime_impact_per_hour"`
	ProductionAtRisk      float64 `json:"production_at_risk"`
}

// ProductionAtRisk ranks the fleet by exposure, highest first. Assets with no
// hourly rollup yet are absent.
func (s *Service) ProductionAtRisk(ctx context.Context) ([]AssetRisk, error) {
	if cached := s.getCachedRisk(); cached != nil {
		return cached, nil
	}

	conn, err := s.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
WITH latest AS (
	SELECT asset_id, MAX(CAST(hour_ts AS DATE)) AS health_date
	FROM agg_asset_hourly_health
	GROUP BY asset_id
)
SELECT h.asset_id, d.plant_name,
	AVG(h.avg_failure_probability) AS avg_probability,
	d.downtime_impact_per_hour
FROM agg_asset_hourly_health h
JOIN latest l ON l.asset_id = h.asset_id AND CAST(h.hour_ts AS DATE) = l.health_date
JOIN dim_asset_current d ON d.asset_id = h.asset_id
GROUP BY h.asset_id, d.plant_name, d.downtime_impact_per_hour`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly health: %w", err)
	}
	defer rows.Close()

	var out []AssetRisk
	for rows.Next() {
		var r AssetRisk
		if err := rows.Scan(&r.AssetID, &r.PlantName, &r.AvgFailureProbability, &r.DowntimeImpactPerHour); err != nil {
			return nil, fmt.Errorf("failed to scan risk row: %w", err)
		}
		r.AvgFailureProbability = round4(r.AvgFailureProbability)
		r.ProductionAtRisk = sim.Round2(r.AvgFailureProbability * r.DowntimeImpactPerHour * hoursPerDay)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductionAtRisk != out[j].ProductionAtRisk {
			return out[i].ProductionAtRisk > out[j].ProductionAtRisk
		}
		return out[i].AssetID < out[j].AssetID
	})

	s.setCachedRisk(out)
	return out, nil
}

// AssetHealth is one asset's standing at the end of the queried window.
type AssetHealth struct {
	AssetID           string    `json:"asset_id"`
	AsOf              time.Time `json:"as_of"`
	LatestHealthScore float64   `json:"latest_health_score"`
	MinRULDays        int       `json:"min_rul_days"`
	AnomalyCount      int       `json:"anomaly_count"`
}

// FleetHealth reports each asset's latest hourly rollup inside the window
// together with its anomalous reading count over the same window.
func (s *Service) FleetHealth(ctx context.Context, window sim.Window) ([]AssetHealth, error) {
	if cached := s.getCachedFleet(window); cached != nil {
		return cached, nil
	}

	conn, err := s.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	from, to := window.Start.UTC(), window.End.UTC()
	rows, err := conn.QueryContext(ctx, `
WITH latest AS (
	SELECT asset_id, MAX(hour_ts) AS hour_ts
	FROM agg_asset_hourly_health
	WHERE hour_ts >= ? AND hour_ts <= ?
	GROUP BY asset_id
),
anomalies AS (
	SELECT asset_id, CAST(COUNT(*) AS BIGINT) AS n
	FROM fct_asset_telemetry
	WHERE is_anomalous AND recorded_at >= ? AND recorded_at <= ?
	GROUP BY asset_id
)
SELECT h.asset_id, h.hour_ts, h.latest_health_score, h.min_rul_days, COALESCE(a.n, 0)
FROM agg_asset_hourly_health h
JOIN latest l ON l.asset_id = h.asset_id AND l.hour_ts = h.hour_ts
LEFT JOIN anomalies a ON a.asset_id = h.asset_id
ORDER BY h.asset_id`,
		from, to, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet health: %w", err)
	}
	defer rows.Close()

	var out []AssetHealth
	for rows.Next() {
		var h AssetHealth
		if err := rows.Scan(&h.AssetID, &h.AsOf, &h.LatestHealthScore, &h.MinRULDays, &h.AnomalyCount); err != nil {
			return nil, fmt.Errorf("failed to scan fleet health row: %w", err)
		}
		h.AsOf = h.AsOf.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	s.setCachedFleet(window, out)
	return out, nil
}

// CostByType totals maintenance spend and downtime per work order type.
type CostByType struct {
	WOType        string  `json:"wo_type"`
	Events        int     `json:"events"`
	DowntimeHours float64 `json:"downtime_hours"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// MaintenanceCost sums parts plus labor per work order type over the day
// range, inclusive on both ends.
func (s *Service) MaintenanceCost(ctx context.Context, from, to time.Time) ([]CostByType, error) {
	if cached := s.getCachedCost(from, to); cached != nil {
		return cached, nil
	}

	conn, err := s.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
SELECT wo_type,
	CAST(COUNT(*) AS BIGINT) AS events,
	SUM(downtime_hours) AS downtime,
	SUM(parts_cost_usd + labor_cost_usd) AS total_cost
FROM fct_maintenance_log
WHERE event_date >= ? AND event_date <= ?
GROUP BY wo_type
ORDER BY wo_type`,
		sim.DateKey(from), sim.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance log: %w", err)
	}
	defer rows.Close()

	var out []CostByType
	for rows.Next() {
		var c CostByType
		if err := rows.Scan(&c.WOType, &c.Events, &c.DowntimeHours, &c.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		c.DowntimeHours = sim.Round2(c.DowntimeHours)
		c.TotalCostUSD = sim.Round2(c.TotalCostUSD)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	s.setCachedCost(from, to, out)
	return out, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

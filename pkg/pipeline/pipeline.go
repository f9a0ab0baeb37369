// Package pipeline runs the simulation and aggregation stages in dependency
// order: dimension snapshots, telemetry, maintenance and its parts ledger,
// production, then the derived hourly and daily surfaces. Every stage
// replaces its window, so re-running any window converges instead of
// duplicating.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/duck"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/features"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/maintenance"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/metrics"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/production"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/telemetry"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	DefaultWorkers         = 4
	DefaultRefreshInterval = time.Hour
)

// Mirror receives the derived surfaces after each run, for serving stores
// that are not the warehouse itself.
type Mirror interface {
	EnsureTables(ctx context.Context) error
	ReplaceHourlyHealth(ctx context.Context, rows []features.HourlyHealth, window sim.Window) error
	ReplaceDailyFeatures(ctx context.Context, rows []features.FeatureRow, window sim.Window) error
	ReplaceCurrentAssets(ctx context.Context, assets []catalog.Asset) error
}

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	DB      duck.DB
	Catalog *catalog.Catalog
	Seed    int64

	// Workers bounds per-asset generation concurrency.
	Workers int

	// RefreshInterval paces the daemon loop started by Start.
	RefreshInterval time.Duration

	// HealthFloor and EmergencyRate pass through to the generators; zero
	// keeps their defaults.
	HealthFloor   float64
	EmergencyRate float64

	// Mirror, when set, receives the hourly and daily surfaces and the
	// current asset snapshot after each run.
	Mirror Mirror
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	if cfg.Workers < 0 {
		return errors.New("workers must be non-negative")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return nil
}

// RunReport summarizes one pipeline run: rows landed per surface plus the
// model edges and dropped facts the run encountered.
type RunReport struct {
	RunID     string
	Window    sim.Window
	StartedAt time.Time
	Duration  time.Duration

	DimensionRows  int
	TelemetryRows  int
	EventRows      int
	PartRows       int
	ProductionRows int
	HourlyRows     int
	FeatureRows    int

	HealthClamps      int
	ProbabilityClamps int
	RULFloors         int
	SkippedAssets     []string
}

type telemetryResult struct {
	readings []telemetry.Reading
	diag     telemetry.Diagnostics
}

type Pipeline struct {
	log *slog.Logger
	cfg Config

	telemetryGen *telemetry.Generator
	maintGen     *maintenance.Generator
	prodGen      *production.Generator
	builder      *features.Builder

	catalogStore   *catalog.Store
	telemetryStore *telemetry.Store
	maintStore     *maintenance.Store
	prodStore      *production.Store
	featureStore   *features.Store

	telemetryPool  pond.ResultPool[telemetryResult]
	eventsPool     pond.ResultPool[[]maintenance.Event]
	productionPool pond.ResultPool[[]production.Record]

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	telemetryGen, err := telemetry.NewGenerator(telemetry.GeneratorConfig{
		Catalog:     cfg.Catalog,
		Seed:        cfg.Seed,
		HealthFloor: cfg.HealthFloor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry generator: %w", err)
	}
	maintGen, err := maintenance.NewGenerator(maintenance.GeneratorConfig{
		Catalog:       cfg.Catalog,
		Seed:          cfg.Seed,
		EmergencyRate: cfg.EmergencyRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance generator: %w", err)
	}
	prodGen, err := production.NewGenerator(production.GeneratorConfig{
		Catalog: cfg.Catalog,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create production generator: %w", err)
	}
	builder, err := features.NewBuilder(features.BuilderConfig{
		Catalog: cfg.Catalog,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feature builder: %w", err)
	}

	catalogStore, err := catalog.NewStore(catalog.StoreConfig{Logger: cfg.Logger, DB: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog store: %w", err)
	}
	telemetryStore, err := telemetry.NewStore(telemetry.StoreConfig{Logger: cfg.Logger, DB: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry store: %w", err)
	}
	maintStore, err := maintenance.NewStore(maintenance.StoreConfig{Logger: cfg.Logger, DB: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance store: %w", err)
	}
	prodStore, err := production.NewStore(production.StoreConfig{Logger: cfg.Logger, DB: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create production store: %w", err)
	}
	featureStore, err := features.NewStore(features.StoreConfig{Logger: cfg.Logger, DB: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create feature store: %w", err)
	}

	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,

		telemetryGen: telemetryGen,
		maintGen:     maintGen,
		prodGen:      prodGen,
		builder:      builder,

		catalogStore:   catalogStore,
		telemetryStore: telemetryStore,
		maintStore:     maintStore,
		prodStore:      prodStore,
		featureStore:   featureStore,

		telemetryPool:  pond.NewResultPool[telemetryResult](cfg.Workers),
		eventsPool:     pond.NewResultPool[[]maintenance.Event](cfg.Workers),
		productionPool: pond.NewResultPool[[]production.Record](cfg.Workers),

		readyCh: make(chan struct{}),
	}, nil
}

func (p *Pipeline) Ready() bool {
	select {
	case <-p.readyCh:
		return true
	default:
		return false
	}
}

func (p *Pipeline) WaitReady(ctx context.Context) error {
	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for pipeline: %w", ctx.Err())
	}
}

// Start runs the pipeline as a daemon: one immediate run over
// [start, clock.Now()], then one per refresh interval with the window end
// extended to the current time. Failed runs log and wait for the next tick.
func (p *Pipeline) Start(ctx context.Context, start time.Time) {
	go func() {
		p.log.Info("pipeline: starting refresh loop", "interval", p.cfg.RefreshInterval)

		run := func() {
			window := sim.NewWindow(start, p.cfg.Clock.Now())
			if _, err := p.RunOnce(ctx, window); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.log.Error("pipeline: run failed", "error", err)
			}
		}

		run()
		ticker := p.cfg.Clock.NewTicker(p.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				run()
			}
		}
	}()
}

// RunOnce executes every stage for the window. Empty and all-future windows
// are logged no-ops, not errors.
func (p *Pipeline) RunOnce(ctx context.Context, window sim.Window) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Window:    window,
		StartedAt: p.cfg.Clock.Now().UTC(),
	}

	if window.IsEmpty() {
		p.log.Warn("pipeline: window is empty, nothing to run", "window", window.String())
		return report, nil
	}
	if window.Start.After(p.cfg.Clock.Now()) {
		p.log.Warn("pipeline: window is entirely in the future, nothing to run", "window", window.String())
		return report, nil
	}

	runStart := time.Now()
	p.log.Info("pipeline: run started", "run_id", report.RunID, "window", window.String())

	if err := p.run(ctx, window, report); err != nil {
		metrics.RunsTotal.WithLabelValues(metrics.StatusError).Inc()
		return nil, err
	}

	report.Duration = time.Since(runStart)
	metrics.RunsTotal.WithLabelValues(metrics.StatusOK).Inc()
	metrics.LastRunCompleted.Set(float64(p.cfg.Clock.Now().Unix()))

	p.readyOnce.Do(func() {
		close(p.readyCh)
		p.log.Info("pipeline: first run completed, ready")
	})

	p.log.Info("pipeline: run completed",
		"run_id", report.RunID,
		"duration", report.Duration.String(),
		"telemetry_rows", report.TelemetryRows,
		"event_rows", report.EventRows,
		"part_rows", report.PartRows,
		"production_rows", report.ProductionRows,
		"hourly_rows", report.HourlyRows,
		"feature_rows", report.FeatureRows)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, window sim.Window, report *RunReport) error {
	cat := p.cfg.Catalog

	var readings []telemetry.Reading
	var events []maintenance.Event

	if err := p.stage("dimensions", func() error {
		if err := p.catalogStore.ReplaceDimensions(ctx, cat, report.StartedAt, report.RunID); err != nil {
			return err
		}
		report.DimensionRows = len(cat.Assets) + len(cat.Sensors) + len(cat.Technicians) +
			len(cat.WorkOrderTypes) + len(cat.FailureCodes)
		return nil
	}); err != nil {
		return err
	}

	if err := p.stage("telemetry", func() error {
		group := p.telemetryPool.NewGroupContext(ctx)
		for _, a := range cat.Assets {
			a := a
			group.SubmitErr(func() (telemetryResult, error) {
				readings, diag := p.telemetryGen.GenerateAsset(a, window)
				return telemetryResult{readings: readings, diag: diag}, nil
			})
		}
		results, err := group.Wait()
		if err != nil {
			return err
		}
		var diag telemetry.Diagnostics
		for _, res := range results {
			readings = append(readings, res.readings...)
			diag.Add(res.diag)
		}

		if err := p.telemetryStore.ReplaceReadings(ctx, readings, window); err != nil {
			return err
		}
		report.TelemetryRows = len(readings)
		report.HealthClamps = diag.HealthClamps
		report.ProbabilityClamps = diag.ProbabilityClamps
		report.RULFloors = diag.RULFloors
		metrics.RowsWritten.WithLabelValues("fct_asset_telemetry").Add(float64(len(readings)))
		metrics.ValuesClamped.WithLabelValues(metrics.ClampHealth).Add(float64(diag.HealthClamps))
		metrics.ValuesClamped.WithLabelValues(metrics.ClampProbability).Add(float64(diag.ProbabilityClamps))
		metrics.ValuesClamped.WithLabelValues(metrics.ClampRUL).Add(float64(diag.RULFloors))
		return nil
	}); err != nil {
		return err
	}

	if err := p.stage("maintenance", func() error {
		group := p.eventsPool.NewGroupContext(ctx)
		for _, a := range cat.Assets {
			a := a
			group.SubmitErr(func() ([]maintenance.Event, error) {
				return p.maintGen.GenerateAsset(a, window), nil
			})
		}
		results, err := group.Wait()
		if err != nil {
			return err
		}
		for _, res := range results {
			events = append(events, res...)
		}

		if err := p.maintStore.ReplaceEvents(ctx, events, window); err != nil {
			return err
		}
		parts := p.maintGen.GenerateParts(events)
		if err := p.maintStore.ReplacePartsUsage(ctx, parts, window); err != nil {
			return err
		}
		report.EventRows = len(events)
		report.PartRows = len(parts)
		metrics.RowsWritten.WithLabelValues("fct_maintenance_log").Add(float64(len(events)))
		metrics.RowsWritten.WithLabelValues("fct_parts_usage").Add(float64(len(parts)))
		return nil
	}); err != nil {
		return err
	}

	if err := p.stage("production", func() error {
		index := production.IndexEvents(events)
		group := p.productionPool.NewGroupContext(ctx)
		for _, a := range cat.Assets {
			a := a
			group.SubmitErr(func() ([]production.Record, error) {
				return p.prodGen.GenerateAsset(a, window, index), nil
			})
		}
		results, err := group.Wait()
		if err != nil {
			return err
		}
		var records []production.Record
		for _, res := range results {
			records = append(records, res...)
		}

		if err := p.prodStore.ReplaceProduction(ctx, records, window); err != nil {
			return err
		}
		report.ProductionRows = len(records)
		metrics.RowsWritten.WithLabelValues("fct_production_log").Add(float64(len(records)))
		return nil
	}); err != nil {
		return err
	}

	var hourly []features.HourlyHealth
	var featureRows []features.FeatureRow

	if err := p.stage("hourly_health", func() error {
		hourly = features.BuildHourlyHealth(readings)
		if err := p.featureStore.ReplaceHourlyHealth(ctx, hourly, window); err != nil {
			return err
		}
		report.HourlyRows = len(hourly)
		metrics.RowsWritten.WithLabelValues("agg_asset_hourly_health").Add(float64(len(hourly)))
		return nil
	}); err != nil {
		return err
	}

	if err := p.stage("daily_features", func() error {
		var diag features.Diagnostics
		featureRows, diag = p.builder.Build(readings, events)
		if err := p.featureStore.ReplaceDailyFeatures(ctx, featureRows, window); err != nil {
			return err
		}
		report.FeatureRows = len(featureRows)
		report.SkippedAssets = diag.SkippedAssets
		if len(diag.SkippedAssets) > 0 {
			metrics.SkippedAssets.Add(float64(len(diag.SkippedAssets)))
			p.log.Warn("pipeline: facts referenced assets missing from the catalog",
				"assets", diag.SkippedAssets)
		}
		metrics.RowsWritten.WithLabelValues("ml_feature_daily").Add(float64(len(featureRows)))
		return nil
	}); err != nil {
		return err
	}

	if p.cfg.Mirror != nil {
		if err := p.stage("serving", func() error {
			if err := p.cfg.Mirror.EnsureTables(ctx); err != nil {
				return err
			}
			if err := p.cfg.Mirror.ReplaceHourlyHealth(ctx, hourly, window); err != nil {
				return err
			}
			if err := p.cfg.Mirror.ReplaceDailyFeatures(ctx, featureRows, window); err != nil {
				return err
			}
			return p.cfg.Mirror.ReplaceCurrentAssets(ctx, cat.Assets)
		}); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	stageStart := time.Now()
	err := fn()
	duration := time.Since(stageStart)
	metrics.StageDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		metrics.StageErrors.WithLabelValues(name).Inc()
		return fmt.Errorf("%s stage: %w", name, err)
	}
	p.log.Debug("pipeline: stage completed", "stage", name, "duration", duration.String())
	return nil
}

package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/maintenance"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/telemetry"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	// noEventSentinel stands in for cycles_since_last_pm and
	// days_since_last_failure when the asset has no qualifying event yet.
	noEventSentinel = 999

	// cyclesPerDay converts elapsed days into operating cycles.
	cyclesPerDay = 24

	// missingHealthDefault is assumed when a feature day has no health
	// readings to take the latest score from.
	missingHealthDefault = 95.0

	oemRateLo = 0.08
	oemRateHi = 0.20

	labelHorizonDays  = 7
	rollingWindowDays = 7
)

// FeatureRow is one (asset, day) of model input, labeled with whether the
// asset went on to fail within the next seven days.
type FeatureRow struct {
	AssetID              string
	FeatureDate          time.Time
	AvgTempLast24h       float64
	VibrationStddev7d    float64
	PressureTrend7d      *float64
	CyclesSinceLastPM    int
	DaysSinceLastFailure int
	OEMFailureRateEst    float64
	DowntimeImpactRisk   float64
	FailedInNext7d       bool
}

// Diagnostics reports facts the builder had to discard. SkippedAssets lists
// asset ids that appear in the input facts but not in the catalog; their
// rows are dropped rather than guessed at.
type Diagnostics struct {
	SkippedAssets []string
}

// BuilderConfig configures a feature Builder.
type BuilderConfig struct {
	Catalog *catalog.Catalog
	Seed    int64
}

func (cfg *BuilderConfig) Validate() error {
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	return nil
}

// Builder derives daily feature rows from telemetry and maintenance facts.
type Builder struct {
	cat  *catalog.Catalog
	seed int64
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Builder{cat: cfg.Catalog, seed: cfg.Seed}, nil
}

// Build emits one row per (asset, day) that has telemetry, in catalog order
// then date order. Rolling windows look back over the prior seven calendar
// days of readings; the label looks strictly forward, so a failure on the
// feature day itself does not set it.
func (b *Builder) Build(readings []telemetry.Reading, events []maintenance.Event) ([]FeatureRow, Diagnostics) {
	skipped := map[string]bool{}

	byDay := map[string]map[time.Time][]telemetry.Reading{}
	for _, r := range readings {
		if _, ok := b.cat.Asset(r.AssetID); !ok {
			skipped[r.AssetID] = true
			continue
		}
		day := sim.Day(r.RecordedAt)
		if byDay[r.AssetID] == nil {
			byDay[r.AssetID] = map[time.Time][]telemetry.Reading{}
		}
		byDay[r.AssetID][day] = append(byDay[r.AssetID][day], r)
	}
	for _, days := range byDay {
		for _, rs := range days {
			sort.Slice(rs, func(i, j int) bool { return rs[i].RecordedAt.Before(rs[j].RecordedAt) })
		}
	}

	preventives := map[string][]time.Time{}
	failures := map[string][]time.Time{}
	for _, ev := range events {
		if _, ok := b.cat.Asset(ev.AssetID); !ok {
			skipped[ev.AssetID] = true
			continue
		}
		day := sim.Day(ev.EventDate)
		if ev.WOType == catalog.WOPreventive {
			preventives[ev.AssetID] = append(preventives[ev.AssetID], day)
		}
		if ev.FailureFlag {
			failures[ev.AssetID] = append(failures[ev.AssetID], day)
		}
	}
	for _, ds := range preventives {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
	}
	for _, ds := range failures {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
	}

	var rows []FeatureRow
	for _, a := range b.cat.Assets {
		days := byDay[a.ID]
		if len(days) == 0 {
			continue
		}
		order := make([]time.Time, 0, len(days))
		for d := range days {
			order = append(order, d)
		}
		sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

		for _, day := range order {
			rows = append(rows, b.buildRow(a, day, days, preventives[a.ID], failures[a.ID]))
		}
	}

	var diag Diagnostics
	for id := range skipped {
		diag.SkippedAssets = append(diag.SkippedAssets, id)
	}
	sort.Strings(diag.SkippedAssets)
	return rows, diag
}

func (b *Builder) buildRow(a catalog.Asset, day time.Time, days map[time.Time][]telemetry.Reading, preventives, failures []time.Time) FeatureRow {
	var window []telemetry.Reading
	for back := rollingWindowDays - 1; back >= 0; back-- {
		window = append(window, days[day.AddDate(0, 0, -back)]...)
	}

	var temps []float64
	for _, r := range days[day] {
		temps = append(temps, r.TemperatureC)
	}
	var vibs []float64
	for _, r := range window {
		vibs = append(vibs, r.VibrationMMS)
	}

	rng := sim.NewRand(b.seed, "features/oem-rate", a.ID, sim.DateKey(day))

	row := FeatureRow{
		AssetID:              a.ID,
		FeatureDate:          day,
		AvgTempLast24h:       sim.Round2(mean(temps)),
		VibrationStddev7d:    sim.Round2(stddev(vibs)),
		PressureTrend7d:      pressureTrend(window),
		CyclesSinceLastPM:    cyclesSinceLastPM(day, preventives),
		DaysSinceLastFailure: daysSinceLastFailure(day, failures),
		OEMFailureRateEst:    round4(sim.Uniform(rng, oemRateLo, oemRateHi)),
		DowntimeImpactRisk:   sim.Round2((100 - latestHealth(days[day])) * a.DowntimeImpactPerHour),
		FailedInNext7d:       failedWithinHorizon(day, failures),
	}
	return row
}

// pressureTrend is (max - min) / count over the window's pressure readings,
// or nil when the asset produced none.
func pressureTrend(window []telemetry.Reading) *float64 {
	var lo, hi float64
	count := 0
	for _, r := range window {
		if r.PressurePSI == nil {
			continue
		}
		p := *r.PressurePSI
		if count == 0 {
			lo, hi = p, p
		} else {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	t := round4((hi - lo) / float64(count))
	return &t
}

// cyclesSinceLastPM counts 24 cycles per elapsed day since the most recent
// preventive service strictly before day.
func cyclesSinceLastPM(day time.Time, preventives []time.Time) int {
	last, ok := lastBefore(day, preventives)
	if !ok {
		return noEventSentinel
	}
	return cyclesPerDay * sim.DayIndex(last, day)
}

func daysSinceLastFailure(day time.Time, failures []time.Time) int {
	last, ok := lastBefore(day, failures)
	if !ok {
		return noEventSentinel
	}
	return sim.DayIndex(last, day)
}

// lastBefore returns the latest date in sorted that is strictly before day.
func lastBefore(day time.Time, sorted []time.Time) (time.Time, bool) {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Before(day) {
			return sorted[i], true
		}
	}
	return time.Time{}, false
}

// failedWithinHorizon reports a failure strictly after day and at most
// labelHorizonDays later. A failure on day itself does not count.
func failedWithinHorizon(day time.Time, failures []time.Time) bool {
	horizon := day.AddDate(0, 0, labelHorizonDays)
	for _, f := range failures {
		if f.After(day) && !f.After(horizon) {
			return true
		}
	}
	return false
}

func latestHealth(dayReadings []telemetry.Reading) float64 {
	if len(dayReadings) == 0 {
		return missingHealthDefault
	}
	return dayReadings[len(dayReadings)-1].HealthScore
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

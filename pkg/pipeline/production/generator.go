// Package production generates the daily production log. Planned runtime
// comes from the line schedule; actual runtime loses the day's maintenance
// downtime plus scheduling slack; scrap jumps on failure days. This is the
// stage that couples the maintenance log into the production facts, so it
// runs after maintenance generation.
package production

import (
	"errors"
	"math"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/maintenance"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	maxSlackHours = 1.5

	scrapBaselineLo = 0.001
	scrapBaselineHi = 0.01
	scrapFailureLo  = 0.05
	scrapFailureHi  = 0.12
	// Failure days scrap at least this many units when anything ran.
	scrapFailureFloor = 20
)

// Record is one asset-day of production.
type Record struct {
	AssetID             string
	ProductionDate      time.Time
	PlannedRuntimeHours float64
	ActualRuntimeHours  float64
	UnitsProduced       int
	UnitsScrapped       int
}

// EventIndex resolves the at-most-one maintenance event per (asset, day).
type EventIndex map[string]maintenance.Event

func indexKey(assetID string, day time.Time) string {
	return assetID + "|" + sim.DateKey(day)
}

// IndexEvents builds the per-day lookup the generator reads downtime and
// failure flags from.
func IndexEvents(events []maintenance.Event) EventIndex {
	idx := make(EventIndex, len(events))
	for _, e := range events {
		idx[indexKey(e.AssetID, e.EventDate)] = e
	}
	return idx
}

type GeneratorConfig struct {
	Catalog *catalog.Catalog
	Seed    int64
}

func (cfg *GeneratorConfig) Validate() error {
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	return nil
}

type Generator struct {
	cat  *catalog.Catalog
	seed int64
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cat: cfg.Catalog, seed: cfg.Seed}, nil
}

// Rate returns the asset's units-per-hour production rate: the catalog value
// when pinned, otherwise a stable hash into [40, 120).
func (g *Generator) Rate(a catalog.Asset) float64 {
	if a.RatePerHour > 0 {
		return float64(a.RatePerHour)
	}
	return float64(sim.HashRange(g.seed, 40, 120, "production/rate", a.ID))
}

// Generate produces one record per asset per day of the window, in catalog
// order.
func (g *Generator) Generate(window sim.Window, events EventIndex) []Record {
	var out []Record
	for _, a := range g.cat.Assets {
		out = append(out, g.GenerateAsset(a, window, events)...)
	}
	return out
}

// GenerateAsset produces the asset's records for the window's days.
func (g *Generator) GenerateAsset(a catalog.Asset, window sim.Window, events EventIndex) []Record {
	if window.IsEmpty() {
		return nil
	}

	planned := g.cat.PlannedHours(a)
	rate := g.Rate(a)

	days := window.Days()
	out := make([]Record, 0, len(days))
	for _, day := range days {
		dateKey := sim.DateKey(day)

		var downtime float64
		var failureDay bool
		if e, ok := events[indexKey(a.ID, day)]; ok {
			downtime = e.DowntimeHours
			failureDay = e.FailureFlag
		}

		slackRng := sim.NewRand(g.seed, "production/slack", a.ID, dateKey)
		actual := planned - downtime - sim.Uniform(slackRng, 0, maxSlackHours)
		if actual < 0 {
			actual = 0
		}
		actual = sim.Round2(actual)

		produced := int(math.Round(rate * actual))

		scrapRng := sim.NewRand(g.seed, "production/scrap", a.ID, dateKey)
		var scrapped int
		if failureDay {
			scrapped = int(math.Round(float64(produced) * sim.Uniform(scrapRng, scrapFailureLo, scrapFailureHi)))
			if produced > 0 && scrapped < scrapFailureFloor {
				scrapped = scrapFailureFloor
			}
		} else {
			scrapped = int(math.Round(float64(produced) * sim.Uniform(scrapRng, scrapBaselineLo, scrapBaselineHi)))
		}
		if scrapped > produced {
			scrapped = produced
		}

		out = append(out, Record{
			AssetID:             a.ID,
			ProductionDate:      day,
			PlannedRuntimeHours: planned,
			ActualRuntimeHours:  actual,
			UnitsProduced:       produced,
			UnitsScrapped:       scrapped,
		})
	}
	return out
}

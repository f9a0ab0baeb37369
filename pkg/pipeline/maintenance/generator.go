// Package maintenance generates the daily maintenance log and the parts
// consumed per event. Events follow a priority-ordered policy evaluated per
// (asset, day): preventive cadence first, then inspection, then predictive,
// then a low-probability emergency. At most one event lands per asset per
// day; the first rule that fires wins.
package maintenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	preventiveCadenceDays = 30
	inspectionCadenceDays = 15
	predictiveCadenceDays = 20

	// DefaultEmergencyRate is the per-asset-day failure probability checked
	// after every cadence rule has passed.
	DefaultEmergencyRate = 0.02
)

// Event is one maintenance work order, completed same-day.
type Event struct {
	AssetID       string
	EventDate     time.Time
	WOType        string
	DowntimeHours float64
	PartsCostUSD  float64
	LaborCostUSD  float64
	FailureFlag   bool
	FailureCode   string
	TechnicianID  string
	Notes         string
}

// band is the per-type draw range for downtime and costs. Labor is downtime
// times an in-band hourly rate, so the two stay consistent.
type band struct {
	downtimeLo, downtimeHi float64
	partsLo, partsHi       float64
	rateLo, rateHi         float64
}

var typeBands = map[string]band{
	catalog.WOEmergency:  {downtimeLo: 4, downtimeHi: 24, partsLo: 500, partsHi: 5000, rateLo: 120, rateHi: 180},
	catalog.WOPreventive: {downtimeLo: 2, downtimeHi: 8, partsLo: 100, partsHi: 800, rateLo: 60, rateHi: 90},
	catalog.WOPredictive: {downtimeLo: 1, downtimeHi: 6, partsLo: 150, partsHi: 1200, rateLo: 70, rateHi: 100},
	catalog.WOInspection: {downtimeLo: 0.5, downtimeHi: 2, partsLo: 0, partsHi: 150, rateLo: 50, rateHi: 70},
}

var noteTemplates = map[string][]string{
	catalog.WOPreventive: {
		"Completed 30-day preventive service on %s. Wear items replaced, tolerances verified.",
		"Scheduled PM for %s. Lubrication points refreshed and guards reinstalled.",
		"Preventive overhaul on %s finished on schedule. No abnormal wear found.",
	},
	catalog.WOInspection: {
		"Routine inspection of %s. All checks within limits.",
		"Walkdown inspection on %s. Minor housekeeping items corrected.",
		"Inspection round for %s complete. Recorded baseline readings.",
	},
	catalog.WOPredictive: {
		"Condition-triggered service on %s. Trend data indicated early wear.",
		"Predictive intervention on %s after vibration trend review.",
		"Addressed developing fault on %s flagged by condition monitoring.",
	},
	catalog.WOEmergency: {
		"Unplanned breakdown on %s. Root cause logged against failure code.",
		"Emergency response for %s. Line stopped until repair completed.",
		"Failure on %s. Parts replaced under breakdown priority.",
	},
}

type GeneratorConfig struct {
	Catalog *catalog.Catalog
	Seed    int64
	// EmergencyRate overrides DefaultEmergencyRate when non-zero.
	EmergencyRate float64
}

func (cfg *GeneratorConfig) Validate() error {
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if len(cfg.Catalog.Technicians) == 0 {
		return errors.New("catalog has no technicians to assign")
	}
	if len(cfg.Catalog.FailureCodes) == 0 {
		return errors.New("catalog has no failure codes to attribute")
	}
	if cfg.EmergencyRate < 0 || cfg.EmergencyRate >= 1 {
		return errors.New("emergency rate must be in [0, 1)")
	}
	return nil
}

type Generator struct {
	cat           *catalog.Catalog
	seed          int64
	emergencyRate float64
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rate := cfg.EmergencyRate
	if rate == 0 {
		rate = DefaultEmergencyRate
	}
	return &Generator{
		cat:           cfg.Catalog,
		seed:          cfg.Seed,
		emergencyRate: rate,
	}, nil
}

// Generate produces events for every asset over the window's days, in
// catalog order. An empty window yields nothing.
func (g *Generator) Generate(window sim.Window) []Event {
	var out []Event
	for _, a := range g.cat.Assets {
		out = append(out, g.GenerateAsset(a, window)...)
	}
	return out
}

// GenerateAsset evaluates the policy for one asset across the window's days.
// Cadence offsets are hashed per asset so the fleet staggers instead of all
// servicing on the same day; day indices count from the window's first day.
func (g *Generator) GenerateAsset(a catalog.Asset, window sim.Window) []Event {
	if window.IsEmpty() {
		return nil
	}

	days := window.Days()
	epoch := days[0]

	preventiveOffset := sim.HashMod(g.seed, preventiveCadenceDays, "maintenance/preventive-offset", a.ID)
	inspectionOffset := sim.HashMod(g.seed, inspectionCadenceDays, "maintenance/inspection-offset", a.ID)
	predictiveOffset := sim.HashMod(g.seed, predictiveCadenceDays, "maintenance/predictive-offset", a.ID)

	var out []Event
	for _, day := range days {
		idx := sim.DayIndex(epoch, day)

		var woType string
		switch {
		case fires(idx, preventiveOffset, preventiveCadenceDays):
			woType = catalog.WOPreventive
		case fires(idx, inspectionOffset, inspectionCadenceDays):
			woType = catalog.WOInspection
		case fires(idx, predictiveOffset, predictiveCadenceDays):
			woType = catalog.WOPredictive
		default:
			emergencyRng := sim.NewRand(g.seed, "maintenance/emergency", a.ID, sim.DateKey(day))
			if emergencyRng.Float64() >= g.emergencyRate {
				continue
			}
			woType = catalog.WOEmergency
		}

		out = append(out, g.buildEvent(a, day, idx, woType))
	}
	return out
}

// fires reports whether a cadence rule triggers on the day. Nothing fires
// before the asset's first scheduled day.
func fires(dayIndex, offset, cadence int) bool {
	return dayIndex >= offset && (dayIndex-offset)%cadence == 0
}

func (g *Generator) buildEvent(a catalog.Asset, day time.Time, dayIndex int, woType string) Event {
	dateKey := sim.DateKey(day)
	b := typeBands[woType]

	downtimeRng := sim.NewRand(g.seed, "maintenance/downtime", a.ID, dateKey)
	downtime := sim.Round2(sim.Uniform(downtimeRng, b.downtimeLo, b.downtimeHi))

	partsRng := sim.NewRand(g.seed, "maintenance/parts-cost", a.ID, dateKey)
	partsCost := sim.Round2(sim.Uniform(partsRng, b.partsLo, b.partsHi))

	rateRng := sim.NewRand(g.seed, "maintenance/labor-rate", a.ID, dateKey)
	laborCost := sim.Round2(downtime * sim.Uniform(rateRng, b.rateLo, b.rateHi))

	failureFlag := woType == catalog.WOEmergency
	var failureCode string
	if failureFlag {
		pick := sim.HashMod(g.seed, len(g.cat.FailureCodes), "maintenance/failure-code", a.ID, dateKey)
		failureCode = g.cat.FailureCodes[pick].Code
	}

	// Rotate through the roster from a per-asset anchor so load spreads
	// evenly across technicians as days advance.
	anchor := sim.HashMod(g.seed, len(g.cat.Technicians), "maintenance/technician", a.ID)
	technician := g.cat.Technicians[(anchor+dayIndex)%len(g.cat.Technicians)]

	templates := noteTemplates[woType]
	pick := sim.HashMod(g.seed, len(templates), "maintenance/notes", a.ID, dateKey)
	notes := fmt.Sprintf(templates[pick], a.Name)

	return Event{
		AssetID:       a.ID,
		EventDate:     day,
		WOType:        woType,
		DowntimeHours: downtime,
		PartsCostUSD:  partsCost,
		LaborCostUSD:  laborCost,
		FailureFlag:   failureFlag,
		FailureCode:   failureCode,
		TechnicianID:  technician.ID,
		Notes:         notes,
	}
}

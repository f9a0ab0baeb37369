package maintenance

import (
	"strconv"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

// PartUsage is one line of the parts ledger for a maintenance event.
type PartUsage struct {
	AssetID      string
	EventDate    time.Time
	LineNo       int
	MaterialName string
	Quantity     int
	UnitCostUSD  float64
	TotalCostUSD float64
}

// partCount is the inclusive line-count range per work order type.
type partCount struct{ lo, hi int }

var typePartCounts = map[string]partCount{
	catalog.WOEmergency:  {2, 5},
	catalog.WOPredictive: {1, 3},
	catalog.WOPreventive: {2, 4},
	catalog.WOInspection: {0, 2},
}

type material struct {
	name     string
	unitCost float64
}

// Material pools by work order type: critical components under breakdown,
// consumables for preventive service, condition parts for predictive,
// sundries for inspections.
var typeMaterials = map[string][]material{
	catalog.WOEmergency: {
		{"Bearing assembly", 420},
		{"Drive motor", 1850},
		{"Hydraulic cylinder", 960},
		{"Control board", 1240},
		{"Coupling", 310},
		{"Shaft seal kit", 180},
	},
	catalog.WOPreventive: {
		{"Oil filter", 24},
		{"Air filter", 32},
		{"Grease cartridge", 11},
		{"Hydraulic oil (20L)", 95},
		{"Drive belt", 68},
		{"Gasket set", 42},
	},
	catalog.WOPredictive: {
		{"Bearing", 210},
		{"Vibration damper", 130},
		{"Alignment shim kit", 55},
		{"Belt tensioner", 88},
		{"Proximity sensor", 145},
	},
	catalog.WOInspection: {
		{"Fastener pack", 8},
		{"Lubricant spray", 12},
		{"Inspection tags", 5},
		{"Cleaning kit", 15},
	},
}

// GenerateParts emits the parts ledger for the events. Line totals are
// quantity times a jittered unit cost; the event's own parts_cost_usd stays
// an independent estimate and is not reconciled against the ledger sum.
func (g *Generator) GenerateParts(events []Event) []PartUsage {
	var out []PartUsage
	for _, e := range events {
		out = append(out, g.partsForEvent(e)...)
	}
	return out
}

func (g *Generator) partsForEvent(e Event) []PartUsage {
	dateKey := sim.DateKey(e.EventDate)
	bounds := typePartCounts[e.WOType]
	pool := typeMaterials[e.WOType]
	if len(pool) == 0 {
		return nil
	}

	countRng := sim.NewRand(g.seed, "maintenance/parts-count", e.AssetID, dateKey)
	count := bounds.lo + countRng.Intn(bounds.hi-bounds.lo+1)

	lines := make([]PartUsage, 0, count)
	for i := 1; i <= count; i++ {
		lineKey := strconv.Itoa(i)
		pick := sim.HashMod(g.seed, len(pool), "maintenance/material", e.AssetID, dateKey, lineKey)
		m := pool[pick]

		lineRng := sim.NewRand(g.seed, "maintenance/parts-line", e.AssetID, dateKey, lineKey)
		quantity := 1 + lineRng.Intn(4)
		unitCost := sim.Round2(m.unitCost * sim.Uniform(lineRng, 0.9, 1.1))

		lines = append(lines, PartUsage{
			AssetID:      e.AssetID,
			EventDate:    e.EventDate,
			LineNo:       i,
			MaterialName: m.name,
			Quantity:     quantity,
			UnitCostUSD:  unitCost,
			TotalCostUSD: sim.Round2(float64(quantity) * unitCost),
		})
	}
	return lines
}

// Package features derives the curated analytics surfaces from the raw
// facts: the hourly health rollup and the daily ML feature rows with their
// 7-day-forward failure label. Everything here is a pure recomputation over
// its inputs; re-running a window replaces what the window previously held.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/pipeline/telemetry"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

// HourlyHealth is one (asset, hour) rollup row.
type HourlyHealth struct {
	AssetID               string
	HourTS                time.Time
	AvgTemperatureC       float64
	MaxVibrationMMS       float64
	StddevPressurePSI     *float64
	LatestHealthScore     float64
	AvgFailureProbability float64
	MinRULDays            int
}

// BuildHourlyHealth rolls readings up per (asset, hour). Pressure stddev is
// null-safe: hours with no pressure readings carry NULL, never a zero fill.
// Output is sorted by asset then hour.
func BuildHourlyHealth(readings []telemetry.Reading) []HourlyHealth {
	type group struct {
		temps     []float64
		vibs      []float64
		pressures []float64
		healths   []float64
		probs     []float64
		ruls      []int
	}

	groups := map[string]map[time.Time]*group{}
	for _, r := range readings {
		hour := r.RecordedAt.UTC().Truncate(time.Hour)
		byHour := groups[r.AssetID]
		if byHour == nil {
			byHour = map[time.Time]*group{}
			groups[r.AssetID] = byHour
		}
		g := byHour[hour]
		if g == nil {
			g = &group{}
			byHour[hour] = g
		}
		g.temps = append(g.temps, r.TemperatureC)
		g.vibs = append(g.vibs, r.VibrationMMS)
		if r.PressurePSI != nil {
			g.pressures = append(g.pressures, *r.PressurePSI)
		}
		g.healths = append(g.healths, r.HealthScore)
		g.probs = append(g.probs, r.FailureProbability)
		g.ruls = append(g.ruls, r.RULDays)
	}

	assetIDs := make([]string, 0, len(groups))
	for id := range groups {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	var out []HourlyHealth
	for _, id := range assetIDs {
		byHour := groups[id]
		hours := make([]time.Time, 0, len(byHour))
		for h := range byHour {
			hours = append(hours, h)
		}
		sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

		for _, h := range hours {
			g := byHour[h]
			row := HourlyHealth{
				AssetID:               id,
				HourTS:                h,
				AvgTemperatureC:       sim.Round2(mean(g.temps)),
				MaxVibrationMMS:       maxOf(g.vibs),
				LatestHealthScore:     maxOf(g.healths),
				AvgFailureProbability: sim.Round2(mean(g.probs)),
				MinRULDays:            minInt(g.ruls),
			}
			if len(g.pressures) > 0 {
				sd := sim.Round2(stddev(g.pressures))
				row.StddevPressurePSI = &sd
			}
			out = append(out, row)
		}
	}
	return out
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minInt(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// stddev is the population standard deviation; a single reading yields 0.
func stddev(vs []float64) float64 {
	m := mean(vs)
	var sum float64
	for _, v := range vs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vs)))
}

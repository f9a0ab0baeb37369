// Package telemetry generates the hourly sensor readings for the fleet:
// temperature, vibration, and pressure with modeled degradation, plus the
// derived health score, failure probability, remaining-useful-life estimate,
// and anomaly flag. One row per (asset, hour), no gaps, fully determined by
// the master seed.
package telemetry

import (
	"errors"
	"math"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const (
	// Anomaly thresholds. Vibration applies to rotating equipment only.
	healthAnomalyThreshold    = 55.0
	vibrationAnomalyThreshold = 7.0

	// Failure probability is coupled to health, not drawn independently.
	probabilityFloor = 0.01
	probabilityCeil  = 0.95

	// DefaultHealthFloor is the lowest health score the model emits. Assets
	// bottom out rather than decaying to zero; the emergency path is what
	// takes them offline.
	DefaultHealthFloor = 20.0
)

// Reading is one hourly telemetry row for one asset.
type Reading struct {
	AssetID            string
	RecordedAt         time.Time
	TemperatureC       float64
	VibrationMMS       float64
	PressurePSI        *float64
	HealthScore        float64
	FailureProbability float64
	RULDays            int
	IsAnomalous        bool
}

// Diagnostics counts the model edges that fired while generating. The
// pipeline surfaces them per run; a sudden jump usually means a profile or
// floor was misconfigured.
type Diagnostics struct {
	HealthClamps      int
	ProbabilityClamps int
	RULFloors         int
}

func (d *Diagnostics) Add(other Diagnostics) {
	d.HealthClamps += other.HealthClamps
	d.ProbabilityClamps += other.ProbabilityClamps
	d.RULFloors += other.RULFloors
}

// profile holds the class-level signal shape. Temperature follows an intraday
// sinusoid plus a slow per-day drift; vibration drifts only on rotating
// equipment.
type profile struct {
	baseTemp      float64
	tempAmplitude float64
	tempDriftDay  float64
	tempNoise     float64
	baseVibration float64
	vibDriftDay   float64
	vibNoise      float64
}

var classProfiles = map[catalog.AssetClass]profile{
	catalog.ClassRotating: {
		baseTemp: 68, tempAmplitude: 6, tempDriftDay: 0.05, tempNoise: 1.5,
		baseVibration: 3.2, vibDriftDay: 0.02, vibNoise: 0.8,
	},
	catalog.ClassStatic: {
		baseTemp: 52, tempAmplitude: 3, tempDriftDay: 0.03, tempNoise: 1.0,
		baseVibration: 0.6, vibNoise: 0.3,
	},
	catalog.ClassElectrical: {
		baseTemp: 47, tempAmplitude: 4, tempDriftDay: 0.03, tempNoise: 1.2,
		baseVibration: 0.9, vibNoise: 0.3,
	},
	catalog.ClassControl: {
		baseTemp: 38, tempAmplitude: 2, tempDriftDay: 0.01, tempNoise: 0.8,
		baseVibration: 0.3, vibNoise: 0.15,
	},
}

// furnaceProfile overrides temperature for the designated furnace asset. It
// runs far above every class baseline; vibration still follows the class.
var furnaceProfile = profile{
	baseTemp: 310, tempAmplitude: 14, tempDriftDay: 0.2, tempNoise: 5,
}

func profileFor(a catalog.Asset) profile {
	p := classProfiles[a.Class]
	if a.Furnace {
		f := furnaceProfile
		f.baseVibration = p.baseVibration
		f.vibDriftDay = p.vibDriftDay
		f.vibNoise = p.vibNoise
		return f
	}
	return p
}

type GeneratorConfig struct {
	Catalog *catalog.Catalog
	Seed    int64
	// HealthFloor overrides DefaultHealthFloor when non-zero.
	HealthFloor float64
}

func (cfg *GeneratorConfig) Validate() error {
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if cfg.HealthFloor < 0 || cfg.HealthFloor >= 100 {
		return errors.New("health floor must be in [0, 100)")
	}
	return nil
}

type Generator struct {
	cat         *catalog.Catalog
	seed        int64
	healthFloor float64
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	floor := cfg.HealthFloor
	if floor == 0 {
		floor = DefaultHealthFloor
	}
	return &Generator{
		cat:         cfg.Catalog,
		seed:        cfg.Seed,
		healthFloor: floor,
	}, nil
}

// Generate produces readings for every asset in the catalog over the window,
// in catalog order. An empty window yields nothing.
func (g *Generator) Generate(window sim.Window) ([]Reading, Diagnostics) {
	var out []Reading
	var diag Diagnostics
	for _, a := range g.cat.Assets {
		readings, d := g.GenerateAsset(a, window)
		out = append(out, readings...)
		diag.Add(d)
	}
	return out, diag
}

// GenerateAsset produces one reading per hour of the window for a single
// asset. Every random draw is keyed by (seed, salt, asset, hour), so the
// result does not depend on which worker generates which asset.
func (g *Generator) GenerateAsset(a catalog.Asset, window sim.Window) ([]Reading, Diagnostics) {
	var diag Diagnostics
	if window.IsEmpty() {
		return nil, diag
	}

	p := profileFor(a)
	hasPressure := g.cat.HasPressureSensor(a.ID)
	pressureBase := float64(sim.HashRange(g.seed, 80, 120, "telemetry/pressure-base", a.ID))
	severity := 0.85 + float64(sim.HashMod(g.seed, 40, "telemetry/severity", a.ID))/100
	rulBase := sim.HashRange(g.seed, 120, 360, "telemetry/rul-base", a.ID)

	hours := window.Hours()
	readings := make([]Reading, 0, len(hours))
	for _, h := range hours {
		key := sim.HourKey(h)
		days := float64(int(h.Sub(window.Start).Hours()) / 24)
		hourOfDay := float64(h.Hour())

		tempRng := sim.NewRand(g.seed, "telemetry/temperature", a.ID, key)
		temp := p.baseTemp +
			p.tempAmplitude*math.Sin(2*math.Pi*hourOfDay/24) +
			p.tempDriftDay*days +
			sim.Uniform(tempRng, -p.tempNoise, p.tempNoise)

		vibRng := sim.NewRand(g.seed, "telemetry/vibration", a.ID, key)
		vib := p.baseVibration +
			p.vibDriftDay*days +
			sim.Uniform(vibRng, -p.vibNoise, p.vibNoise)
		if vib < 0 {
			vib = 0
		}

		var pressure *float64
		if hasPressure {
			presRng := sim.NewRand(g.seed, "telemetry/pressure", a.ID, key)
			v := sim.Round2(pressureBase + sim.Uniform(presRng, -4, 4))
			pressure = &v
		}

		healthRng := sim.NewRand(g.seed, "telemetry/health", a.ID, key)
		penalty := 0.30*days + 0.05*hourOfDay + sim.Uniform(healthRng, -2, 2)
		health := 100 - penalty*severity
		if health < g.healthFloor {
			health = g.healthFloor
			diag.HealthClamps++
		} else if health > 100 {
			health = 100
			diag.HealthClamps++
		}
		health = sim.Round2(health)

		prob := (100 - health) / 100
		if prob < probabilityFloor {
			prob = probabilityFloor
			diag.ProbabilityClamps++
		} else if prob > probabilityCeil {
			prob = probabilityCeil
			diag.ProbabilityClamps++
		}
		prob = sim.Round2(prob)

		rul := rulBase - int(days)
		if rul < 1 {
			rul = 1
			diag.RULFloors++
		}

		temp = sim.Round2(temp)
		vib = sim.Round2(vib)

		readings = append(readings, Reading{
			AssetID:            a.ID,
			RecordedAt:         h,
			TemperatureC:       temp,
			VibrationMMS:       vib,
			PressurePSI:        pressure,
			HealthScore:        health,
			FailureProbability: prob,
			RULDays:            rul,
			IsAnomalous:        health < healthAnomalyThreshold || (a.Rotating() && vib > vibrationAnomalyThreshold),
		})
	}
	return readings, diag
}

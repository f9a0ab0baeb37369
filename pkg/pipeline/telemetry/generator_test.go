package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

func testCatalog() *catalog.Catalog {
	assets := []catalog.Asset{
		{
			ID: "PRESS-001", Name: "Press", Model: "SM-9000", OEMName: "Schuler",
			InstallationDate: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
			DowntimeImpactPerHour: 1200, Class: catalog.ClassRotating,
			ProcessName: "Stamping", LineName: "Line A", PlantName: "Davidson",
		},
		{
			ID: "FURN-001", Name: "Furnace", Model: "TF-500", OEMName: "Tenova",
			InstallationDate: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
			DowntimeImpactPerHour: 2200, Class: catalog.ClassStatic, Furnace: true,
			ProcessName: "Heat Treatment", LineName: "Line B", PlantName: "Davidson",
		},
		{
			ID: "CTRL-001", Name: "PLC", Model: "CL-5580", OEMName: "Rockwell",
			InstallationDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			DowntimeImpactPerHour: 350, Class: catalog.ClassControl,
			ProcessName: "Packaging", LineName: "Line C", PlantName: "Charlotte",
		},
	}
	sensors := []catalog.Sensor{
		{ID: "PRESS-001-TEMP", AssetID: "PRESS-001", Type: catalog.SensorTemperature, Units: "celsius"},
		{ID: "PRESS-001-VIB", AssetID: "PRESS-001", Type: catalog.SensorVibration, Units: "mm/s"},
		{ID: "PRESS-001-PRES", AssetID: "PRESS-001", Type: catalog.SensorPressure, Units: "psi"},
		{ID: "FURN-001-TEMP", AssetID: "FURN-001", Type: catalog.SensorTemperature, Units: "celsius"},
		{ID: "FURN-001-VIB", AssetID: "FURN-001", Type: catalog.SensorVibration, Units: "mm/s"},
		{ID: "CTRL-001-TEMP", AssetID: "CTRL-001", Type: catalog.SensorTemperature, Units: "celsius"},
		{ID: "CTRL-001-VIB", AssetID: "CTRL-001", Type: catalog.SensorVibration, Units: "mm/s"},
	}
	return &catalog.Catalog{
		Assets:  assets,
		Sensors: sensors,
		LineSchedules: map[string]catalog.LineSchedule{
			"Line A": catalog.ScheduleStandard,
			"Line B": catalog.ScheduleContinuous,
			"Line C": catalog.ScheduleBatch,
		},
	}
}

func testGenerator(t *testing.T, seed int64) *Generator {
	t.Helper()
	gen, err := NewGenerator(GeneratorConfig{Catalog: testCatalog(), Seed: seed})
	require.NoError(t, err)
	return gen
}

func hasTwoDecimals(v float64) bool {
	return v == sim.Round2(v)
}

func TestTelemetry_Generator(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("one_reading_per_asset_per_hour", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(71*time.Hour))

		readings, _ := gen.Generate(window)
		require.Len(t, readings, 3*72)

		seen := map[string]bool{}
		for _, r := range readings {
			key := r.AssetID + "|" + r.RecordedAt.Format(time.RFC3339)
			require.False(t, seen[key], "duplicate reading %s", key)
			seen[key] = true
			require.False(t, r.RecordedAt.Before(window.Start))
			require.False(t, r.RecordedAt.After(window.End))
		}
	})

	t.Run("deterministic_for_a_seed", func(t *testing.T) {
		t.Parallel()
		window := sim.NewWindow(start, start.Add(47*time.Hour))

		first, firstDiag := testGenerator(t, 42).Generate(window)
		second, secondDiag := testGenerator(t, 42).Generate(window)
		require.Equal(t, first, second)
		require.Equal(t, firstDiag, secondDiag)

		other, _ := testGenerator(t, 43).Generate(window)
		require.NotEqual(t, first, other)
	})

	t.Run("per_asset_generation_matches_fleet_generation", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(23*time.Hour))

		all, _ := gen.Generate(window)

		cat := testCatalog()
		var stitched []Reading
		// Reverse asset order on purpose; per-draw seeding should not care.
		for i := len(cat.Assets) - 1; i >= 0; i-- {
			readings, _ := gen.GenerateAsset(cat.Assets[i], window)
			stitched = append(stitched, readings...)
		}
		require.ElementsMatch(t, all, stitched)
	})

	t.Run("pressure_only_with_a_pressure_sensor", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(23*time.Hour))

		readings, _ := gen.Generate(window)
		for _, r := range readings {
			switch r.AssetID {
			case "PRESS-001":
				require.NotNil(t, r.PressurePSI, "press should report pressure")
			case "CTRL-001":
				require.Nil(t, r.PressurePSI, "plc has no pressure sensor")
			}
		}
	})

	t.Run("furnace_runs_far_hotter", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(23*time.Hour))

		readings, _ := gen.Generate(window)
		for _, r := range readings {
			if r.AssetID == "FURN-001" {
				require.Greater(t, r.TemperatureC, 250.0)
			} else {
				require.Less(t, r.TemperatureC, 120.0)
			}
		}
	})

	t.Run("health_declines_and_probability_tracks_it", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.AddDate(0, 0, 90).Add(23*time.Hour))

		readings, _ := gen.Generate(window)
		var earlySum, lateSum float64
		var earlyN, lateN int
		for _, r := range readings {
			require.GreaterOrEqual(t, r.HealthScore, DefaultHealthFloor)
			require.LessOrEqual(t, r.HealthScore, 100.0)

			expected := (100 - r.HealthScore) / 100
			if expected < probabilityFloor {
				expected = probabilityFloor
			}
			require.Equal(t, sim.Round2(expected), r.FailureProbability)

			day := int(r.RecordedAt.Sub(window.Start).Hours()) / 24
			switch {
			case day < 7:
				earlySum += r.HealthScore
				earlyN++
			case day >= 84:
				lateSum += r.HealthScore
				lateN++
			}
		}
		require.Greater(t, earlySum/float64(earlyN), lateSum/float64(lateN)+10,
			"health should decline materially over 90 days")
	})

	t.Run("rul_is_non_increasing_and_floors_at_one", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.AddDate(0, 0, 400))

		cat := testCatalog()
		readings, diag := gen.GenerateAsset(cat.Assets[0], window)
		prev := readings[0].RULDays
		floored := false
		for _, r := range readings {
			require.GreaterOrEqual(t, r.RULDays, 1)
			require.LessOrEqual(t, r.RULDays, prev)
			prev = r.RULDays
			if r.RULDays == 1 {
				floored = true
			}
		}
		require.True(t, floored, "400 days should exhaust every RUL base")
		require.Positive(t, diag.RULFloors)
	})

	t.Run("anomaly_flag_matches_the_rule", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.AddDate(0, 0, 180).Add(23*time.Hour))

		cat := testCatalog()
		var anomalies int
		for _, a := range cat.Assets {
			readings, _ := gen.GenerateAsset(a, window)
			for _, r := range readings {
				expected := r.HealthScore < healthAnomalyThreshold ||
					(a.Rotating() && r.VibrationMMS > vibrationAnomalyThreshold)
				require.Equal(t, expected, r.IsAnomalous)
				if r.IsAnomalous {
					anomalies++
				}
			}
		}
		require.Positive(t, anomalies, "a 180-day window should degrade into anomalies")
	})

	t.Run("readings_round_to_two_decimals", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(23*time.Hour))

		readings, _ := gen.Generate(window)
		for _, r := range readings {
			require.True(t, hasTwoDecimals(r.TemperatureC), "temperature %v", r.TemperatureC)
			require.True(t, hasTwoDecimals(r.VibrationMMS), "vibration %v", r.VibrationMMS)
			require.True(t, hasTwoDecimals(r.HealthScore), "health %v", r.HealthScore)
			require.True(t, hasTwoDecimals(r.FailureProbability), "probability %v", r.FailureProbability)
			if r.PressurePSI != nil {
				require.True(t, hasTwoDecimals(*r.PressurePSI), "pressure %v", *r.PressurePSI)
			}
		}
	})

	t.Run("empty_window_is_a_noop", func(t *testing.T) {
		t.Parallel()
		gen := testGenerator(t, 42)
		window := sim.NewWindow(start, start.Add(-time.Hour))

		readings, diag := gen.Generate(window)
		require.Empty(t, readings)
		require.Equal(t, Diagnostics{}, diag)
	})

	t.Run("health_floor_is_configurable_and_counted", func(t *testing.T) {
		t.Parallel()
		gen, err := NewGenerator(GeneratorConfig{Catalog: testCatalog(), Seed: 42, HealthFloor: 90})
		require.NoError(t, err)
		window := sim.NewWindow(start, start.AddDate(0, 0, 60))

		readings, diag := gen.Generate(window)
		for _, r := range readings {
			require.GreaterOrEqual(t, r.HealthScore, 90.0)
		}
		require.Positive(t, diag.HealthClamps)
	})

	t.Run("rejects_missing_catalog", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(GeneratorConfig{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "catalog is required")
	})
}

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Catalog is one coherent fleet definition. Load a custom one from JSON or
// start from DefaultFleet.
type Catalog struct {
	Assets         []Asset                 `json:"assets"`
	Sensors        []Sensor                `json:"sensors"`
	Technicians    []Technician            `json:"technicians"`
	WorkOrderTypes []WorkOrderType         `json:"work_order_types"`
	FailureCodes   []FailureCode           `json:"failure_codes"`
	LineSchedules  map[string]LineSchedule `json:"line_schedules"`
}

// Load reads a fleet definition from a JSON file and validates it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Validate checks internal consistency: unique ids, resolvable references,
// valid classes, and a schedule for every line.
func (c *Catalog) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("catalog has no assets")
	}
	if len(c.Technicians) == 0 {
		return fmt.Errorf("catalog has no technicians")
	}
	if len(c.FailureCodes) == 0 {
		return fmt.Errorf("catalog has no failure codes")
	}
	if len(c.WorkOrderTypes) == 0 {
		return fmt.Errorf("catalog has no work order types")
	}

	validClass := make(map[AssetClass]bool, len(AssetClasses))
	for _, class := range AssetClasses {
		validClass[class] = true
	}

	assetIDs := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.ID == "" {
			return fmt.Errorf("asset with empty id")
		}
		if assetIDs[a.ID] {
			return fmt.Errorf("duplicate asset id %s", a.ID)
		}
		assetIDs[a.ID] = true
		if !validClass[a.Class] {
			return fmt.Errorf("asset %s has invalid class %q", a.ID, a.Class)
		}
		if a.LineName == "" {
			return fmt.Errorf("asset %s has no line", a.ID)
		}
		schedule, ok := c.LineSchedules[a.LineName]
		if !ok {
			return fmt.Errorf("line %q (asset %s) has no schedule", a.LineName, a.ID)
		}
		if schedule.PlannedHours() == 0 {
			return fmt.Errorf("line %q has invalid schedule %q", a.LineName, schedule)
		}
		if a.DowntimeImpactPerHour <= 0 {
			return fmt.Errorf("asset %s has non-positive downtime impact", a.ID)
		}
	}

	sensorIDs := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if sensorIDs[s.ID] {
			return fmt.Errorf("duplicate sensor id %s", s.ID)
		}
		sensorIDs[s.ID] = true
		if !assetIDs[s.AssetID] {
			return fmt.Errorf("sensor %s references unknown asset %s", s.ID, s.AssetID)
		}
		switch s.Type {
		case SensorTemperature, SensorVibration, SensorPressure:
		default:
			return fmt.Errorf("sensor %s has invalid type %q", s.ID, s.Type)
		}
	}

	woTypes := make(map[string]bool, len(c.WorkOrderTypes))
	for _, wo := range c.WorkOrderTypes {
		if woTypes[wo.Type] {
			return fmt.Errorf("duplicate work order type %s", wo.Type)
		}
		woTypes[wo.Type] = true
	}
	for _, required := range []string{WOPreventive, WOInspection, WOPredictive, WOEmergency} {
		if !woTypes[required] {
			return fmt.Errorf("work order type %s is missing", required)
		}
	}

	return nil
}

// Asset returns the asset by id.
func (c *Catalog) Asset(id string) (Asset, bool) {
	for _, a := range c.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// HasPressureSensor reports whether the asset reports pressure. Assets
// without one persist NULL pressure, never zero.
func (c *Catalog) HasPressureSensor(assetID string) bool {
	for _, s := range c.Sensors {
		if s.AssetID == assetID && s.Type == SensorPressure {
			return true
		}
	}
	return false
}

// SensorsFor returns the sensors mounted on the asset.
func (c *Catalog) SensorsFor(assetID string) []Sensor {
	var out []Sensor
	for _, s := range c.Sensors {
		if s.AssetID == assetID {
			out = append(out, s)
		}
	}
	return out
}

// PlannedHours returns the asset's daily planned runtime from its line
// schedule.
func (c *Catalog) PlannedHours(a Asset) float64 {
	return c.LineSchedules[a.LineName].PlannedHours()
}

// Package catalog is the static registry of the simulated fleet: assets and
// their line/plant membership, mounted sensors, technicians, work order
// taxonomy, and failure modes. Every generator reads from it; nothing writes
// to it during a run.
package catalog

import "time"

// AssetClass drives the telemetry profile: baselines, vibration behavior, and
// the anomaly rules.
type AssetClass string

const (
	ClassRotating   AssetClass = "ROTATING"
	ClassStatic     AssetClass = "STATIC"
	ClassElectrical AssetClass = "ELECTRICAL"
	ClassControl    AssetClass = "CONTROL"
)

// AssetClasses lists the valid classes.
var AssetClasses = []AssetClass{ClassRotating, ClassStatic, ClassElectrical, ClassControl}

type SensorType string

const (
	SensorTemperature SensorType = "TEMPERATURE"
	SensorVibration   SensorType = "VIBRATION"
	SensorPressure    SensorType = "PRESSURE"
)

// LineSchedule is the planned-runtime band a production line runs on.
type LineSchedule string

const (
	ScheduleContinuous LineSchedule = "CONTINUOUS" // 24h
	ScheduleStandard   LineSchedule = "STANDARD"   // 20h
	ScheduleBatch      LineSchedule = "BATCH"      // 18h
)

// PlannedHours returns the daily planned runtime for the schedule.
func (s LineSchedule) PlannedHours() float64 {
	switch s {
	case ScheduleContinuous:
		return 24
	case ScheduleStandard:
		return 20
	case ScheduleBatch:
		return 18
	default:
		return 0
	}
}

// Work order types in policy priority order. The maintenance generator
// evaluates them top to bottom; the first rule that fires wins the day.
const (
	WOPreventive = "PREVENTIVE"
	WOInspection = "INSPECTION"
	WOPredictive = "PREDICTIVE"
	WOEmergency  = "EMERGENCY"
)

type Asset struct {
	ID                    string     `json:"asset_id"`
	Name                  string     `json:"asset_name"`
	Model                 string     `json:"model"`
	OEMName               string     `json:"oem_name"`
	InstallationDate      time.Time  `json:"installation_date"`
	DowntimeImpactPerHour float64    `json:"downtime_impact_per_hour"`
	Class                 AssetClass `json:"asset_class"`
	ProcessName           string     `json:"process_name"`
	LineName              string     `json:"line_name"`
	PlantName             string     `json:"plant_name"`

	// Furnace marks the designated hot asset: its temperature baseline sits
	// far above its class profile.
	Furnace bool `json:"furnace,omitempty"`

	// RatePerHour is the asset's production rate in units/hour. Zero means
	// derive one deterministically from the asset id.
	RatePerHour int `json:"rate_per_hour,omitempty"`
}

// Rotating reports whether the asset follows the rotating-equipment profile:
// elevated vibration baseline with drift, and the vibration anomaly rule.
func (a Asset) Rotating() bool {
	return a.Class == ClassRotating
}

type Sensor struct {
	ID      string     `json:"sensor_id"`
	AssetID string     `json:"asset_id"`
	Type    SensorType `json:"sensor_type"`
	Units   string     `json:"units"`
}

type Technician struct {
	ID    string `json:"technician_id"`
	Name  string `json:"technician_name"`
	Shift string `json:"shift"`
}

type WorkOrderType struct {
	Type        string `json:"wo_type"`
	Description string `json:"description"`
	IsPlanned   bool   `json:"is_planned"`
}

type FailureCode struct {
	Code        string `json:"failure_code"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
}

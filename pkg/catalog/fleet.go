package catalog

import "time"

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DefaultFleet is the 12-asset demo fleet across the Davidson and Charlotte
// plants. Every asset class, line schedule, and sensor mix appears at least
// once, so a default run exercises the full model.
func DefaultFleet() *Catalog {
	assets := []Asset{
		{
			ID: "PRESS-001", Name: "Stamping Press 1", Model: "StampMaster 9000", OEMName: "Schuler",
			InstallationDate: date(2016, time.March, 14), DowntimeImpactPerHour: 1200,
			Class: ClassRotating, ProcessName: "Stamping", LineName: "Stamping Line 1", PlantName: "Davidson",
		},
		{
			ID: "PRESS-002", Name: "Stamping Press 2", Model: "StampMaster 9000", OEMName: "Schuler",
			InstallationDate: date(2018, time.July, 2), DowntimeImpactPerHour: 1150,
			Class: ClassRotating, ProcessName: "Stamping", LineName: "Stamping Line 1", PlantName: "Davidson",
		},
		{
			ID: "CNC-001", Name: "CNC Mill 1", Model: "PrecisionMill X2", OEMName: "Haas",
			InstallationDate: date(2019, time.January, 21), DowntimeImpactPerHour: 950,
			Class: ClassRotating, ProcessName: "Machining", LineName: "Machining Line 1", PlantName: "Davidson",
		},
		{
			ID: "CNC-002", Name: "CNC Mill 2", Model: "PrecisionMill X2", OEMName: "Haas",
			InstallationDate: date(2019, time.February, 11), DowntimeImpactPerHour: 900,
			Class: ClassRotating, ProcessName: "Machining", LineName: "Machining Line 1", PlantName: "Davidson",
		},
		{
			ID: "CNC-003", Name: "CNC Lathe 1", Model: "TurnPro 450", OEMName: "Okuma",
			InstallationDate: date(2021, time.June, 8), DowntimeImpactPerHour: 925,
			Class: ClassRotating, ProcessName: "Machining", LineName: "Machining Line 1", PlantName: "Davidson",
		},
		{
			ID: "ROBO-001", Name: "Weld Robot 1", Model: "WeldArm Pro", OEMName: "Fanuc",
			InstallationDate: date(2020, time.October, 5), DowntimeImpactPerHour: 800,
			Class: ClassElectrical, ProcessName: "Welding", LineName: "Assembly Line 1", PlantName: "Davidson",
		},
		{
			ID: "ROBO-002", Name: "Weld Robot 2", Model: "WeldArm Pro", OEMName: "Fanuc",
			InstallationDate: date(2020, time.October, 5), DowntimeImpactPerHour: 780,
			Class: ClassElectrical, ProcessName: "Welding", LineName: "Assembly Line 1", PlantName: "Davidson",
		},
		{
			ID: "FURN-001", Name: "Heat Treat Furnace", Model: "ThermoForge 500", OEMName: "Tenova",
			InstallationDate: date(2015, time.April, 30), DowntimeImpactPerHour: 2200,
			Class: ClassStatic, ProcessName: "Heat Treatment", LineName: "Heat Treat Line", PlantName: "Davidson",
			Furnace: true,
		},
		{
			ID: "PUMP-001", Name: "Coolant Pump 1", Model: "FlowMax 220", OEMName: "Grundfos",
			InstallationDate: date(2017, time.September, 19), DowntimeImpactPerHour: 600,
			Class: ClassRotating, ProcessName: "Coolant Supply", LineName: "Utilities", PlantName: "Charlotte",
		},
		{
			ID: "PUMP-002", Name: "Hydraulic Pump 1", Model: "FlowMax 340", OEMName: "Grundfos",
			InstallationDate: date(2022, time.March, 3), DowntimeImpactPerHour: 580,
			Class: ClassRotating, ProcessName: "Hydraulics", LineName: "Utilities", PlantName: "Charlotte",
		},
		{
			ID: "CONV-001", Name: "Packout Conveyor", Model: "BeltRunner 80", OEMName: "Dematic",
			InstallationDate: date(2016, time.November, 23), DowntimeImpactPerHour: 450,
			Class: ClassStatic, ProcessName: "Packaging", LineName: "Packaging Line 1", PlantName: "Charlotte",
		},
		{
			ID: "CTRL-001", Name: "Line PLC Cabinet", Model: "ControlLogix 5580", OEMName: "Rockwell",
			InstallationDate: date(2023, time.May, 16), DowntimeImpactPerHour: 350,
			Class: ClassControl, ProcessName: "Packaging", LineName: "Packaging Line 1", PlantName: "Charlotte",
		},
	}

	// Temperature and vibration everywhere; pressure only where a circuit
	// exists (presses, pumps, furnace).
	pressureAssets := map[string]bool{
		"PRESS-001": true, "PRESS-002": true,
		"PUMP-001": true, "PUMP-002": true,
		"FURN-001": true,
	}
	var sensors []Sensor
	for _, a := range assets {
		sensors = append(sensors,
			Sensor{ID: a.ID + "-TEMP", AssetID: a.ID, Type: SensorTemperature, Units: "celsius"},
			Sensor{ID: a.ID + "-VIB", AssetID: a.ID, Type: SensorVibration, Units: "mm/s"},
		)
		if pressureAssets[a.ID] {
			sensors = append(sensors, Sensor{ID: a.ID + "-PRES", AssetID: a.ID, Type: SensorPressure, Units: "psi"})
		}
	}

	return &Catalog{
		Assets:  assets,
		Sensors: sensors,
		Technicians: []Technician{
			{ID: "TECH-001", Name: "Maria Alvarez", Shift: "DAY"},
			{ID: "TECH-002", Name: "Dwayne Carter", Shift: "DAY"},
			{ID: "TECH-003", Name: "Priya Raman", Shift: "SWING"},
			{ID: "TECH-004", Name: "Tom Kowalski", Shift: "SWING"},
			{ID: "TECH-005", Name: "Lena Fischer", Shift: "NIGHT"},
			{ID: "TECH-006", Name: "Sam Okafor", Shift: "NIGHT"},
		},
		WorkOrderTypes: []WorkOrderType{
			{Type: WOPreventive, Description: "Scheduled preventive service", IsPlanned: true},
			{Type: WOInspection, Description: "Routine inspection round", IsPlanned: true},
			{Type: WOPredictive, Description: "Condition-triggered intervention", IsPlanned: true},
			{Type: WOEmergency, Description: "Unplanned failure response", IsPlanned: false},
		},
		FailureCodes: []FailureCode{
			{Code: "BRG-SEIZE", Description: "Bearing seizure", Severity: 5},
			{Code: "MTR-BURN", Description: "Motor winding burnout", Severity: 4},
			{Code: "HYD-LEAK", Description: "Hydraulic line leak", Severity: 3},
			{Code: "ELEC-SHORT", Description: "Electrical short circuit", Severity: 4},
			{Code: "CTRL-FAULT", Description: "Controller fault", Severity: 2},
			{Code: "BELT-SNAP", Description: "Drive belt failure", Severity: 3},
		},
		LineSchedules: map[string]LineSchedule{
			"Stamping Line 1":  ScheduleStandard,
			"Machining Line 1": ScheduleBatch,
			"Assembly Line 1":  ScheduleStandard,
			"Heat Treat Line":  ScheduleContinuous,
			"Utilities":        ScheduleContinuous,
			"Packaging Line 1": ScheduleBatch,
		},
	}
}

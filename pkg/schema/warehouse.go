package schema

// Warehouse describes every table forgelake maintains. Dimensions are SCD2
// full-snapshot tables; facts are replaced by simulation window; the agg_ and
// ml_ tables are curated outputs recomputed from the facts each run.
var Warehouse = &Schema{
	Name: "forgelake-warehouse",
	Description: `
Predictive-maintenance warehouse for the HyperForge asset fleet.

CONVENTIONS:
- All timestamps are UTC. Telemetry is hourly, on the hour.
- Dimensions are SCD2: query <name>_current for the live fleet, <name>_history
  (valid_from, valid_to, is_current, op) for point-in-time reconstruction.
- Facts carry one row per grain: (asset_id, recorded_at) for telemetry,
  (asset_id, event_date) for maintenance, (asset_id, event_date, line_no) for
  parts, (asset_id, production_date) for production.
- Readings round to 2 decimals; costs round to 2 decimals.

JOIN PATHS:
- fct_* tables join dim_asset_current on asset_id for class, line, plant, and
  downtime_impact_per_hour.
- fct_maintenance_log.failure_code joins dim_failure_code_current when
  failure_flag is true; it is NULL otherwise.
- fct_parts_usage joins fct_maintenance_log on (asset_id, event_date);
  maintenance parts_cost_usd is an independent estimate, not the sum of the
  parts lines.
- ml_feature_daily is the model-ready surface: one row per (asset_id,
  feature_date) with the label failed_in_next_7d.
`,
	Tables: []TableInfo{
		{
			Name:        "dim_asset",
			Description: "Manufacturing assets in the fleet (SCD2). One row per machine: presses, CNC mills, welding robots, conveyors, furnaces.",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Asset identifier, e.g. PRESS-001. Natural key."},
				{Name: "asset_name", Type: "VARCHAR", Description: "Human-readable name"},
				{Name: "model", Type: "VARCHAR", Description: "OEM model designation"},
				{Name: "oem_name", Type: "VARCHAR", Description: "Original equipment manufacturer"},
				{Name: "installation_date", Type: "DATE", Description: "Commissioning date; age drives degradation"},
				{Name: "downtime_impact_per_hour", Type: "DOUBLE", Description: "USD of lost production per downtime hour"},
				{Name: "asset_class", Type: "VARCHAR", Description: "ROTATING, STATIC, ELECTRICAL, or CONTROL"},
				{Name: "process_name", Type: "VARCHAR", Description: "Process step the asset serves"},
				{Name: "line_name", Type: "VARCHAR", Description: "Production line"},
				{Name: "plant_name", Type: "VARCHAR", Description: "Plant site"},
			},
		},
		{
			Name:        "dim_sensor",
			Description: "Sensors mounted on assets (SCD2). Temperature and vibration on every asset, pressure where the process is pressurized.",
			Columns: []ColumnInfo{
				{Name: "sensor_id", Type: "VARCHAR", Description: "Sensor identifier, e.g. PRESS-001-TEMP. Natural key."},
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "sensor_type", Type: "VARCHAR", Description: "TEMPERATURE, VIBRATION, or PRESSURE"},
				{Name: "units", Type: "VARCHAR", Description: "Measurement units: celsius, mm/s, or psi"},
			},
		},
		{
			Name:        "dim_technician",
			Description: "Maintenance technicians (SCD2).",
			Columns: []ColumnInfo{
				{Name: "technician_id", Type: "VARCHAR", Description: "Technician identifier. Natural key."},
				{Name: "technician_name", Type: "VARCHAR", Description: "Full name"},
				{Name: "shift", Type: "VARCHAR", Description: "DAY, SWING, or NIGHT"},
			},
		},
		{
			Name:        "dim_work_order_type",
			Description: "Work order taxonomy (SCD2).",
			Columns: []ColumnInfo{
				{Name: "wo_type", Type: "VARCHAR", Description: "PREVENTIVE, PREDICTIVE, INSPECTION, or EMERGENCY. Natural key."},
				{Name: "description", Type: "VARCHAR", Description: "What the work order covers"},
				{Name: "is_planned", Type: "BOOLEAN", Description: "False only for EMERGENCY"},
			},
		},
		{
			Name:        "dim_failure_code",
			Description: "Failure mode catalog (SCD2). Referenced by fct_maintenance_log on failure events.",
			Columns: []ColumnInfo{
				{Name: "failure_code", Type: "VARCHAR", Description: "Failure mode code, e.g. BRG-SEIZE. Natural key."},
				{Name: "description", Type: "VARCHAR", Description: "Failure mode description"},
				{Name: "severity", Type: "INTEGER", Description: "1 (minor) to 5 (catastrophic)"},
			},
		},
		{
			Name:        "fct_asset_telemetry",
			Description: "Hourly sensor readings with modeled degradation. One row per (asset_id, recorded_at); no gaps, no duplicates inside a simulated window. Partitioned by recorded_at.",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "recorded_at", Type: "TIMESTAMP", Description: "Reading hour, UTC, on the hour"},
				{Name: "temperature_c", Type: "DOUBLE", Description: "Temperature in celsius; the designated furnace asset runs far hotter than its class baseline"},
				{Name: "vibration_mm_s", Type: "DOUBLE", Description: "Vibration velocity in mm/s; rises as health declines on ROTATING assets"},
				{Name: "pressure_psi", Type: "DOUBLE", Description: "Hydraulic/pneumatic pressure in psi. NULL for assets without a pressure sensor."},
				{Name: "health_score", Type: "DOUBLE", Description: "0-100 composite condition score, clamped to a floor of 20"},
				{Name: "failure_probability", Type: "DOUBLE", Description: "Modeled probability of failure, in [0.01, 0.95], strictly increasing as health declines"},
				{Name: "rul_days", Type: "INTEGER", Description: "Remaining useful life estimate in days, never below 1, non-increasing over a window"},
				{Name: "is_anomalous", Type: "BOOLEAN", Description: "True when health_score < 55, or vibration > 7.0 mm/s on ROTATING assets"},
			},
		},
		{
			Name:        "fct_maintenance_log",
			Description: "Maintenance events by policy: preventive on cadence, inspections, predictive responses to degradation, and stochastic emergency failures. At most one event per (asset_id, event_date).",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "event_date", Type: "DATE", Description: "Event day, UTC"},
				{Name: "wo_type", Type: "VARCHAR", Description: "Foreign key → dim_work_order_type.wo_type"},
				{Name: "downtime_hours", Type: "DOUBLE", Description: "Hours the asset was down for this event"},
				{Name: "parts_cost_usd", Type: "DOUBLE", Description: "Estimated parts cost. Independent of fct_parts_usage line totals."},
				{Name: "labor_cost_usd", Type: "DOUBLE", Description: "Labor cost for the event"},
				{Name: "failure_flag", Type: "BOOLEAN", Description: "True iff this was a failure event; implies wo_type = EMERGENCY"},
				{Name: "failure_code", Type: "VARCHAR", Description: "Foreign key → dim_failure_code.failure_code. NULL unless failure_flag."},
				{Name: "technician_id", Type: "VARCHAR", Description: "Foreign key → dim_technician.technician_id"},
				{Name: "notes", Type: "VARCHAR", Description: "Templated work order notes"},
			},
		},
		{
			Name:        "fct_parts_usage",
			Description: "Parts consumed per maintenance event. Zero or more lines per event; line_no orders them.",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → fct_maintenance_log.asset_id"},
				{Name: "event_date", Type: "DATE", Description: "Foreign key → fct_maintenance_log.event_date"},
				{Name: "line_no", Type: "INTEGER", Description: "1-based line number within the event"},
				{Name: "material_name", Type: "VARCHAR", Description: "Part consumed, drawn from the class parts pool"},
				{Name: "quantity", Type: "INTEGER", Description: "Units consumed"},
				{Name: "unit_cost_usd", Type: "DOUBLE", Description: "Cost per unit"},
				{Name: "total_cost_usd", Type: "DOUBLE", Description: "quantity * unit_cost_usd, rounded to 2 decimals"},
			},
		},
		{
			Name:        "fct_production_log",
			Description: "Daily production per asset. Downtime from maintenance events reduces actual_runtime_hours; failure days elevate scrap.",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "production_date", Type: "DATE", Description: "Production day, UTC"},
				{Name: "planned_runtime_hours", Type: "DOUBLE", Description: "Planned hours from the line schedule: 24 continuous, 20 standard, 18 batch"},
				{Name: "actual_runtime_hours", Type: "DOUBLE", Description: "Planned minus maintenance downtime and scheduling slack; never exceeds planned, never below 0"},
				{Name: "units_produced", Type: "INTEGER", Description: "actual hours * per-asset rate"},
				{Name: "units_scrapped", Type: "INTEGER", Description: "Scrap; baseline 0.1-1.0% of produced, 5-12% (min 20) on failure days"},
			},
		},
		{
			Name:        "agg_asset_hourly_health",
			Description: "Hourly health rollup per asset, recomputed from fct_asset_telemetry each run.",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "hour_ts", Type: "TIMESTAMP", Description: "Hour bucket, UTC"},
				{Name: "avg_temperature_c", Type: "DOUBLE", Description: "Mean temperature over the hour"},
				{Name: "max_vibration_mm_s", Type: "DOUBLE", Description: "Peak vibration over the hour"},
				{Name: "stddev_pressure_psi", Type: "DOUBLE", Description: "Stddev of pressure over the hour. NULL when the asset has no pressure sensor; never 0-filled."},
				{Name: "latest_health_score", Type: "DOUBLE", Description: "Latest health score in the hour (maximum observed)"},
				{Name: "avg_failure_probability", Type: "DOUBLE", Description: "Mean failure probability over the hour"},
				{Name: "min_rul_days", Type: "INTEGER", Description: "Most pessimistic RUL in the hour"},
			},
		},
		{
			Name:        "ml_feature_daily",
			Description: "Model-ready daily feature rows with a 7-day-forward failure label. One row per (asset_id, feature_date).",
			Columns: []ColumnInfo{
				{Name: "asset_id", Type: "VARCHAR", Description: "Foreign key → dim_asset.asset_id"},
				{Name: "feature_date", Type: "DATE", Description: "Feature day D, UTC"},
				{Name: "avg_temp_last_24h", Type: "DOUBLE", Description: "Mean temperature over day D's readings"},
				{Name: "vibration_stddev_7d", Type: "DOUBLE", Description: "Vibration stddev over days D-6..D"},
				{Name: "pressure_trend_7d", Type: "DOUBLE", Description: "(max - min) / reading count over days D-6..D. NULL when pressure is absent."},
				{Name: "cycles_since_last_pm", Type: "INTEGER", Description: "Operating cycles since the last preventive service; 24 per elapsed day, so real values top out at 720. 999 sentinel when no PM has occurred."},
				{Name: "days_since_last_failure", Type: "INTEGER", Description: "Days since the last failure event; 999 sentinel when none"},
				{Name: "oem_failure_rate_est", Type: "DOUBLE", Description: "Fleet-informed OEM failure rate estimate in [0.08, 0.20)"},
				{Name: "downtime_impact_risk", Type: "DOUBLE", Description: "(100 - latest health, or 95 when day D has no readings) * downtime_impact_per_hour"},
				{Name: "failed_in_next_7d", Type: "BOOLEAN", Description: "Label: a failure event occurred in (D, D+7]. Strictly after D."},
			},
		},
	},
}

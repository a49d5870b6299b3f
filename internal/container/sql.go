package container

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertInfoSQL = `
INSERT INTO info (container_version,
                  raw_version,
                  step_version,
                  summary_version,
                  cell_name,
                  created_at,
                  start_time,
                  mass,
                  nominal_capacity,
                  cycling_mode,
                  summary_fallback,
                  raw_columns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectVersionsSQL = `
SELECT
    container_version,
    raw_version,
    step_version,
    summary_version
FROM info`

	selectInfoSQL = `
SELECT
    cell_name,
    created_at,
    start_time,
    mass,
    nominal_capacity,
    cycling_mode,
    summary_fallback,
    raw_columns
FROM info`

	insertRawSQL = `
INSERT INTO raw (data_point,
                 test_time,
                 step_time,
                 datetime,
                 cycle_index,
                 step_index,
                 sub_step_index,
                 current,
                 voltage,
                 charge_capacity,
                 discharge_capacity,
                 charge_energy,
                 discharge_energy,
                 internal_resistance,
                 aux)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRawSQL = `
SELECT
    data_point,
    test_time,
    step_time,
    datetime,
    cycle_index,
    step_index,
    sub_step_index,
    current,
    voltage,
    charge_capacity,
    discharge_capacity,
    charge_energy,
    discharge_energy,
    internal_resistance,
    aux
FROM raw
ORDER BY data_point`

	insertStepSQL = `
INSERT INTO steps (cycle, step, sub_step, type, sub_type, info,
                   current_avg, current_std, current_max, current_min,
                   current_start, current_end, current_delta, current_rate,
                   voltage_avg, voltage_std, voltage_max, voltage_min,
                   voltage_start, voltage_end, voltage_delta, voltage_rate,
                   charge_avg, charge_std, charge_max, charge_min,
                   charge_start, charge_end, charge_delta, charge_rate,
                   discharge_avg, discharge_std, discharge_max, discharge_min,
                   discharge_start, discharge_end, discharge_delta, discharge_rate,
                   internal_resistance, internal_resistance_delta)
VALUES (?, ?, ?, ?, ?, ?,
        ?, ?, ?, ?, ?, ?, ?, ?,
        ?, ?, ?, ?, ?, ?, ?, ?,
        ?, ?, ?, ?, ?, ?, ?, ?,
        ?, ?, ?, ?, ?, ?, ?, ?,
        ?, ?)`

	selectStepsSQL = `
SELECT
    cycle, step, sub_step, type, sub_type, info,
    current_avg, current_std, current_max, current_min,
    current_start, current_end, current_delta, current_rate,
    voltage_avg, voltage_std, voltage_max, voltage_min,
    voltage_start, voltage_end, voltage_delta, voltage_rate,
    charge_avg, charge_std, charge_max, charge_min,
    charge_start, charge_end, charge_delta, charge_rate,
    discharge_avg, discharge_std, discharge_max, discharge_min,
    discharge_start, discharge_end, discharge_delta, discharge_rate,
    internal_resistance, internal_resistance_delta
FROM steps
ORDER BY rowid`

	insertSummarySQL = `
INSERT INTO summary (cycle,
                     data_point,
                     timestamp,
                     discharge_capacity,
                     charge_capacity,
                     cumulated_discharge_capacity,
                     cumulated_charge_capacity,
                     coulombic_efficiency,
                     cumulated_coulombic_eff,
                     coulombic_difference,
                     cumulated_coulombic_diff,
                     discharge_capacity_loss,
                     cumulated_discharge_cap_loss,
                     charge_capacity_loss,
                     cumulated_charge_cap_loss,
                     end_voltage_charge,
                     end_voltage_discharge,
                     cumulated_ric,
                     cumulated_ric_sei,
                     cumulated_ric_disconnect,
                     shifted_charge_capacity,
                     shifted_discharge_capacity)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSummarySQL = `
SELECT
    cycle,
    data_point,
    timestamp,
    discharge_capacity,
    charge_capacity,
    cumulated_discharge_capacity,
    cumulated_charge_capacity,
    coulombic_efficiency,
    cumulated_coulombic_eff,
    coulombic_difference,
    cumulated_coulombic_diff,
    discharge_capacity_loss,
    cumulated_discharge_cap_loss,
    charge_capacity_loss,
    cumulated_charge_cap_loss,
    end_voltage_charge,
    end_voltage_discharge,
    cumulated_ric,
    cumulated_ric_sei,
    cumulated_ric_disconnect,
    shifted_charge_capacity,
    shifted_discharge_capacity
FROM summary
ORDER BY cycle`

	insertFidSQL = `
INSERT INTO fid (name,
                 full_path,
                 size,
                 last_modified,
                 last_accessed,
                 location)
VALUES (?, ?, ?, ?, ?, ?)`

	selectFidSQL = `
SELECT
    name,
    full_path,
    size,
    last_modified,
    last_accessed,
    location
FROM fid
ORDER BY rowid`

	selectTablesSQL = `
SELECT
    name
FROM sqlite_master
WHERE
    type = 'table'`
)

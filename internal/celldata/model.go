package celldata

import (
	"math"
	"time"
)

// Column identifies a canonical Sample field. Decoders translate vendor column
// layouts into this fixed set; downstream stages only ever see canonical names.
type Column string

const (
	ColDataPoint          Column = "data_point"
	ColTestTime           Column = "test_time"
	ColStepTime           Column = "step_time"
	ColDateTime           Column = "datetime"
	ColCycleIndex         Column = "cycle_index"
	ColStepIndex          Column = "step_index"
	ColSubStepIndex       Column = "sub_step_index"
	ColCurrent            Column = "current"
	ColVoltage            Column = "voltage"
	ColChargeCapacity     Column = "charge_capacity"
	ColDischargeCapacity  Column = "discharge_capacity"
	ColChargeEnergy       Column = "charge_energy"
	ColDischargeEnergy    Column = "discharge_energy"
	ColInternalResistance Column = "internal_resistance"
)

// NotPresent is the explicit marker for a canonical value that the vendor file
// did not supply. Missing columns are filled with it, never dropped.
func NotPresent() float64 { return math.NaN() }

// IsPresent reports whether a canonical float value was supplied by the source.
func IsPresent(v float64) bool { return !math.IsNaN(v) }

// Sample is one row of a RawTable: a single measurement point as reported by
// the cycler instrument, normalized to canonical units and column names.
type Sample struct {
	DataPoint    int64     `json:"dataPoint"`    // Monotonic unique row identifier
	TestTime     float64   `json:"testTime"`     // Seconds since the start of the test
	StepTime     float64   `json:"stepTime"`     // Seconds since the start of the current step
	DateTime     time.Time `json:"dateTime"`     // Wall-clock timestamp of the measurement
	CycleIndex   int       `json:"cycleIndex"`   // Cycle number, non-decreasing
	StepIndex    int       `json:"stepIndex"`    // Step number within the cycle
	SubStepIndex int       `json:"subStepIndex"` // Sub-step number within the step

	Current            float64 `json:"current"`            // Current in A, signed
	Voltage            float64 `json:"voltage"`            // Cell voltage in V
	ChargeCapacity     float64 `json:"chargeCapacity"`     // Accumulated charge capacity in mAh
	DischargeCapacity  float64 `json:"dischargeCapacity"`  // Accumulated discharge capacity in mAh
	ChargeEnergy       float64 `json:"chargeEnergy"`       // Accumulated charge energy in mWh
	DischargeEnergy    float64 `json:"dischargeEnergy"`    // Accumulated discharge energy in mWh
	InternalResistance float64 `json:"internalResistance"` // Internal resistance in Ohm

	// Aux holds optional auxiliary channels (temperature, impedance) keyed by
	// the vendor channel name. Nil when the file carries none.
	Aux map[string]float64 `json:"aux,omitempty"`
}

// ColumnSet tracks which canonical columns a source file actually supplied.
type ColumnSet map[Column]struct{}

func (cs ColumnSet) Add(c Column) { cs[c] = struct{}{} }

func (cs ColumnSet) Has(c Column) bool {
	_, ok := cs[c]
	return ok
}

// HasAll reports whether every given column is present.
func (cs ColumnSet) HasAll(cols ...Column) bool {
	for _, c := range cols {
		if !cs.Has(c) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (cs ColumnSet) Clone() ColumnSet {
	out := make(ColumnSet, len(cs))
	for c := range cs {
		out.Add(c)
	}
	return out
}

// RawTable is the canonical per-sample time series for one logical test run.
// Within one table DataPoint is strictly increasing and unique, and a
// (CycleIndex, StepIndex) pair identifies exactly one maximal contiguous run
// of rows once multi-file runs have been merged.
type RawTable struct {
	Samples   []Sample  // Rows in acquisition order
	StartTime time.Time // Test start timestamp recorded by the instrument
	Columns   ColumnSet // Canonical columns present in the source
}

// Empty reports whether the table has no rows.
func (t *RawTable) Empty() bool { return t == nil || len(t.Samples) == 0 }

// MaxDataPoint returns the largest DataPoint value, or 0 for an empty table.
func (t *RawTable) MaxDataPoint() int64 {
	if t.Empty() {
		return 0
	}
	return t.Samples[len(t.Samples)-1].DataPoint
}

// MaxCycle returns the largest CycleIndex value, or 0 for an empty table.
func (t *RawTable) MaxCycle() int {
	var max int
	for _, s := range t.Samples {
		if s.CycleIndex > max {
			max = s.CycleIndex
		}
	}
	return max
}

// Cycles returns the distinct cycle numbers present, in ascending order.
func (t *RawTable) Cycles() []int {
	var cycles []int
	seen := make(map[int]struct{})
	for _, s := range t.Samples {
		if _, ok := seen[s.CycleIndex]; !ok {
			seen[s.CycleIndex] = struct{}{}
			cycles = append(cycles, s.CycleIndex)
		}
	}
	return cycles
}

// FileRecord is a provenance snapshot of one raw source file. It participates
// only in staleness comparison, never in numerical computation.
type FileRecord struct {
	Name         string    `json:"name"`         // Base name of the file
	FullPath     string    `json:"fullPath"`     // Absolute or logical path
	Size         int64     `json:"size"`         // Size in bytes at read time
	LastModified time.Time `json:"lastModified"` // Modification time at read time
	LastAccessed time.Time `json:"lastAccessed"` // Access time at read time
	Location     string    `json:"location"`     // Where the file lives (e.g. "local")
}

// CyclingMode selects which capacity direction counts as the primary one when
// computing per-cycle summary metrics.
type CyclingMode string

const (
	// ModeDischargeFirst is the half-cell convention where the test starts
	// with a discharge step (typical for anode materials).
	ModeDischargeFirst CyclingMode = "discharge_first"

	// ModeChargeFirst is the convention where the test starts with a charge
	// step (typical for cathode materials and full cells).
	ModeChargeFirst CyclingMode = "charge_first"
)

// Epsilons is the set of classification thresholds appropriate to one
// instrument's measurement resolution. Hard thresholds gate the primary
// classification rules; soft thresholds gate the constant-voltage rules.
type Epsilons struct {
	CurrentHard       float64 `yaml:"currentHard" json:"currentHard"`
	CurrentSoft       float64 `yaml:"currentSoft" json:"currentSoft"`
	StableCurrentHard float64 `yaml:"stableCurrentHard" json:"stableCurrentHard"`
	StableCurrentSoft float64 `yaml:"stableCurrentSoft" json:"stableCurrentSoft"`
	StableVoltageHard float64 `yaml:"stableVoltageHard" json:"stableVoltageHard"`
	StableVoltageSoft float64 `yaml:"stableVoltageSoft" json:"stableVoltageSoft"`
	StableChargeHard  float64 `yaml:"stableChargeHard" json:"stableChargeHard"`
	StableChargeSoft  float64 `yaml:"stableChargeSoft" json:"stableChargeSoft"`
	IRChange          float64 `yaml:"irChange" json:"irChange"`
}

// DefaultEpsilons returns thresholds suitable for common lab cyclers.
func DefaultEpsilons() Epsilons {
	return Epsilons{
		CurrentHard:       1e-13,
		CurrentSoft:       1e-5,
		StableCurrentHard: 2.0,
		StableCurrentSoft: 4.0,
		StableVoltageHard: 2.0,
		StableVoltageSoft: 4.0,
		StableChargeHard:  0.9,
		StableChargeSoft:  5.0,
		IRChange:          1e-5,
	}
}

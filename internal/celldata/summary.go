package celldata

import "errors"

// ErrEmptyResult is returned when a pipeline stage produced zero rows where
// at least one was required.
var ErrEmptyResult = errors.New("empty result")

// SummaryRow holds the per-cycle summary statistics. Capacities are specific
// (normalized by active mass); cumulative columns are running sums over
// cycle-ordered rows of their plain counterparts.
type SummaryRow struct {
	Cycle     int    `json:"cycle"`
	DataPoint int64  `json:"dataPoint"` // Sample the row was taken from
	Timestamp string `json:"timestamp"` // Human-readable wall-clock time

	DischargeCapacity          float64 `json:"dischargeCapacity"`
	ChargeCapacity             float64 `json:"chargeCapacity"`
	CumulatedDischargeCapacity float64 `json:"cumulatedDischargeCapacity"`
	CumulatedChargeCapacity    float64 `json:"cumulatedChargeCapacity"`
	CoulombicEfficiency        float64 `json:"coulombicEfficiency"`
	CumulatedCoulombicEff      float64 `json:"cumulatedCoulombicEfficiency"`
	CoulombicDifference        float64 `json:"coulombicDifference"`
	CumulatedCoulombicDiff     float64 `json:"cumulatedCoulombicDifference"`
	DischargeCapacityLoss      float64 `json:"dischargeCapacityLoss"`
	CumulatedDischargeCapLoss  float64 `json:"cumulatedDischargeCapacityLoss"`
	ChargeCapacityLoss         float64 `json:"chargeCapacityLoss"`
	CumulatedChargeCapLoss     float64 `json:"cumulatedChargeCapacityLoss"`
	EndVoltageCharge           float64 `json:"endVoltageCharge"`
	EndVoltageDischarge        float64 `json:"endVoltageDischarge"`
	CumulatedRIC               float64 `json:"cumulatedRIC"`
	CumulatedRICSEI            float64 `json:"cumulatedRICSEI"`
	CumulatedRICDisconnect     float64 `json:"cumulatedRICDisconnect"`
	ShiftedChargeCapacity      float64 `json:"shiftedChargeCapacity"`
	ShiftedDischargeCapacity   float64 `json:"shiftedDischargeCapacity"`
}

// SummaryTable holds one SummaryRow per cycle, strictly increasing, with no
// gaps relative to the cycles present in the RawTable it was derived from.
type SummaryTable struct {
	Rows []SummaryRow

	// UsedFallback is set when no vendor per-cycle reference subset could be
	// matched and the aggregator fell back to last-sample-per-cycle.
	UsedFallback bool
}

// Empty reports whether the table has no rows.
func (t *SummaryTable) Empty() bool { return t == nil || len(t.Rows) == 0 }

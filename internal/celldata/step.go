package celldata

// StepType labels the electrical excitation mode of one step.
type StepType string

const (
	StepCharge      StepType = "charge"
	StepDischarge   StepType = "discharge"
	StepCVCharge    StepType = "cv_charge"
	StepCVDischarge StepType = "cv_discharge"
	StepOCVUp       StepType = "ocv_up"
	StepOCVDown     StepType = "ocv_down"
	StepIR          StepType = "ir"
	StepRest        StepType = "rest"
	StepNotKnown    StepType = "not_known"
)

// ChannelStats holds the per-step aggregate statistics for one measurement
// channel (current, voltage, charge capacity or discharge capacity).
type ChannelStats struct {
	Avg   float64 `json:"avg"`   // Arithmetic mean over the step
	Std   float64 `json:"std"`   // Population standard deviation
	Max   float64 `json:"max"`   // Maximum value
	Min   float64 `json:"min"`   // Minimum value
	Start float64 `json:"start"` // First value of the step
	End   float64 `json:"end"`   // Last value of the step
	Delta float64 `json:"delta"` // Relative change end vs start in percent
	Rate  float64 `json:"rate"`  // Start divided by end, NaN when end is zero
}

// StepRow summarizes one maximal contiguous (cycle, step) run of samples.
type StepRow struct {
	Cycle   int      `json:"cycle"`
	Step    int      `json:"step"`
	SubStep int      `json:"subStep"`
	Type    StepType `json:"type"`
	SubType string   `json:"subType,omitempty"`
	Info    string   `json:"info,omitempty"`

	Current           ChannelStats `json:"current"`
	Voltage           ChannelStats `json:"voltage"`
	ChargeCapacity    ChannelStats `json:"chargeCapacity"`
	DischargeCapacity ChannelStats `json:"dischargeCapacity"`

	InternalResistance          float64 `json:"internalResistance"`
	InternalResistancePctChange float64 `json:"internalResistancePctChange"`
}

// StepTable holds one StepRow per (cycle, step) pair, in row order of the
// RawTable it was derived from. It is a derived cache: it can be regenerated
// from the RawTable plus thresholds at any time.
type StepTable struct {
	Rows []StepRow
}

// Empty reports whether the table has no rows.
func (t *StepTable) Empty() bool { return t == nil || len(t.Rows) == 0 }

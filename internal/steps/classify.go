// Package steps transforms a RawTable into a StepTable: it partitions the
// samples into maximal contiguous (cycle, step) runs, computes per-run
// aggregate statistics, and labels each run with a step type using ordered
// threshold rules.
package steps

import (
	"fmt"
	"math"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// requiredColumns must be present in the RawTable for classification.
var requiredColumns = []celldata.Column{
	celldata.ColCycleIndex,
	celldata.ColStepIndex,
	celldata.ColCurrent,
	celldata.ColVoltage,
	celldata.ColChargeCapacity,
	celldata.ColDischargeCapacity,
}

// Classify partitions raw into (cycle, step) groups and produces one StepRow
// per group. Grouping is positional, in row order, not a value sort: two
// physically separate runs sharing the same pair stay separate here — making
// pairs unique beforehand is the merger's job.
//
// Classification never fails on data it cannot confidently label; such groups
// are typed not_known. It only fails when required canonical columns are
// absent from the input.
func Classify(raw *celldata.RawTable, eps celldata.Epsilons) (*celldata.StepTable, error) {
	for _, col := range requiredColumns {
		if !raw.Columns.Has(col) {
			return nil, fmt.Errorf("classifying steps: required column %s absent from raw table", col)
		}
	}
	if raw.Empty() {
		return nil, fmt.Errorf("classifying steps: %w", celldata.ErrEmptyResult)
	}

	table := &celldata.StepTable{}

	begin := 0
	for i := 1; i <= len(raw.Samples); i++ {
		if i < len(raw.Samples) && sameGroup(raw.Samples[i], raw.Samples[begin]) {
			continue
		}
		table.Rows = append(table.Rows, buildRow(raw.Samples[begin:i], eps))
		begin = i
	}

	return table, nil
}

func sameGroup(a, b celldata.Sample) bool {
	return a.CycleIndex == b.CycleIndex && a.StepIndex == b.StepIndex
}

func buildRow(group []celldata.Sample, eps celldata.Epsilons) celldata.StepRow {
	current := make([]float64, len(group))
	voltage := make([]float64, len(group))
	charge := make([]float64, len(group))
	discharge := make([]float64, len(group))

	for i, s := range group {
		current[i] = s.Current
		voltage[i] = s.Voltage
		charge[i] = s.ChargeCapacity
		discharge[i] = s.DischargeCapacity
	}

	row := celldata.StepRow{
		Cycle:   group[0].CycleIndex,
		Step:    group[0].StepIndex,
		SubStep: group[0].SubStepIndex,

		Current:           channelStats(current),
		Voltage:           channelStats(voltage),
		ChargeCapacity:    channelStats(charge),
		DischargeCapacity: channelStats(discharge),
	}

	irStart := group[0].InternalResistance
	irEnd := group[len(group)-1].InternalResistance
	row.InternalResistance = irStart
	if celldata.IsPresent(irStart) && celldata.IsPresent(irEnd) {
		row.InternalResistancePctChange = Delta(irStart, irEnd)
	} else {
		row.InternalResistancePctChange = celldata.NotPresent()
	}

	row.Type = classify(&row, eps)
	return row
}

// classify applies the threshold rules in their fixed precedence order; the
// first match wins. The order is a correctness contract: reordering changes
// labels on real data.
func classify(row *celldata.StepRow, eps celldata.Epsilons) celldata.StepType {
	cur, volt := row.Current, row.Voltage
	charge, discharge := row.ChargeCapacity, row.DischargeCapacity

	// 1. no measurable current: open-circuit voltage relaxation
	if math.Abs(cur.Max)+math.Abs(cur.Min) < eps.CurrentHard {
		if volt.Delta > eps.StableVoltageHard {
			return celldata.StepOCVUp
		}
		if volt.Delta < -eps.StableVoltageHard {
			return celldata.StepOCVDown
		}
	}

	// 2. charge capacity moving with positive current
	if charge.Delta > eps.StableChargeHard && cur.Avg > eps.CurrentHard {
		return celldata.StepCharge
	}

	// 3. discharge capacity moving with negative current
	if discharge.Delta > eps.StableChargeHard && cur.Avg < -eps.CurrentHard {
		return celldata.StepDischarge
	}

	// 4. stable voltage with decaying current: constant-voltage hold
	if volt.Delta < eps.StableVoltageHard && volt.Delta > -eps.StableVoltageHard &&
		cur.Delta < -eps.StableCurrentSoft {
		if cur.Avg < -eps.CurrentHard {
			return celldata.StepCVDischarge
		}
		if cur.Avg > eps.CurrentHard {
			return celldata.StepCVCharge
		}
	}

	// 5. nothing observable changed: a lone internal-resistance measurement
	if volt.Delta == 0 && cur.Delta == 0 && charge.Delta == 0 && discharge.Delta == 0 {
		return celldata.StepIR
	}

	return celldata.StepNotKnown
}

package summary

import (
	"math"
	"testing"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// twoCycleRaw builds a two-cycle table where every cycle charges 5.0 mAh at
// +1.0 A and then discharges 4.5 mAh at -1.0 A.
func twoCycleRaw() *celldata.RawTable {
	table := &celldata.RawTable{
		StartTime: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
		Columns:   make(celldata.ColumnSet),
	}
	for _, c := range []celldata.Column{
		celldata.ColDataPoint, celldata.ColCycleIndex, celldata.ColStepIndex,
		celldata.ColCurrent, celldata.ColVoltage,
		celldata.ColChargeCapacity, celldata.ColDischargeCapacity,
	} {
		table.Columns.Add(c)
	}

	dp := int64(0)
	add := func(cycle, step int, current, voltage, charge, discharge float64) {
		dp++
		table.Samples = append(table.Samples, celldata.Sample{
			DataPoint:         dp,
			CycleIndex:        cycle,
			StepIndex:         step,
			Current:           current,
			Voltage:           voltage,
			ChargeCapacity:    charge,
			DischargeCapacity: discharge,
			DateTime:          table.StartTime.Add(time.Duration(dp) * time.Minute),
		})
	}

	for cycle := 1; cycle <= 2; cycle++ {
		add(cycle, 1, 1.0, 3.3, 0.0, 0.0)
		add(cycle, 1, 1.0, 3.8, 2.5, 0.0)
		add(cycle, 1, 1.0, 4.2, 5.0, 0.0)
		add(cycle, 2, -1.0, 4.0, 5.0, 0.0)
		add(cycle, 2, -1.0, 3.4, 5.0, 2.2)
		add(cycle, 2, -1.0, 3.0, 5.0, 4.5)
	}
	return table
}

func TestAggregate_CoulombicEfficiency(t *testing.T) {
	table, err := Aggregate(twoCycleRaw(), Config{CyclingMode: celldata.ModeDischargeFirst})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Expected 2 summary rows, got %d", len(table.Rows))
	}

	for i, row := range table.Rows {
		if row.Cycle != i+1 {
			t.Errorf("Row %d: expected cycle %d, got %d", i, i+1, row.Cycle)
		}
		if row.ChargeCapacity != 5.0 {
			t.Errorf("Cycle %d: expected charge capacity 5.0, got %g", row.Cycle, row.ChargeCapacity)
		}
		if row.DischargeCapacity != 4.5 {
			t.Errorf("Cycle %d: expected discharge capacity 4.5, got %g", row.Cycle, row.DischargeCapacity)
		}
		// discharge-first: primary is charge, so CE = 100 * 4.5 / 5.0
		if math.Abs(row.CoulombicEfficiency-90.0) > 1e-9 {
			t.Errorf("Cycle %d: expected coulombic efficiency 90, got %g", row.Cycle, row.CoulombicEfficiency)
		}
		if math.Abs(row.CoulombicDifference+0.5) > 1e-9 {
			t.Errorf("Cycle %d: expected coulombic difference -0.5, got %g", row.Cycle, row.CoulombicDifference)
		}
		if row.EndVoltageCharge != 4.2 {
			t.Errorf("Cycle %d: expected charge end voltage 4.2, got %g", row.Cycle, row.EndVoltageCharge)
		}
		if row.EndVoltageDischarge != 3.0 {
			t.Errorf("Cycle %d: expected discharge end voltage 3.0, got %g", row.Cycle, row.EndVoltageDischarge)
		}
	}

	first, second := table.Rows[0], table.Rows[1]

	// the first cycle has no predecessor: loss and RIC metrics are undefined
	for name, v := range map[string]float64{
		"charge capacity loss":    first.ChargeCapacityLoss,
		"discharge capacity loss": first.DischargeCapacityLoss,
		"cumulated RIC":           first.CumulatedRIC,
		"cumulated RIC SEI":       first.CumulatedRICSEI,
		"cumulated RIC disc":      first.CumulatedRICDisconnect,
	} {
		if !math.IsNaN(v) {
			t.Errorf("First cycle %s: expected NaN, got %g", name, v)
		}
	}

	if second.ChargeCapacityLoss != 0 || second.DischargeCapacityLoss != 0 {
		t.Errorf("Second cycle: expected zero losses, got %g and %g",
			second.ChargeCapacityLoss, second.DischargeCapacityLoss)
	}
	if math.Abs(second.CumulatedRIC-0.5/4.5) > 1e-9 {
		t.Errorf("Second cycle: expected cumulated RIC %g, got %g", 0.5/4.5, second.CumulatedRIC)
	}
	if second.CumulatedRICDisconnect != 0 {
		t.Errorf("Second cycle: expected zero cumulated RIC disconnect, got %g", second.CumulatedRICDisconnect)
	}

	// shifted capacities: running sum of (primary - secondary), then + primary
	if math.Abs(first.ShiftedChargeCapacity-0.5) > 1e-9 || math.Abs(second.ShiftedChargeCapacity-1.0) > 1e-9 {
		t.Errorf("Expected shifted charge capacities 0.5 and 1.0, got %g and %g",
			first.ShiftedChargeCapacity, second.ShiftedChargeCapacity)
	}
	if math.Abs(first.ShiftedDischargeCapacity-5.5) > 1e-9 || math.Abs(second.ShiftedDischargeCapacity-6.0) > 1e-9 {
		t.Errorf("Expected shifted discharge capacities 5.5 and 6.0, got %g and %g",
			first.ShiftedDischargeCapacity, second.ShiftedDischargeCapacity)
	}

	if first.Timestamp != "2024-06-15 10:06:00" {
		t.Errorf("Expected timestamp of last cycle 1 sample, got %q", first.Timestamp)
	}
}

func TestAggregate_CumulativePrefix(t *testing.T) {
	table, err := Aggregate(twoCycleRaw(), Config{})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	var sumCharge, sumDischarge, sumEff float64
	for i, row := range table.Rows {
		sumCharge += row.ChargeCapacity
		sumDischarge += row.DischargeCapacity
		sumEff += row.CoulombicEfficiency

		if math.Abs(row.CumulatedChargeCapacity-sumCharge) > 1e-9 {
			t.Errorf("Row %d: cumulated charge %g does not match prefix sum %g",
				i, row.CumulatedChargeCapacity, sumCharge)
		}
		if math.Abs(row.CumulatedDischargeCapacity-sumDischarge) > 1e-9 {
			t.Errorf("Row %d: cumulated discharge %g does not match prefix sum %g",
				i, row.CumulatedDischargeCapacity, sumDischarge)
		}
		if math.Abs(row.CumulatedCoulombicEff-sumEff) > 1e-9 {
			t.Errorf("Row %d: cumulated efficiency %g does not match prefix sum %g",
				i, row.CumulatedCoulombicEff, sumEff)
		}
	}
}

func TestAggregate_ChargeFirstMode(t *testing.T) {
	table, err := Aggregate(twoCycleRaw(), Config{CyclingMode: celldata.ModeChargeFirst})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	// charge-first: primary is discharge, CE = 100 * 5.0 / 4.5
	want := 100 * 5.0 / 4.5
	if math.Abs(table.Rows[0].CoulombicEfficiency-want) > 1e-9 {
		t.Errorf("Expected coulombic efficiency %g, got %g", want, table.Rows[0].CoulombicEfficiency)
	}
}

func TestAggregate_MassScaling(t *testing.T) {
	// 500 mg of active material doubles the specific capacity
	table, err := Aggregate(twoCycleRaw(), Config{Mass: 500})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if table.Rows[0].ChargeCapacity != 10.0 {
		t.Errorf("Expected specific charge capacity 10, got %g", table.Rows[0].ChargeCapacity)
	}
	if table.Rows[0].DischargeCapacity != 9.0 {
		t.Errorf("Expected specific discharge capacity 9, got %g", table.Rows[0].DischargeCapacity)
	}
}

func TestAggregate_ReferenceSubset(t *testing.T) {
	// data point 5 is the mid-discharge sample of cycle 1
	table, err := Aggregate(twoCycleRaw(), Config{ReferenceDataPoints: []int64{5}})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if table.UsedFallback {
		t.Error("Expected no fallback when a reference data point matched")
	}
	if table.Rows[0].DataPoint != 5 {
		t.Errorf("Expected cycle 1 row taken from data point 5, got %d", table.Rows[0].DataPoint)
	}
	if table.Rows[0].DischargeCapacity != 2.2 {
		t.Errorf("Expected discharge capacity 2.2 from the reference sample, got %g", table.Rows[0].DischargeCapacity)
	}
	// cycle 2 had no reference match but still gets a row (last sample)
	if table.Rows[1].DataPoint != 12 {
		t.Errorf("Expected cycle 2 row taken from data point 12, got %d", table.Rows[1].DataPoint)
	}

	// a reference set matching nothing falls back entirely and says so
	table, err = Aggregate(twoCycleRaw(), Config{ReferenceDataPoints: []int64{999}})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !table.UsedFallback {
		t.Error("Expected fallback flag when no reference data point matched")
	}
	if table.Rows[0].DataPoint != 6 {
		t.Errorf("Expected cycle 1 fallback row from data point 6, got %d", table.Rows[0].DataPoint)
	}
}

func TestAggregate_MissingColumn(t *testing.T) {
	raw := twoCycleRaw()
	delete(raw.Columns, celldata.ColChargeCapacity)

	if _, err := Aggregate(raw, Config{}); err == nil {
		t.Error("Expected error for missing charge capacity column")
	}
}

func TestAggregate_Empty(t *testing.T) {
	raw := twoCycleRaw()
	raw.Samples = nil

	if _, err := Aggregate(raw, Config{}); err == nil {
		t.Error("Expected error for empty raw table")
	}
}

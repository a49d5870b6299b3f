// Package summary aggregates a RawTable into one row per cycle with
// specific capacities, efficiency and irreversible-capacity metrics, and
// their running sums.
package summary

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

const timestampLayout = "2006-01-02 15:04:05"

// specificConv converts an mAh capacity and an mg mass into mAh/g.
const specificConv = 1000.0

// Config carries the aggregation inputs that come from the caller, not from
// the raw data: cell properties and the cycling convention.
type Config struct {
	// Mass is the active material mass in mg. Zero leaves capacities
	// unscaled (equivalent to a 1 g electrode).
	Mass float64 `yaml:"mass" json:"mass"`

	// NominalCapacity is the cell's nominal capacity in mAh. It is carried
	// into the container metadata for later rate computations.
	NominalCapacity float64 `yaml:"nominalCapacity" json:"nominalCapacity"`

	// CyclingMode decides which direction is the primary capacity.
	CyclingMode celldata.CyclingMode `yaml:"cyclingMode" json:"cyclingMode"`

	// ReferenceDataPoints optionally selects the vendor's own per-cycle
	// statistics rows by data point number. When none of them match the
	// raw table, aggregation falls back to the last sample of each cycle.
	ReferenceDataPoints []int64 `yaml:"-" json:"-"`
}

var requiredColumns = []celldata.Column{
	celldata.ColCycleIndex,
	celldata.ColCurrent,
	celldata.ColVoltage,
	celldata.ColChargeCapacity,
	celldata.ColDischargeCapacity,
}

// Aggregate produces the per-cycle SummaryTable for raw. Rows are emitted in
// ascending cycle order, one per distinct cycle present in the raw table, so
// the summary never has gaps even when the vendor reference subset does.
func Aggregate(raw *celldata.RawTable, config Config) (*celldata.SummaryTable, error) {
	for _, col := range requiredColumns {
		if !raw.Columns.Has(col) {
			return nil, fmt.Errorf("aggregating summary: required column %s absent from raw table", col)
		}
	}
	if raw.Empty() {
		return nil, fmt.Errorf("aggregating summary: %w", celldata.ErrEmptyResult)
	}

	selected, usedFallback := selectCycleRows(raw, config.ReferenceDataPoints)

	cycles := make([]int, 0, len(selected))
	for c := range selected {
		cycles = append(cycles, c)
	}
	sort.Ints(cycles)

	mass := config.Mass
	if mass <= 0 {
		mass = specificConv
	}
	toSpecific := func(v float64) float64 { return v * specificConv / mass }

	n := len(cycles)

	charge := make([]float64, n)
	discharge := make([]float64, n)
	primary := make([]float64, n)
	secondary := make([]float64, n)

	for i, c := range cycles {
		s := selected[c]
		charge[i] = toSpecific(s.ChargeCapacity)
		discharge[i] = toSpecific(s.DischargeCapacity)

		// Coulombic efficiency relates the capacity recovered in the
		// secondary direction to the one delivered in the primary; which is
		// which depends on whether the test charges or discharges first.
		switch config.CyclingMode {
		case celldata.ModeChargeFirst:
			primary[i], secondary[i] = discharge[i], charge[i]
		default: // discharge-first
			primary[i], secondary[i] = charge[i], discharge[i]
		}
	}

	efficiency := make([]float64, n)
	difference := make([]float64, n)
	chargeLoss := make([]float64, n)
	dischargeLoss := make([]float64, n)
	ric := make([]float64, n)
	ricSEI := make([]float64, n)
	ricDisconnect := make([]float64, n)
	shifted := make([]float64, n)

	for i := 0; i < n; i++ {
		efficiency[i] = 100 * secondary[i] / primary[i]
		difference[i] = secondary[i] - primary[i]

		if i == 0 {
			// no prior cycle to reference: undefined, not zero
			chargeLoss[i] = math.NaN()
			dischargeLoss[i] = math.NaN()
			ric[i] = math.NaN()
			ricSEI[i] = math.NaN()
			ricDisconnect[i] = math.NaN()
		} else {
			chargeLoss[i] = charge[i-1] - charge[i]
			dischargeLoss[i] = discharge[i-1] - discharge[i]
			ric[i] = (primary[i-1] - secondary[i]) / secondary[i-1]
			ricSEI[i] = (primary[i] - secondary[i-1]) / secondary[i-1]
			ricDisconnect[i] = (secondary[i-1] - secondary[i]) / secondary[i-1]
		}

		shifted[i] = primary[i] - secondary[i]
	}

	cumCharge := cumulate(charge)
	cumDischarge := cumulate(discharge)
	cumEfficiency := cumulate(efficiency)
	cumDifference := cumulate(difference)
	cumChargeLoss := cumulate(chargeLoss)
	cumDischargeLoss := cumulate(dischargeLoss)
	cumRIC := cumulate(ric)
	cumRICSEI := cumulate(ricSEI)
	cumRICDisconnect := cumulate(ricDisconnect)
	shiftedCharge := cumulate(shifted)

	table := &celldata.SummaryTable{UsedFallback: usedFallback}
	endVoltages := endVoltagesByCycle(raw)

	for i, c := range cycles {
		s := selected[c]
		ev := endVoltages[c]

		table.Rows = append(table.Rows, celldata.SummaryRow{
			Cycle:     c,
			DataPoint: s.DataPoint,
			Timestamp: formatTimestamp(s.DateTime),

			DischargeCapacity:          discharge[i],
			ChargeCapacity:             charge[i],
			CumulatedDischargeCapacity: cumDischarge[i],
			CumulatedChargeCapacity:    cumCharge[i],
			CoulombicEfficiency:        efficiency[i],
			CumulatedCoulombicEff:      cumEfficiency[i],
			CoulombicDifference:        difference[i],
			CumulatedCoulombicDiff:     cumDifference[i],
			DischargeCapacityLoss:      dischargeLoss[i],
			CumulatedDischargeCapLoss:  cumDischargeLoss[i],
			ChargeCapacityLoss:         chargeLoss[i],
			CumulatedChargeCapLoss:     cumChargeLoss[i],
			EndVoltageCharge:           ev.charge,
			EndVoltageDischarge:        ev.discharge,
			CumulatedRIC:               cumRIC[i],
			CumulatedRICSEI:            cumRICSEI[i],
			CumulatedRICDisconnect:     cumRICDisconnect[i],
			ShiftedChargeCapacity:      shiftedCharge[i],
			ShiftedDischargeCapacity:   shiftedCharge[i] + primary[i],
		})
	}

	return table, nil
}

// selectCycleRows picks one representative sample per cycle: the last sample
// whose data point belongs to the vendor reference subset, or the last sample
// of the cycle when no reference row matched anything at all.
func selectCycleRows(raw *celldata.RawTable, reference []int64) (map[int]celldata.Sample, bool) {
	last := make(map[int]celldata.Sample)
	for _, s := range raw.Samples {
		last[s.CycleIndex] = s
	}

	if len(reference) == 0 {
		return last, false
	}

	refSet := make(map[int64]struct{}, len(reference))
	for _, dp := range reference {
		refSet[dp] = struct{}{}
	}

	matched := false
	for _, s := range raw.Samples {
		if _, ok := refSet[s.DataPoint]; ok {
			last[s.CycleIndex] = s
			matched = true
		}
	}

	// a reference set that matches nothing means the vendor's cycle-boundary
	// definition was not honored; record the fallback for the caller
	return last, !matched
}

type cycleEndVoltages struct {
	charge    float64
	discharge float64
}

// endVoltagesByCycle finds, per cycle, the voltage of the last sample with
// positive current (charge end) and negative current (discharge end).
func endVoltagesByCycle(raw *celldata.RawTable) map[int]cycleEndVoltages {
	out := make(map[int]cycleEndVoltages)
	for _, s := range raw.Samples {
		ev, ok := out[s.CycleIndex]
		if !ok {
			ev = cycleEndVoltages{charge: math.NaN(), discharge: math.NaN()}
		}
		switch {
		case s.Current > 0:
			ev.charge = s.Voltage
		case s.Current < 0:
			ev.discharge = s.Voltage
		}
		out[s.CycleIndex] = ev
	}
	return out
}

// cumulate is the running sum over cycle-ordered terms. An undefined (NaN)
// term yields an undefined output at that position but does not poison the
// rest of the column: later sums simply skip it.
func cumulate(terms []float64) []float64 {
	out := make([]float64, len(terms))
	var sum float64
	for i, v := range terms {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		sum += v
		out[i] = sum
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampLayout)
}

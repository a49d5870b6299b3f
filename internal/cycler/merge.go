package cycler

import (
	"fmt"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// Merge concatenates the ordered RawTables of one logical test run into a
// single table with continuous numbering:
//
//   - DataPoint values of table i+1 are offset by the maximum DataPoint of
//     the concatenation of tables 0..i, so the merged column stays strictly
//     increasing and unique.
//   - CycleIndex values are offset the same way, so cycle numbering continues
//     across file boundaries and no two non-adjacent row ranges share a
//     (cycle, step) pair afterwards.
//   - TestTime values are offset by the wall-clock gap between each table's
//     recorded start timestamp and the first table's, so elapsed time keeps
//     running through the gap between files.
//
// It also returns the per-table cycle offsets so that precomputed per-file
// step or summary tables can be shifted with OffsetStepTable and
// OffsetSummaryTable. A table with no recorded start timestamp aborts the
// merge with ErrInconsistentProvenance rather than guessing a zero offset.
func Merge(tables []*celldata.RawTable) (*celldata.RawTable, []int, error) {
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("no tables to merge")
	}
	if len(tables) == 1 {
		return tables[0], []int{0}, nil
	}

	for i, t := range tables {
		if t.Empty() {
			return nil, nil, fmt.Errorf("%w: table %d is empty", celldata.ErrEmptyResult, i)
		}
		if t.StartTime.IsZero() {
			return nil, nil, fmt.Errorf("%w: table %d has no recorded start timestamp", ErrInconsistentProvenance, i)
		}
	}

	merged := &celldata.RawTable{
		StartTime: tables[0].StartTime,
		Columns:   tables[0].Columns.Clone(),
		Samples:   make([]celldata.Sample, 0, totalSamples(tables)),
	}

	cycleOffsets := make([]int, len(tables))

	var dataPointOffset int64
	var cycleOffset int

	for i, t := range tables {
		if t.StartTime.Before(merged.StartTime) {
			return nil, nil, fmt.Errorf("%w: table %d starts before table 0", ErrInconsistentProvenance, i)
		}

		timeOffset := t.StartTime.Sub(merged.StartTime).Seconds()
		cycleOffsets[i] = cycleOffset

		for _, s := range t.Samples {
			s.DataPoint += dataPointOffset
			s.CycleIndex += cycleOffset
			s.TestTime += timeOffset
			merged.Samples = append(merged.Samples, s)
		}

		for c := range t.Columns {
			merged.Columns.Add(c)
		}

		dataPointOffset = merged.MaxDataPoint()
		cycleOffset = merged.MaxCycle()
	}

	return merged, cycleOffsets, nil
}

// OffsetStepTable shifts the cycle numbers of a precomputed per-file step
// table by the offset Merge assigned to its source table.
func OffsetStepTable(t *celldata.StepTable, cycleOffset int) {
	if t == nil {
		return
	}
	for i := range t.Rows {
		t.Rows[i].Cycle += cycleOffset
	}
}

// OffsetSummaryTable shifts the cycle numbers of a precomputed per-file
// summary table by the offset Merge assigned to its source table.
func OffsetSummaryTable(t *celldata.SummaryTable, cycleOffset int) {
	if t == nil {
		return
	}
	for i := range t.Rows {
		t.Rows[i].Cycle += cycleOffset
	}
}

func totalSamples(tables []*celldata.RawTable) int {
	var n int
	for _, t := range tables {
		n += len(t.Samples)
	}
	return n
}

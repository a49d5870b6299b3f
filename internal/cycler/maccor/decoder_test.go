package maccor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

const testExport = `Maccor Export File
Date of Test: 06/15/2024 10:00:00
Rec#	Cyc#	Step	TestTime	StepTime	Amps	Volts	Amp-hr	Watt-hr	State	DPt Time	Temp 1
1	1	1	0.0	0.0	1.0	3.5	0.5	1.75	C	06/15/2024 10:00:00	25.0
2	1	2	10.0	5.0	-1.0	3.0	0.4	1.2	D	06/15/2024 10:00:10	26.0
3	1	3	0:01:40	0:00:20	0.0	3.2	0.0	0.0	R	06/15/2024 10:01:40	27.0
`

func TestDecode_Export(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	table, err := d.Decode(strings.NewReader(testExport), int64(len(testExport)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	wantStart := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if !table.StartTime.Equal(wantStart) {
		t.Errorf("Expected start time %v, got %v", wantStart, table.StartTime)
	}

	if len(table.Samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(table.Samples))
	}

	first, second, third := table.Samples[0], table.Samples[1], table.Samples[2]

	if first.DataPoint != 1 || first.CycleIndex != 1 || first.StepIndex != 1 {
		t.Errorf("Unexpected first sample indices: %d, %d, %d",
			first.DataPoint, first.CycleIndex, first.StepIndex)
	}
	if first.Current != 1.0 || first.Voltage != 3.5 {
		t.Errorf("Expected current 1.0 and voltage 3.5, got %g and %g", first.Current, first.Voltage)
	}

	// the C state routes the accumulators into the charge columns
	if first.ChargeCapacity != 0.5 || first.DischargeCapacity != 0 {
		t.Errorf("C state: expected charge 0.5 and discharge 0, got %g and %g",
			first.ChargeCapacity, first.DischargeCapacity)
	}
	if first.ChargeEnergy != 1.75 {
		t.Errorf("C state: expected charge energy 1.75, got %g", first.ChargeEnergy)
	}
	if second.ChargeCapacity != 0 || second.DischargeCapacity != 0.4 {
		t.Errorf("D state: expected charge 0 and discharge 0.4, got %g and %g",
			second.ChargeCapacity, second.DischargeCapacity)
	}

	// clock-style test time: 0:01:40 is 100 seconds
	if third.TestTime != 100 {
		t.Errorf("Expected test time 100 from clock value, got %g", third.TestTime)
	}
	if third.StepTime != 20 {
		t.Errorf("Expected step time 20 from clock value, got %g", third.StepTime)
	}

	if third.Aux["temperature"] != 27.0 {
		t.Errorf("Expected aux temperature 27, got %g", third.Aux["temperature"])
	}
	if !third.DateTime.Equal(wantStart.Add(100 * time.Second)) {
		t.Errorf("Expected datetime %v, got %v", wantStart.Add(100*time.Second), third.DateTime)
	}

	if !table.Columns.HasAll(
		celldata.ColDataPoint, celldata.ColCycleIndex, celldata.ColStepIndex,
		celldata.ColTestTime, celldata.ColCurrent, celldata.ColVoltage,
		celldata.ColChargeCapacity, celldata.ColDischargeCapacity,
		celldata.ColChargeEnergy, celldata.ColDischargeEnergy,
	) {
		t.Error("Expected all exported columns to be marked present")
	}
	if table.Columns.Has(celldata.ColInternalResistance) {
		t.Error("Internal resistance column should not be marked present")
	}
}

func TestDecode_StartTimeFallback(t *testing.T) {
	// no Date of Test line: the first sample's timestamp stands in
	export := "line one\nline two\n" +
		"Rec#\tAmps\tVolts\tDPt Time\n" +
		"1\t1.0\t3.5\t06/15/2024 12:30:00\n"

	d, _ := New(nil)
	table, err := d.Decode(strings.NewReader(export), int64(len(export)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	if !table.StartTime.Equal(want) {
		t.Errorf("Expected start time %v from first sample, got %v", want, table.StartTime)
	}
}

func TestDecode_MalformedRow(t *testing.T) {
	export := "a\nb\n" +
		"Rec#\tAmps\tVolts\n" +
		"1\tnot-a-number\t3.5\n"

	d, _ := New(nil)
	_, err := d.Decode(strings.NewReader(export), int64(len(export)))
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile for unparsable current, got %v", err)
	}
}

func TestDecode_NoHeader(t *testing.T) {
	d, _ := New(nil)
	_, err := d.Decode(strings.NewReader("only one line\n"), 14)
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile when the header row is missing, got %v", err)
	}
}

func TestDecode_CustomSeparator(t *testing.T) {
	export := "a\nb\n" +
		"Rec#;Amps;Volts\n" +
		"1;2.0;3.7\n"

	d, err := New(&Config{Separator: ";"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	table, err := d.Decode(strings.NewReader(export), int64(len(export)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if table.Samples[0].Current != 2.0 || table.Samples[0].Voltage != 3.7 {
		t.Errorf("Expected current 2.0 and voltage 3.7, got %g and %g",
			table.Samples[0].Current, table.Samples[0].Voltage)
	}
}

func TestParseSeconds(t *testing.T) {
	testCases := []struct {
		raw  string
		want float64
	}{
		{"42.5", 42.5},
		{"0:00:10", 10},
		{"0:01:40", 100},
		{"1:02:03:04", 93784}, // 1 day, 2 hours, 3 minutes, 4 seconds
	}

	for _, tc := range testCases {
		got, err := parseSeconds(tc.raw)
		if err != nil {
			t.Errorf("parseSeconds(%q) failed: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseSeconds(%q) = %g, want %g", tc.raw, got, tc.want)
		}
	}

	if _, err := parseSeconds("1:2:3:4:5"); err == nil {
		t.Error("Expected error for a five-part clock value")
	}
}

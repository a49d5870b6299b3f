package arbin

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

func buildWorkbook(t *testing.T, withStats bool) []byte {
	t.Helper()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Channel_1-008"); err != nil {
		t.Fatalf("Failed to rename sheet: %v", err)
	}

	rows := [][]interface{}{
		{"Data_Point", "Test_Time(s)", "Cycle_Index", "Step_Index", "Current(A)", "Voltage(V)", "Charge_Capacity(Ah)", "Discharge_Capacity(Ah)", "Date_Time"},
		{"1", "0.0", "1", "1", "1.0", "3.5", "0.5", "0.0", "06/15/2024 10:00:00"},
		{"2", "10.0", "1", "2", "-1.0", "3.0", "0.5", "0.4", "06/15/2024 10:00:10"},
		{"3", "20.0", "2", "1", "1.0", "3.6", "1.0", "0.4", "06/15/2024 10:00:20"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Channel_1-008", cell, &row); err != nil {
			t.Fatalf("Failed to write row %d: %v", i, err)
		}
	}

	if withStats {
		if _, err := f.NewSheet("Statistics_1-008"); err != nil {
			t.Fatalf("Failed to create statistics sheet: %v", err)
		}
		stats := [][]interface{}{
			{"Cycle_Index", "Data_Point"},
			{"1", "2"},
			{"2", "3"},
		}
		for i, row := range stats {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow("Statistics_1-008", cell, &row); err != nil {
				t.Fatalf("Failed to write statistics row %d: %v", i, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}
	return buf.Bytes()
}

func TestDecode_Workbook(t *testing.T) {
	workbook := buildWorkbook(t, true)

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	table, err := d.Decode(bytes.NewReader(workbook), int64(len(workbook)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(table.Samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(table.Samples))
	}

	first := table.Samples[0]
	if first.DataPoint != 1 || first.CycleIndex != 1 || first.StepIndex != 1 {
		t.Errorf("Unexpected first sample indices: %d, %d, %d",
			first.DataPoint, first.CycleIndex, first.StepIndex)
	}
	if first.Current != 1.0 || first.Voltage != 3.5 {
		t.Errorf("Expected current 1.0 and voltage 3.5, got %g and %g", first.Current, first.Voltage)
	}
	if first.ChargeCapacity != 0.5 || first.DischargeCapacity != 0 {
		t.Errorf("Expected charge 0.5 and discharge 0, got %g and %g",
			first.ChargeCapacity, first.DischargeCapacity)
	}

	wantStart := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if !table.StartTime.Equal(wantStart) {
		t.Errorf("Expected start time %v, got %v", wantStart, table.StartTime)
	}

	if !table.Columns.HasAll(
		celldata.ColDataPoint, celldata.ColTestTime, celldata.ColCycleIndex,
		celldata.ColStepIndex, celldata.ColCurrent, celldata.ColVoltage,
		celldata.ColChargeCapacity, celldata.ColDischargeCapacity, celldata.ColDateTime,
	) {
		t.Error("Expected all workbook columns to be marked present")
	}

	refs := d.ReferenceDataPoints()
	if len(refs) != 2 || refs[0] != 2 || refs[1] != 3 {
		t.Errorf("Expected reference data points [2 3], got %v", refs)
	}
}

func TestDecode_NoStatisticsSheet(t *testing.T) {
	workbook := buildWorkbook(t, false)

	d, _ := New(nil)
	if _, err := d.Decode(bytes.NewReader(workbook), int64(len(workbook))); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if refs := d.ReferenceDataPoints(); refs != nil {
		t.Errorf("Expected no reference data points without a statistics sheet, got %v", refs)
	}
}

func TestDecode_NotAWorkbook(t *testing.T) {
	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader([]byte("plain text, not a zip archive")), 29)
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile, got %v", err)
	}
}

func TestDecode_NoChannelSheet(t *testing.T) {
	f := excelize.NewFile()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}

	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile when no channel sheet exists, got %v", err)
	}
}

func TestNormalizeHeader(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"Data_Point", "data_point"},
		{"Test_Time(s)", "test_time"},
		{"Charge_Capacity(Ah)", "charge_capacity"},
		{"  Voltage(V)  ", "voltage"},
	}
	for _, tc := range testCases {
		if got := normalizeHeader(tc.in); got != tc.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

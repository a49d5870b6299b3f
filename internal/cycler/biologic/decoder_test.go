package biologic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

func padded(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func makeModule(shortName string, version uint32, date string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(moduleMarker)
	buf.Write(padded(shortName, 10))
	buf.Write(padded("test module", 25))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	_ = binary.Write(&buf, binary.LittleEndian, version)
	buf.Write(padded(date, 8))
	buf.Write(payload)
	return buf.Bytes()
}

func makeDataPayload(codes []uint16, rows [][]float64) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(rows)))
	buf.WriteByte(byte(len(codes)))
	for _, code := range codes {
		_ = binary.Write(&buf, binary.LittleEndian, code)
	}
	for _, row := range rows {
		for _, v := range row {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	}
	return buf.Bytes()
}

func makeFile(modules ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(padded(fileStamp, fileStampSize))
	for _, m := range modules {
		buf.Write(m)
	}
	return buf.Bytes()
}

func TestDecode_V0(t *testing.T) {
	// test_time, voltage, current, cycle, step, combined capacity, aux temp
	codes := []uint16{4, 6, 7, 9, 8, 20, 21}
	rows := [][]float64{
		{0, 3.5, 1.0, 1, 1, 2.5, 25.0},
		{10, 3.0, -1.0, 1, 2, -1.5, 26.0},
	}

	file := makeFile(
		makeModule(moduleSettings, 0, "06.15.24", nil),
		makeModule(moduleData, 0, "06.15.24", makeDataPayload(codes, rows)),
	)

	d, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	table, err := d.Decode(bytes.NewReader(file), int64(len(file)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	wantStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	if !table.StartTime.Equal(wantStart) {
		t.Errorf("Expected start time %v, got %v", wantStart, table.StartTime)
	}

	if len(table.Samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(table.Samples))
	}

	first, second := table.Samples[0], table.Samples[1]

	if first.DataPoint != 1 || second.DataPoint != 2 {
		t.Errorf("Expected data points 1 and 2, got %d and %d", first.DataPoint, second.DataPoint)
	}
	if first.Voltage != 3.5 || first.Current != 1.0 {
		t.Errorf("Expected voltage 3.5 and current 1.0, got %g and %g", first.Voltage, first.Current)
	}
	if first.CycleIndex != 1 || second.StepIndex != 2 {
		t.Errorf("Expected cycle 1 and step 2, got %d and %d", first.CycleIndex, second.StepIndex)
	}

	// the signed combined accumulator splits by sign
	if first.ChargeCapacity != 2.5 || first.DischargeCapacity != 0 {
		t.Errorf("Positive accumulator: expected charge 2.5 and discharge 0, got %g and %g",
			first.ChargeCapacity, first.DischargeCapacity)
	}
	if second.ChargeCapacity != 0 || second.DischargeCapacity != 1.5 {
		t.Errorf("Negative accumulator: expected charge 0 and discharge 1.5, got %g and %g",
			second.ChargeCapacity, second.DischargeCapacity)
	}

	if first.Aux["temperature"] != 25.0 {
		t.Errorf("Expected aux temperature 25, got %g", first.Aux["temperature"])
	}

	// wall-clock timestamps derive from start time plus elapsed test time
	if !second.DateTime.Equal(wantStart.Add(10 * time.Second)) {
		t.Errorf("Expected datetime %v, got %v", wantStart.Add(10*time.Second), second.DateTime)
	}

	if !table.Columns.HasAll(celldata.ColChargeCapacity, celldata.ColDischargeCapacity, celldata.ColDateTime) {
		t.Error("Expected charge capacity, discharge capacity and datetime columns to be marked present")
	}
	// the file never carried energy columns; they must be absent, and the
	// values marked not-present rather than zero
	if table.Columns.Has(celldata.ColChargeEnergy) {
		t.Error("Charge energy column should not be marked present")
	}
	if celldata.IsPresent(first.ChargeEnergy) {
		t.Errorf("Expected not-present charge energy, got %g", first.ChargeEnergy)
	}
}

func TestDecode_V2ColumnMap(t *testing.T) {
	// version 2 moved the cycle counter to code 10 and the combined
	// capacity accumulator to code 23
	codes := []uint16{4, 10, 23}
	rows := [][]float64{{0, 7, 3.0}}

	file := makeFile(makeModule(moduleData, 2, "06.15.24", makeDataPayload(codes, rows)))

	d, _ := New(nil)
	table, err := d.Decode(bytes.NewReader(file), int64(len(file)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if table.Samples[0].CycleIndex != 7 {
		t.Errorf("Expected cycle 7 from code 10, got %d", table.Samples[0].CycleIndex)
	}
	if table.Samples[0].ChargeCapacity != 3.0 {
		t.Errorf("Expected charge capacity 3.0 from code 23, got %g", table.Samples[0].ChargeCapacity)
	}
}

func TestDecode_MissingStamp(t *testing.T) {
	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader([]byte("not a biologic file")), 19)
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile, got %v", err)
	}
}

func TestDecode_ModuleLengthOverrun(t *testing.T) {
	m := makeModule(moduleData, 0, "06.15.24", []byte{1, 2, 3})
	// declare more payload bytes than the file holds
	binary.LittleEndian.PutUint32(m[41:45], 1000)

	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader(makeFile(m)), 0)
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile for length overrun, got %v", err)
	}
}

func TestDecode_NoDataModule(t *testing.T) {
	file := makeFile(makeModule(moduleSettings, 0, "06.15.24", nil))

	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader(file), int64(len(file)))
	if !errors.Is(err, cycler.ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile when no data module exists, got %v", err)
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	file := makeFile(makeModule(moduleData, 99, "06.15.24", makeDataPayload([]uint16{4}, nil)))

	d, _ := New(nil)
	_, err := d.Decode(bytes.NewReader(file), int64(len(file)))
	if !errors.Is(err, cycler.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for version 99, got %v", err)
	}
}

func TestDecode_Epsilons(t *testing.T) {
	custom := celldata.DefaultEpsilons()
	custom.CurrentHard = 1e-9

	d, err := New(&Config{Epsilons: &custom})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Epsilons().CurrentHard != 1e-9 {
		t.Errorf("Expected configured current threshold 1e-9, got %g", d.Epsilons().CurrentHard)
	}
	if d.Instrument() != Instrument {
		t.Errorf("Expected instrument %q, got %q", Instrument, d.Instrument())
	}
}

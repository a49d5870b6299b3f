// Package arbin decodes the xlsx workbook exports written by Arbin cyclers.
// The workbook carries one channel-data sheet with the per-sample series and
// one statistics sheet holding the vendor's own per-cycle rows, identified
// by their data point numbers.
package arbin

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

const (
	// Instrument is the instrument family name.
	Instrument = "arbin"

	channelSheetPrefix    = "Channel"
	statisticsSheetPrefix = "Statistic"

	datetimeLayout = "01/02/2006 15:04:05"
)

// Config carries the arbin decoder options.
type Config struct {
	// DataSheet overrides channel sheet discovery by prefix.
	DataSheet string `yaml:"dataSheet" json:"dataSheet"`

	// StatsSheet overrides statistics sheet discovery by prefix.
	StatsSheet string `yaml:"statsSheet" json:"statsSheet"`

	// HeaderRow is the zero-based header row index on the data sheet.
	HeaderRow int `yaml:"headerRow" json:"headerRow"`

	// Epsilons are the classification thresholds for this instrument.
	Epsilons *celldata.Epsilons `yaml:"epsilons" json:"epsilons"`
}

// Decoder decodes Arbin xlsx workbooks into canonical RawTables.
type Decoder struct {
	dataSheet  string
	statsSheet string
	headerRow  int
	epsilons   celldata.Epsilons

	refPoints []int64
}

// New creates an arbin Decoder. A nil config selects the defaults.
func New(config *Config) (*Decoder, error) {
	d := Decoder{epsilons: celldata.DefaultEpsilons()}

	if config != nil {
		d.dataSheet = config.DataSheet
		d.statsSheet = config.StatsSheet
		d.headerRow = config.HeaderRow
		if config.Epsilons != nil {
			d.epsilons = *config.Epsilons
		}
	}

	return &d, nil
}

func (d *Decoder) Instrument() string { return Instrument }

func (d *Decoder) Epsilons() celldata.Epsilons { return d.epsilons }

// ReferenceDataPoints returns the data points of the vendor statistics sheet
// from the most recent Decode call. Valid for single-file runs; a multi-file
// merge renumbers data points and invalidates the reference.
func (d *Decoder) ReferenceDataPoints() []int64 { return d.refPoints }

// vendor header names normalized to lower case with unit suffixes stripped
var headerColumns = map[string]celldata.Column{
	"data_point":          celldata.ColDataPoint,
	"test_time":           celldata.ColTestTime,
	"step_time":           celldata.ColStepTime,
	"date_time":           celldata.ColDateTime,
	"cycle_index":         celldata.ColCycleIndex,
	"step_index":          celldata.ColStepIndex,
	"sub_step_index":      celldata.ColSubStepIndex,
	"current":             celldata.ColCurrent,
	"voltage":             celldata.ColVoltage,
	"charge_capacity":     celldata.ColChargeCapacity,
	"discharge_capacity":  celldata.ColDischargeCapacity,
	"charge_energy":       celldata.ColChargeEnergy,
	"discharge_energy":    celldata.ColDischargeEnergy,
	"internal_resistance": celldata.ColInternalResistance,
}

// Decode reads one Arbin workbook: the channel sheet becomes the RawTable,
// the statistics sheet becomes the per-cycle reference data point set.
func (d *Decoder) Decode(r io.Reader, _ int64) (*celldata.RawTable, error) {
	d.refPoints = nil

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", cycler.ErrMalformedFile, err)
	}
	defer f.Close()

	dataSheet, err := findSheet(f, d.dataSheet, channelSheetPrefix)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(dataSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %s: %v", cycler.ErrMalformedFile, dataSheet, err)
	}
	if len(rows) <= d.headerRow {
		return nil, fmt.Errorf("%w: sheet %s has no header row", cycler.ErrMalformedFile, dataSheet)
	}

	layout := parseHeader(rows[d.headerRow])
	if len(layout) == 0 {
		return nil, fmt.Errorf("%w: sheet %s has no recognizable columns", cycler.ErrMalformedFile, dataSheet)
	}

	table := &celldata.RawTable{Columns: make(celldata.ColumnSet)}
	table.Columns.Add(celldata.ColDataPoint)
	for _, col := range layout {
		table.Columns.Add(col)
	}

	for i, row := range rows[d.headerRow+1:] {
		if emptyRow(row) {
			continue
		}
		sample, err := parseRow(row, layout, int64(len(table.Samples)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %s row %d: %v", cycler.ErrMalformedFile, dataSheet, d.headerRow+2+i, err)
		}
		table.Samples = append(table.Samples, sample)
	}

	if len(table.Samples) > 0 && !table.Samples[0].DateTime.IsZero() {
		table.StartTime = table.Samples[0].DateTime
	}

	if statsSheet, err := findSheet(f, d.statsSheet, statisticsSheetPrefix); err == nil {
		d.refPoints = readStatistics(f, statsSheet)
	}

	return table, nil
}

func findSheet(f *excelize.File, override, prefix string) (string, error) {
	if override != "" {
		prefix = override
	}
	for _, name := range f.GetSheetList() {
		if strings.HasPrefix(name, prefix) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no sheet with prefix %q", cycler.ErrMalformedFile, prefix)
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseHeader(header []string) map[int]celldata.Column {
	layout := make(map[int]celldata.Column)
	for i, name := range header {
		if col, ok := headerColumns[normalizeHeader(name)]; ok {
			layout[i] = col
		}
	}
	return layout
}

// normalizeHeader lowers the case and strips a unit suffix such as "(s)" or
// "(Ah)" from a vendor column name.
func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i > 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

func parseRow(row []string, layout map[int]celldata.Column, fallbackDataPoint int64) (celldata.Sample, error) {
	s := celldata.Sample{
		DataPoint:          fallbackDataPoint,
		TestTime:           celldata.NotPresent(),
		StepTime:           celldata.NotPresent(),
		Current:            celldata.NotPresent(),
		Voltage:            celldata.NotPresent(),
		ChargeCapacity:     celldata.NotPresent(),
		DischargeCapacity:  celldata.NotPresent(),
		ChargeEnergy:       celldata.NotPresent(),
		DischargeEnergy:    celldata.NotPresent(),
		InternalResistance: celldata.NotPresent(),
	}

	for i, col := range layout {
		if i >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[i])
		if raw == "" {
			continue
		}

		switch col {
		case celldata.ColDataPoint:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return s, fmt.Errorf("data point %q: %w", raw, err)
			}
			s.DataPoint = v

		case celldata.ColCycleIndex:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return s, fmt.Errorf("cycle index %q: %w", raw, err)
			}
			s.CycleIndex = v

		case celldata.ColStepIndex:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return s, fmt.Errorf("step index %q: %w", raw, err)
			}
			s.StepIndex = v

		case celldata.ColSubStepIndex:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return s, fmt.Errorf("sub step index %q: %w", raw, err)
			}
			s.SubStepIndex = v

		case celldata.ColDateTime:
			t, err := parseDateTime(raw)
			if err != nil {
				return s, fmt.Errorf("datetime %q: %w", raw, err)
			}
			s.DateTime = t

		default:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return s, fmt.Errorf("%s %q: %w", col, raw, err)
			}
			setFloat(&s, col, v)
		}
	}

	return s, nil
}

// parseDateTime accepts either a formatted timestamp or an Excel date serial.
func parseDateTime(raw string) (time.Time, error) {
	if t, err := time.Parse(datetimeLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t, nil
	}

	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp")
	}
	return excelize.ExcelDateToTime(serial, false)
}

func setFloat(s *celldata.Sample, col celldata.Column, v float64) {
	switch col {
	case celldata.ColTestTime:
		s.TestTime = v
	case celldata.ColStepTime:
		s.StepTime = v
	case celldata.ColCurrent:
		s.Current = v
	case celldata.ColVoltage:
		s.Voltage = v
	case celldata.ColChargeCapacity:
		s.ChargeCapacity = v
	case celldata.ColDischargeCapacity:
		s.DischargeCapacity = v
	case celldata.ColChargeEnergy:
		s.ChargeEnergy = v
	case celldata.ColDischargeEnergy:
		s.DischargeEnergy = v
	case celldata.ColInternalResistance:
		s.InternalResistance = v
	}
}

// readStatistics collects the Data_Point column of the vendor statistics
// sheet. Failures here are not fatal: the summary aggregator falls back to
// last-sample-per-cycle when no reference set is available.
func readStatistics(f *excelize.File, sheet string) []int64 {
	rows, err := f.GetRows(sheet)
	if err != nil || len(rows) < 2 {
		return nil
	}

	col := -1
	for i, name := range rows[0] {
		if normalizeHeader(name) == "data_point" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil
	}

	var points []int64
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if v, err := strconv.ParseInt(strings.TrimSpace(row[col]), 10, 64); err == nil {
			points = append(points, v)
		}
	}
	return points
}

// Package maccor decodes the tab-delimited text exports written by Maccor
// cyclers. The file starts with a short free-form preamble, then a header
// row naming the vendor columns, then one data row per sample.
package maccor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

const (
	// Instrument is the instrument family name.
	Instrument = "maccor"

	// DefaultSeparator is the field separator Maccor exports use.
	DefaultSeparator = "\t"

	// DefaultHeaderRow is the zero-based line index of the column header row.
	DefaultHeaderRow = 2

	// DefaultChunkSize is the scanner buffer size in bytes for long lines.
	DefaultChunkSize = 1 << 20

	dateOfTestPrefix = "Date of Test:"
	datetimeLayout   = "01/02/2006 15:04:05"
)

// Config carries the maccor decoder options.
type Config struct {
	Separator string             `yaml:"separator" json:"separator"`
	HeaderRow int                `yaml:"headerRow" json:"headerRow"`
	ChunkSize int                `yaml:"chunkSize" json:"chunkSize"`
	Epsilons  *celldata.Epsilons `yaml:"epsilons" json:"epsilons"`
}

// Decoder decodes Maccor delimited-text files into canonical RawTables.
type Decoder struct {
	separator string
	headerRow int
	chunkSize int
	epsilons  celldata.Epsilons
}

// New creates a maccor Decoder. A nil config selects the defaults.
func New(config *Config) (*Decoder, error) {
	d := Decoder{
		separator: DefaultSeparator,
		headerRow: DefaultHeaderRow,
		chunkSize: DefaultChunkSize,
		epsilons:  celldata.DefaultEpsilons(),
	}

	if config != nil {
		if config.Separator != "" {
			d.separator = config.Separator
		}
		if config.HeaderRow > 0 {
			d.headerRow = config.HeaderRow
		}
		if config.ChunkSize > 0 {
			d.chunkSize = config.ChunkSize
		}
		if config.Epsilons != nil {
			d.epsilons = *config.Epsilons
		}
	}

	return &d, nil
}

func (d *Decoder) Instrument() string { return Instrument }

func (d *Decoder) Epsilons() celldata.Epsilons { return d.epsilons }

// vendor header names, normalized to lower case without surrounding spaces
var headerColumns = map[string]celldata.Column{
	"rec":       celldata.ColDataPoint,
	"rec#":      celldata.ColDataPoint,
	"cyc#":      celldata.ColCycleIndex,
	"cycle":     celldata.ColCycleIndex,
	"step":      celldata.ColStepIndex,
	"testtime":  celldata.ColTestTime,
	"steptime":  celldata.ColStepTime,
	"amps":      celldata.ColCurrent,
	"current":   celldata.ColCurrent,
	"volts":     celldata.ColVoltage,
	"voltage":   celldata.ColVoltage,
	"dpt time":  celldata.ColDateTime,
	"dcir/ohms": celldata.ColInternalResistance,
}

// columns that need the State column to resolve direction
const (
	headerCapacity = "amp-hr"
	headerEnergy   = "watt-hr"
	headerState    = "state"
	headerTemp     = "temp 1"
)

// Decode reads one Maccor text export. The preamble before the header row is
// scanned for the recorded test start date; data rows follow the header row.
func (d *Decoder) Decode(r io.Reader, _ int64) (*celldata.RawTable, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), d.chunkSize)

	table := &celldata.RawTable{Columns: make(celldata.ColumnSet)}

	var layout *rowLayout
	var lineNo int

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		lineNo++

		switch {
		case lineNo-1 < d.headerRow:
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), dateOfTestPrefix); ok {
				if t, err := time.Parse(datetimeLayout, strings.TrimSpace(rest)); err == nil {
					table.StartTime = t
				}
			}

		case lineNo-1 == d.headerRow:
			var err error
			if layout, err = parseHeader(line, d.separator); err != nil {
				return nil, err
			}
			layout.markColumns(table.Columns)

		default:
			if strings.TrimSpace(line) == "" {
				continue
			}
			sample, err := layout.parseRow(line, d.separator, int64(len(table.Samples)+1))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", cycler.ErrMalformedFile, lineNo, err)
			}
			table.Samples = append(table.Samples, sample)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if layout == nil {
		return nil, fmt.Errorf("%w: no header row found at line %d", cycler.ErrMalformedFile, d.headerRow+1)
	}

	if table.StartTime.IsZero() && len(table.Samples) > 0 && !table.Samples[0].DateTime.IsZero() {
		table.StartTime = table.Samples[0].DateTime
	}

	return table, nil
}

// rowLayout maps field positions of one file to canonical columns.
type rowLayout struct {
	fields   map[int]celldata.Column
	capacity int // Amp-hr position, -1 when absent
	energy   int // Watt-hr position, -1 when absent
	state    int // State position, -1 when absent
	temp     int // Temp 1 position, -1 when absent
}

func parseHeader(line, separator string) (*rowLayout, error) {
	l := rowLayout{
		fields:   make(map[int]celldata.Column),
		capacity: -1,
		energy:   -1,
		state:    -1,
		temp:     -1,
	}

	for i, name := range strings.Split(line, separator) {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case headerCapacity:
			l.capacity = i
		case headerEnergy:
			l.energy = i
		case headerState:
			l.state = i
		case headerTemp:
			l.temp = i
		default:
			if col, ok := headerColumns[name]; ok {
				l.fields[i] = col
			}
		}
	}

	if len(l.fields) == 0 && l.capacity < 0 {
		return nil, fmt.Errorf("%w: header row has no recognizable columns", cycler.ErrMalformedFile)
	}
	return &l, nil
}

func (l *rowLayout) markColumns(cs celldata.ColumnSet) {
	cs.Add(celldata.ColDataPoint)
	for _, col := range l.fields {
		cs.Add(col)
	}
	if l.capacity >= 0 {
		cs.Add(celldata.ColChargeCapacity)
		cs.Add(celldata.ColDischargeCapacity)
	}
	if l.energy >= 0 {
		cs.Add(celldata.ColChargeEnergy)
		cs.Add(celldata.ColDischargeEnergy)
	}
}

func (l *rowLayout) parseRow(line, separator string, fallbackDataPoint int64) (celldata.Sample, error) {
	fields := strings.Split(line, separator)

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

	state := ""
	if l.state >= 0 && l.state < len(fields) {
		state = strings.ToUpper(strings.TrimSpace(fields[l.state]))
	}

	for i, col := range l.fields {
		if i >= len(fields) {
			continue
		}
		raw := strings.TrimSpace(fields[i])
		if raw == "" {
			continue
		}

		switch col {
		case celldata.ColDataPoint:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return s, fmt.Errorf("record number %q: %w", raw, err)
			}
			s.DataPoint = v

		case celldata.ColCycleIndex, celldata.ColStepIndex:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return s, fmt.Errorf("%s %q: %w", col, raw, err)
			}
			if col == celldata.ColCycleIndex {
				s.CycleIndex = v
			} else {
				s.StepIndex = v
			}

		case celldata.ColTestTime, celldata.ColStepTime:
			v, err := parseSeconds(raw)
			if err != nil {
				return s, fmt.Errorf("%s %q: %w", col, raw, err)
			}
			if col == celldata.ColTestTime {
				s.TestTime = v
			} else {
				s.StepTime = v
			}

		case celldata.ColDateTime:
			t, err := time.Parse(datetimeLayout, raw)
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

	if err := l.splitDirectional(fields, state, &s); err != nil {
		return s, err
	}

	if l.temp >= 0 && l.temp < len(fields) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(fields[l.temp]), 64); err == nil {
			s.Aux = map[string]float64{"temperature": v}
		}
	}

	return s, nil
}

// splitDirectional resolves the single Amp-hr / Watt-hr accumulators into
// charge and discharge columns using the State flag (C, D or R).
func (l *rowLayout) splitDirectional(fields []string, state string, s *celldata.Sample) error {
	if l.capacity >= 0 && l.capacity < len(fields) {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[l.capacity]), 64)
		if err != nil {
			return fmt.Errorf("capacity %q: %w", fields[l.capacity], err)
		}
		s.ChargeCapacity, s.DischargeCapacity = splitByState(v, state)
	}

	if l.energy >= 0 && l.energy < len(fields) {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[l.energy]), 64)
		if err != nil {
			return fmt.Errorf("energy %q: %w", fields[l.energy], err)
		}
		s.ChargeEnergy, s.DischargeEnergy = splitByState(v, state)
	}

	return nil
}

func splitByState(v float64, state string) (charge, discharge float64) {
	switch state {
	case "C":
		return v, 0
	case "D":
		return 0, v
	default:
		// rest or unknown state: the signed value decides
		if v >= 0 {
			return v, 0
		}
		return 0, -v
	}
}

func setFloat(s *celldata.Sample, col celldata.Column, v float64) {
	switch col {
	case celldata.ColCurrent:
		s.Current = v
	case celldata.ColVoltage:
		s.Voltage = v
	case celldata.ColInternalResistance:
		s.InternalResistance = v
	}
}

// parseSeconds accepts either plain seconds or a d:hh:mm:ss clock value.
func parseSeconds(raw string) (float64, error) {
	if !strings.Contains(raw, ":") {
		return strconv.ParseFloat(raw, 64)
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 4 {
		return 0, fmt.Errorf("invalid clock value")
	}

	var days float64
	if len(parts) == 4 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, err
		}
		days = v
		parts = parts[1:]
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, err
		}
		total = total*60 + v
	}
	return total + days*86400, nil
}

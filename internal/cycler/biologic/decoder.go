// Package biologic decodes the modular binary export files written by
// BioLogic-style potentiostats. A file consists of a fixed ASCII stamp
// followed by length-prefixed modules; the data module carries a column
// layout described by uint16 vendor codes whose meaning depends on the
// module schema version.
package biologic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

const (
	// Instrument is the instrument family name.
	Instrument = "biologic"

	fileStamp     = "BIO-LOGIC MODULAR FILE\x1a"
	fileStampSize = 48

	moduleMarker = "MODULE"

	// module header: marker(6) + short name(10) + long name(25) +
	// length(4) + version(4) + date(8)
	moduleHeaderSize = 57

	moduleSettings = "VMP Set"
	moduleData     = "VMP data"
	moduleLog      = "VMP LOG"

	dateLayout = "01.02.06"
)

// Config carries the biologic decoder options.
type Config struct {
	// Epsilons are the classification thresholds for this instrument.
	// Zero value means celldata.DefaultEpsilons.
	Epsilons *celldata.Epsilons `yaml:"epsilons" json:"epsilons"`
}

// Decoder decodes biologic modular files into canonical RawTables.
type Decoder struct {
	epsilons celldata.Epsilons
}

// New creates a biologic Decoder.
func New(config *Config) (*Decoder, error) {
	d := Decoder{epsilons: celldata.DefaultEpsilons()}
	if config != nil && config.Epsilons != nil {
		d.epsilons = *config.Epsilons
	}
	return &d, nil
}

func (d *Decoder) Instrument() string { return Instrument }

func (d *Decoder) Epsilons() celldata.Epsilons { return d.epsilons }

type module struct {
	shortName string
	longName  string
	version   uint32
	date      string
	payload   []byte
	offset    int // byte offset of the module header in the file
}

// Decode reads one biologic file. It verifies the file stamp, walks the
// length-prefixed modules, and maps vendor column codes to canonical fields
// using the per-version lookup tables.
func (d *Decoder) Decode(r io.Reader, _ int64) (*celldata.RawTable, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if len(raw) < fileStampSize || !bytes.HasPrefix(raw, []byte(fileStamp)) {
		return nil, fmt.Errorf("%w: missing file stamp", cycler.ErrMalformedFile)
	}

	modules, err := splitModules(raw[fileStampSize:], fileStampSize)
	if err != nil {
		return nil, err
	}

	var startTime time.Time
	var data *module

	for i := range modules {
		switch modules[i].shortName {
		case moduleSettings:
			if t, err := time.Parse(dateLayout, modules[i].date); err == nil {
				startTime = t
			}
		case moduleData:
			data = &modules[i]
		case moduleLog:
			// acquisition log, nothing the pipeline needs
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%w: no data module", cycler.ErrMalformedFile)
	}

	columns, ok := columnsByVersion[data.version]
	if !ok {
		return nil, fmt.Errorf("%w: data module version %d", cycler.ErrUnsupportedFormat, data.version)
	}

	table, err := decodeDataModule(data, columns, startTime)
	if err != nil {
		return nil, err
	}

	table.StartTime = startTime
	return table, nil
}

// splitModules iterates length-prefixed modules until the block is exhausted.
// A module whose declared length overruns the remaining bytes is a structural
// violation and reported with its byte offset.
func splitModules(block []byte, base int) ([]module, error) {
	var modules []module

	for pos := 0; pos < len(block); {
		rest := block[pos:]
		if len(rest) < moduleHeaderSize {
			return nil, fmt.Errorf("%w: truncated module header at offset %d", cycler.ErrMalformedFile, base+pos)
		}
		if !bytes.HasPrefix(rest, []byte(moduleMarker)) {
			return nil, fmt.Errorf("%w: no module marker at offset %d", cycler.ErrMalformedFile, base+pos)
		}

		m := module{
			shortName: trimPadded(rest[6:16]),
			longName:  trimPadded(rest[16:41]),
			version:   binary.LittleEndian.Uint32(rest[45:49]),
			date:      trimPadded(rest[49:57]),
			offset:    base + pos,
		}

		length := int(binary.LittleEndian.Uint32(rest[41:45]))
		if moduleHeaderSize+length > len(rest) {
			return nil, fmt.Errorf("%w: module %q at offset %d declares %d payload bytes, %d remain",
				cycler.ErrMalformedFile, m.shortName, m.offset, length, len(rest)-moduleHeaderSize)
		}

		m.payload = rest[moduleHeaderSize : moduleHeaderSize+length]
		modules = append(modules, m)
		pos += moduleHeaderSize + length
	}

	return modules, nil
}

func decodeDataModule(m *module, columns map[uint16]vendorColumn, startTime time.Time) (*celldata.RawTable, error) {
	p := m.payload
	if len(p) < 5 {
		return nil, fmt.Errorf("%w: data module at offset %d too short", cycler.ErrMalformedFile, m.offset)
	}

	rowCount := int(binary.LittleEndian.Uint32(p[0:4]))
	colCount := int(p[4])

	headerSize := 5 + 2*colCount
	if len(p) < headerSize {
		return nil, fmt.Errorf("%w: data module at offset %d truncated column list", cycler.ErrMalformedFile, m.offset)
	}

	codes := make([]uint16, colCount)
	for i := 0; i < colCount; i++ {
		codes[i] = binary.LittleEndian.Uint16(p[5+2*i : 7+2*i])
	}

	rowSize := 8 * colCount
	if len(p)-headerSize != rowCount*rowSize {
		return nil, fmt.Errorf("%w: data module at offset %d holds %d payload bytes, want %d for %d rows",
			cycler.ErrMalformedFile, m.offset, len(p)-headerSize, rowCount*rowSize, rowCount)
	}

	table := &celldata.RawTable{
		Samples: make([]celldata.Sample, 0, rowCount),
		Columns: make(celldata.ColumnSet),
	}
	table.Columns.Add(celldata.ColDataPoint)

	for _, code := range codes {
		vc, ok := columns[code]
		if !ok {
			continue // unknown vendor code, value is read and dropped
		}
		switch vc.kind {
		case kindField:
			table.Columns.Add(vc.field)
		case kindCombinedCapacity:
			table.Columns.Add(celldata.ColChargeCapacity)
			table.Columns.Add(celldata.ColDischargeCapacity)
		}
	}
	if table.Columns.Has(celldata.ColTestTime) && !startTime.IsZero() {
		table.Columns.Add(celldata.ColDateTime)
	}

	body := p[headerSize:]
	for row := 0; row < rowCount; row++ {
		s := newSample(int64(row + 1))

		for i, code := range codes {
			bits := binary.LittleEndian.Uint64(body[row*rowSize+8*i : row*rowSize+8*i+8])
			value := math.Float64frombits(bits)

			vc, ok := columns[code]
			if !ok {
				continue
			}

			switch vc.kind {
			case kindField:
				setField(&s, vc.field, value)
			case kindCombinedCapacity:
				// The accumulator is signed: positive while charging,
				// negative while discharging.
				if value >= 0 {
					s.ChargeCapacity = value
					s.DischargeCapacity = 0
				} else {
					s.ChargeCapacity = 0
					s.DischargeCapacity = -value
				}
			case kindAux:
				if s.Aux == nil {
					s.Aux = make(map[string]float64, 1)
				}
				s.Aux[vc.aux] = value
			}
		}

		if table.Columns.Has(celldata.ColDateTime) {
			s.DateTime = startTime.Add(time.Duration(s.TestTime * float64(time.Second)))
		}

		table.Samples = append(table.Samples, s)
	}

	return table, nil
}

func newSample(dataPoint int64) celldata.Sample {
	return celldata.Sample{
		DataPoint:          dataPoint,
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
}

func setField(s *celldata.Sample, field celldata.Column, value float64) {
	switch field {
	case celldata.ColTestTime:
		s.TestTime = value
	case celldata.ColStepTime:
		s.StepTime = value
	case celldata.ColCycleIndex:
		s.CycleIndex = int(value)
	case celldata.ColStepIndex:
		s.StepIndex = int(value)
	case celldata.ColSubStepIndex:
		s.SubStepIndex = int(value)
	case celldata.ColCurrent:
		s.Current = value
	case celldata.ColVoltage:
		s.Voltage = value
	case celldata.ColChargeCapacity:
		s.ChargeCapacity = value
	case celldata.ColDischargeCapacity:
		s.DischargeCapacity = value
	case celldata.ColChargeEnergy:
		s.ChargeEnergy = value
	case celldata.ColDischargeEnergy:
		s.DischargeEnergy = value
	case celldata.ColInternalResistance:
		s.InternalResistance = value
	}
}

func trimPadded(b []byte) string {
	return strings.TrimRight(strings.TrimRight(string(b), "\x00"), " ")
}

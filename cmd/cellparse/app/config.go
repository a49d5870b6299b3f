package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oddvarlia/cellcycler/internal/container"
	"github.com/oddvarlia/cellcycler/internal/cycler/arbin"
	"github.com/oddvarlia/cellcycler/internal/cycler/biologic"
	"github.com/oddvarlia/cellcycler/internal/cycler/maccor"
)

const (
	InstrumentBiologic = biologic.Instrument
	InstrumentMaccor   = maccor.Instrument
	InstrumentArbin    = arbin.Instrument
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Storage  StorageConfig `yaml:"storage"`
	Cells    []CellConfig  `yaml:"cells"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// StorageConfig represents container storage settings
type StorageConfig struct {
	// DataDirectory is where containers are written, one per cell.
	DataDirectory string `yaml:"dataDirectory"`

	// StaleCriterion selects the provenance attribute compared when deciding
	// whether an existing container is still fresh: size, mtime or atime.
	StaleCriterion string `yaml:"staleCriterion"`
}

// CellConfig represents one cell: its raw files, its instrument, and the
// properties the summary aggregation needs.
type CellConfig struct {
	Name        string   `yaml:"name"`
	Enabled     bool     `yaml:"enabled"`
	Instrument  string   `yaml:"instrument"`
	RawFiles    []string `yaml:"rawFiles"`
	MaxFileSize int64    `yaml:"maxFileSize"`

	Mass            float64 `yaml:"mass"`            // active material mass in mg
	NominalCapacity float64 `yaml:"nominalCapacity"` // nominal capacity in mAh
	CyclingMode     string  `yaml:"cyclingMode"`     // discharge_first or charge_first

	Biologic *biologic.Config `yaml:"biologic"`
	Maccor   *maccor.Config   `yaml:"maccor"`
	Arbin    *arbin.Config    `yaml:"arbin"`
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	for i := range config.Cells {
		cell := &config.Cells[i]
		if !cell.Enabled {
			continue
		}
		if cell.Name == "" {
			return nil, fmt.Errorf("cell %d has no name", i)
		}
		if len(cell.RawFiles) == 0 {
			return nil, fmt.Errorf("cell %s has no raw files", cell.Name)
		}
		switch cell.Instrument {
		case InstrumentBiologic, InstrumentMaccor, InstrumentArbin:
		default:
			return nil, fmt.Errorf("cell %s: unknown instrument '%s'", cell.Name, cell.Instrument)
		}
	}

	switch config.Storage.StaleCriterion {
	case "", string(container.CompareSize), string(container.CompareMTime), string(container.CompareATime):
	default:
		return nil, fmt.Errorf("unknown stale criterion '%s'", config.Storage.StaleCriterion)
	}

	return &config, nil
}

func (c *StorageConfig) criterion() container.StalenessCriterion {
	if c.StaleCriterion == "" {
		return container.CompareSize
	}
	return container.StalenessCriterion(c.StaleCriterion)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/container"
	"github.com/oddvarlia/cellcycler/internal/cycler"
	"github.com/oddvarlia/cellcycler/internal/cycler/arbin"
	"github.com/oddvarlia/cellcycler/internal/cycler/biologic"
	"github.com/oddvarlia/cellcycler/internal/cycler/maccor"
	"github.com/oddvarlia/cellcycler/internal/steps"
	"github.com/oddvarlia/cellcycler/internal/summary"
)

const storageDir = "data"

// Run processes every enabled cell, one worker per cell. Each worker owns
// its tables and container path exclusively, so no coordination is needed
// beyond waiting for all of them.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dataDir, err := resolveDataDir(&config.Storage)
	if err != nil {
		return err
	}

	var cells []CellConfig
	for _, cell := range config.Cells {
		if cell.Enabled {
			cells = append(cells, cell)
		}
	}
	if len(cells) == 0 {
		return fmt.Errorf("no cells specified in configuration")
	}

	errs := make([]error, len(cells))

	var wg sync.WaitGroup
	for i, cell := range cells {
		wg.Add(1)
		go func(i int, cell CellConfig) {
			defer wg.Done()

			log := logger.With(slog.String("cell", cell.Name))
			if err := processCell(ctx, cell, dataDir, config.Storage.criterion(), log); err != nil {
				log.Error(err.Error())
				errs[i] = fmt.Errorf("cell %s: %w", cell.Name, err)
			}
		}(i, cell)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// processCell runs the decode, classify, aggregate, persist pipeline for one
// cell, unless a fresh container already holds the result.
func processCell(ctx context.Context, cell CellConfig, dataDir string, criterion container.StalenessCriterion, logger *slog.Logger) error {
	loader, err := createLoader(cell, logger)
	if err != nil {
		return err
	}

	cont := container.New(filepath.Join(dataDir, cell.Name+".cell"))

	stale, err := cont.Stale(ctx, cycler.LocalFS{}, cell.RawFiles, criterion)
	if err != nil && !errors.Is(err, container.ErrNotFound) {
		// an unreadable or outdated container forces recomputation; the
		// reason still matters to the operator
		logger.Warn(fmt.Sprintf("existing container unusable: %s", err.Error()))
	}
	if !stale {
		logger.Info("container is fresh, skipping recomputation", slog.String("path", cont.Path()))
		return nil
	}

	raw, records, err := loader.Read(cell.RawFiles)
	if err != nil {
		return fmt.Errorf("reading raw files: %w", err)
	}

	stepTable, err := steps.Classify(raw, loader.Epsilons())
	if err != nil {
		return err
	}

	summaryTable, err := summary.Aggregate(raw, summary.Config{
		Mass:                cell.Mass,
		NominalCapacity:     cell.NominalCapacity,
		CyclingMode:         cyclingMode(cell.CyclingMode),
		ReferenceDataPoints: loader.ReferenceDataPoints(),
	})
	if err != nil {
		return err
	}

	if summaryTable.UsedFallback {
		logger.Info("no vendor per-cycle reference matched, used last sample per cycle")
	}

	archive := &container.Archive{
		Raw:     raw,
		Steps:   stepTable,
		Summary: summaryTable,
		Files:   records,
		Meta: container.Meta{
			CellName:        cell.Name,
			CreatedAt:       time.Now(),
			StartTime:       raw.StartTime,
			Mass:            cell.Mass,
			NominalCapacity: cell.NominalCapacity,
			CyclingMode:     cyclingMode(cell.CyclingMode),
			SummaryFallback: summaryTable.UsedFallback,
		},
		Versions: container.CurrentVersions(),
	}

	if err = cont.Write(ctx, archive); err != nil {
		return fmt.Errorf("writing container: %w", err)
	}

	logger.Info("pipeline complete",
		slog.Int("samples", len(raw.Samples)),
		slog.Int("steps", len(stepTable.Rows)),
		slog.Int("cycles", len(summaryTable.Rows)),
		slog.String("container", cont.Path()))

	return nil
}

// createLoader selects the decoder variant for the cell's instrument. The
// set is closed: adding an instrument means adding a case here, not string
// dispatch at call time.
func createLoader(cell CellConfig, logger *slog.Logger) (*cycler.Loader, error) {
	var decoder cycler.Decoder
	var err error

	switch cell.Instrument {
	case InstrumentBiologic:
		if decoder, err = biologic.New(cell.Biologic); err != nil {
			return nil, fmt.Errorf("creating biologic decoder: %w", err)
		}

	case InstrumentMaccor:
		if decoder, err = maccor.New(cell.Maccor); err != nil {
			return nil, fmt.Errorf("creating maccor decoder: %w", err)
		}

	case InstrumentArbin:
		if decoder, err = arbin.New(cell.Arbin); err != nil {
			return nil, fmt.Errorf("creating arbin decoder: %w", err)
		}

	default:
		return nil, fmt.Errorf("creating decoder: unknown instrument '%s'", cell.Instrument)
	}

	options := []func(*cycler.Loader){cycler.WithLogger(logger)}
	if cell.MaxFileSize > 0 {
		options = append(options, cycler.WithMaxFileSize(cell.MaxFileSize))
	}

	return cycler.NewLoader(decoder, options...), nil
}

func cyclingMode(mode string) celldata.CyclingMode {
	if mode == string(celldata.ModeChargeFirst) {
		return celldata.ModeChargeFirst
	}
	return celldata.ModeDischargeFirst
}

func resolveDataDir(config *StorageConfig) (string, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return "", fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return dir, nil
}

package cycler

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// DefaultMaxFileSize caps raw file reads at 400 MB unless configured otherwise.
const DefaultMaxFileSize int64 = 400 << 20

// Decoder turns one vendor file into a canonical RawTable. Implementations
// exist per instrument family and form a closed set selected at pipeline
// construction time. Decoders are read-only and must never mutate the source.
type Decoder interface {
	// Decode reads one vendor file into a RawTable with canonical column
	// names. Missing canonical columns are marked not-present, never dropped.
	Decode(r io.Reader, size int64) (*celldata.RawTable, error)

	// Instrument returns the instrument family name (e.g. "biologic").
	Instrument() string

	// Epsilons returns the classification thresholds appropriate to this
	// instrument's measurement resolution.
	Epsilons() celldata.Epsilons
}

// StatisticsDecoder is implemented by decoders whose vendor files carry their
// own per-cycle statistics subset, identified by data point numbers.
type StatisticsDecoder interface {
	// ReferenceDataPoints returns the data points the vendor marked as
	// per-cycle statistics rows in the most recent Decode call, in order.
	ReferenceDataPoints() []int64
}

// WithLogger sets the logger for the loader.
func WithLogger(logger *slog.Logger) func(*Loader) {
	return func(l *Loader) {
		l.logger = logger.With(slog.String("instrument", l.decoder.Instrument()))
	}
}

// WithFS sets the file-access layer used to locate and read raw files.
func WithFS(fs PathLike) func(*Loader) {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithMaxFileSize overrides the raw file size cap in bytes.
func WithMaxFileSize(size int64) func(*Loader) {
	return func(l *Loader) {
		l.maxFileSize = size
	}
}

// Loader wraps a Decoder with the file handling every instrument shares:
// existence and size checks, provenance capture, and multi-file merging.
type Loader struct {
	decoder Decoder
	fs      PathLike

	maxFileSize int64
	logger      *slog.Logger
}

// NewLoader creates a Loader for the given decoder. By default it reads from
// the local filesystem with a discard logger.
func NewLoader(decoder Decoder, options ...func(*Loader)) *Loader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	l := Loader{
		decoder:     decoder,
		fs:          LocalFS{},
		maxFileSize: DefaultMaxFileSize,
		logger:      logger,
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Instrument returns the wrapped decoder's instrument family name.
func (l *Loader) Instrument() string { return l.decoder.Instrument() }

// Epsilons returns the wrapped decoder's classification thresholds.
func (l *Loader) Epsilons() celldata.Epsilons { return l.decoder.Epsilons() }

// ReferenceDataPoints returns the vendor per-cycle statistics subset from the
// most recent Read, or nil when the instrument does not supply one.
func (l *Loader) ReferenceDataPoints() []int64 {
	if sd, ok := l.decoder.(StatisticsDecoder); ok {
		return sd.ReferenceDataPoints()
	}
	return nil
}

// Read decodes the given vendor files, in order, into one canonical RawTable
// for a single logical test run, merging multi-file runs with continuous
// data point, cycle and test time numbering. It returns one FileRecord per
// file for later staleness comparison.
func (l *Loader) Read(paths []string) (*celldata.RawTable, []celldata.FileRecord, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no raw files given")
	}

	tables := make([]*celldata.RawTable, 0, len(paths))
	records := make([]celldata.FileRecord, 0, len(paths))

	for _, path := range paths {
		table, record, err := l.readFile(path)
		if err != nil {
			return nil, nil, err
		}

		l.logger.Info("decoded raw file",
			slog.String("file", record.Name),
			slog.String("size", humanize.Bytes(uint64(record.Size))),
			slog.Int("samples", len(table.Samples)))

		tables = append(tables, table)
		records = append(records, record)
	}

	if len(tables) == 1 {
		return tables[0], records, nil
	}

	merged, _, err := Merge(tables)
	if err != nil {
		return nil, nil, err
	}
	return merged, records, nil
}

func (l *Loader) readFile(path string) (table *celldata.RawTable, record celldata.FileRecord, err error) {
	if !l.fs.Exists(path) {
		err = fmt.Errorf("%w: %s", ErrNotFound, path)
		return
	}

	info, err := l.fs.Stat(path)
	if err != nil {
		err = fmt.Errorf("stat raw file: %w", err)
		return
	}

	if l.maxFileSize > 0 && info.Size > l.maxFileSize {
		err = fmt.Errorf("%w: %s is %s, cap is %s", ErrTooLarge, path,
			humanize.Bytes(uint64(info.Size)), humanize.Bytes(uint64(l.maxFileSize)))
		return
	}

	f, err := l.fs.Open(path)
	if err != nil {
		err = fmt.Errorf("opening raw file %s: %w", path, err)
		return
	}
	defer closeWithError(f, &err)

	if table, err = l.decoder.Decode(f, info.Size); err != nil {
		err = fmt.Errorf("decoding %s: %w", path, err)
		return
	}

	record = celldata.FileRecord{
		Name:         filepath.Base(path),
		FullPath:     path,
		Size:         info.Size,
		LastModified: info.ModTime,
		LastAccessed: info.AccessTime,
		Location:     "local",
	}
	return
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

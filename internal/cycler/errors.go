package cycler

import "errors"

var (
	// ErrNotFound is returned when a raw file does not exist at the given path.
	ErrNotFound = errors.New("raw file not found")

	// ErrTooLarge is returned when a raw file exceeds the configured size cap.
	// The caller decides whether to proceed with a smaller cap or abort.
	ErrTooLarge = errors.New("raw file exceeds size cap")

	// ErrMalformedFile is returned on a decoder-level structural violation,
	// such as a module whose declared length overruns the remaining file.
	ErrMalformedFile = errors.New("malformed raw file")

	// ErrUnsupportedFormat is returned when a vendor schema version embedded
	// in the file has no known column layout.
	ErrUnsupportedFormat = errors.New("unsupported vendor format")

	// ErrInconsistentProvenance is returned when a multi-file merge cannot
	// resolve time or index offsets from the recorded start timestamps.
	ErrInconsistentProvenance = errors.New("inconsistent provenance")
)

package container

import (
	"errors"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// Schema versions. The container version gates loading as a whole; the
// per-table versions let later readers detect individually stale tables.
const (
	// ContainerVersion is written into every new container.
	ContainerVersion = 8

	// MinContainerVersion is the oldest container this build still reads.
	MinContainerVersion = 4

	RawTableVersion     = 5
	StepTableVersion    = 5
	SummaryTableVersion = 7
)

var (
	// ErrNotFound is returned when no container exists at the path.
	ErrNotFound = errors.New("container not found")

	// ErrUnsupportedVersion is returned when the stored container version is
	// below MinContainerVersion. Nothing is materialized in that case.
	ErrUnsupportedVersion = errors.New("unsupported container version")

	// ErrCorrupt is returned when a required table is missing or the
	// metadata row cannot be read. Always fatal for the load attempt.
	ErrCorrupt = errors.New("corrupt container")
)

// Versions holds the four independent schema-version integers stored in the
// info table.
type Versions struct {
	Container int `json:"container"`
	Raw       int `json:"raw"`
	Steps     int `json:"steps"`
	Summary   int `json:"summary"`
}

// CurrentVersions returns the versions written by this build.
func CurrentVersions() Versions {
	return Versions{
		Container: ContainerVersion,
		Raw:       RawTableVersion,
		Steps:     StepTableVersion,
		Summary:   SummaryTableVersion,
	}
}

// Meta is the descriptive metadata stored alongside the tables.
type Meta struct {
	CellName        string               `json:"cellName"`
	CreatedAt       time.Time            `json:"createdAt"`
	StartTime       time.Time            `json:"startTime"`
	Mass            float64              `json:"mass"`
	NominalCapacity float64              `json:"nominalCapacity"`
	CyclingMode     celldata.CyclingMode `json:"cyclingMode"`
	SummaryFallback bool                 `json:"summaryFallback"`
}

// Archive is the full content of one container: the three tables, the
// provenance records of the raw files they were computed from, and metadata.
type Archive struct {
	Raw      *celldata.RawTable
	Steps    *celldata.StepTable
	Summary  *celldata.SummaryTable
	Files    []celldata.FileRecord
	Meta     Meta
	Versions Versions
}

// StalenessCriterion selects which single FileRecord attribute is compared
// against the current on-disk file when deciding whether a container is
// still trustworthy.
type StalenessCriterion string

const (
	CompareSize  StalenessCriterion = "size"
	CompareMTime StalenessCriterion = "mtime"
	CompareATime StalenessCriterion = "atime"
)

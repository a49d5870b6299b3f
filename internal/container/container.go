// Package container persists the raw, step and summary tables of one
// logical test in a single versioned sqlite file. The container is written
// wholesale and atomically replaced, version-gated on load, and checked for
// staleness against the provenance of the raw files it was computed from.
package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oddvarlia/cellcycler/internal/celldata"
	"github.com/oddvarlia/cellcycler/internal/cycler"
)

var requiredTables = []string{"raw", "steps", "summary", "fid", "info"}

// Container is a handle to one container path. The handle itself holds no
// open resources; each operation opens and closes its own connection.
type Container struct {
	path string
}

// New creates a handle for the container at path. Nothing is opened yet.
func New(path string) *Container {
	return &Container{path: path}
}

// Path returns the canonical container path.
func (c *Container) Path() string { return c.path }

// Exists reports whether a file exists at the container path.
func (c *Container) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Write persists the archive. The container is built at a temporary path and
// atomically renamed over the canonical one on success, so a crash mid-write
// never leaves a corrupt container where a reader would look for it. All
// five tables go in as one transaction.
func (c *Container) Write(ctx context.Context, a *Archive) (err error) {
	if a == nil || a.Raw.Empty() {
		return fmt.Errorf("writing container: %w", celldata.ErrEmptyResult)
	}

	tmp := c.path + ".tmp"
	if err = os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale temp container: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", tmp, "_journal_mode=MEMORY&_synchronous=OFF"))
	if err != nil {
		return fmt.Errorf("opening temp container: %w", err)
	}

	if err = c.writeAll(ctx, db, a); err != nil {
		_ = db.Close()
		return err
	}
	if err = db.Close(); err != nil {
		return fmt.Errorf("closing temp container: %w", err)
	}

	if err = os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing container: %w", err)
	}
	return nil
}

func (c *Container) writeAll(ctx context.Context, db *sql.DB, a *Archive) (err error) {
	if _, err = db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = insertInfo(ctx, tx, a); err != nil {
		return err
	}
	if err = insertRaw(ctx, tx, a.Raw); err != nil {
		return err
	}
	if err = insertSteps(ctx, tx, a.Steps); err != nil {
		return err
	}
	if err = insertSummary(ctx, tx, a.Summary); err != nil {
		return err
	}
	if err = insertFid(ctx, tx, a.Files); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertInfo(ctx context.Context, tx *sql.Tx, a *Archive) error {
	columns := make([]string, 0, len(a.Raw.Columns))
	for col := range a.Raw.Columns {
		columns = append(columns, string(col))
	}
	sort.Strings(columns)

	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshaling column set: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertInfoSQL,
		ContainerVersion,
		RawTableVersion,
		StepTableVersion,
		SummaryTableVersion,
		nullString(a.Meta.CellName),
		nullTime(a.Meta.CreatedAt),
		nullTime(a.Meta.StartTime),
		a.Meta.Mass,
		a.Meta.NominalCapacity,
		nullString(string(a.Meta.CyclingMode)),
		a.Summary != nil && a.Summary.UsedFallback,
		string(columnsJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting info: %w", err)
	}
	return nil
}

func insertRaw(ctx context.Context, tx *sql.Tx, raw *celldata.RawTable) (err error) {
	stmt, err := tx.PrepareContext(ctx, insertRawSQL)
	if err != nil {
		return fmt.Errorf("preparing raw insert: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, s := range raw.Samples {
		var aux sql.NullString
		if len(s.Aux) > 0 {
			p, mErr := json.Marshal(s.Aux)
			if mErr != nil {
				return fmt.Errorf("marshaling aux channels: %w", mErr)
			}
			aux = sql.NullString{String: string(p), Valid: true}
		}

		if _, err = stmt.ExecContext(ctx,
			s.DataPoint,
			nullFloat(s.TestTime),
			nullFloat(s.StepTime),
			nullTime(s.DateTime),
			s.CycleIndex,
			s.StepIndex,
			s.SubStepIndex,
			nullFloat(s.Current),
			nullFloat(s.Voltage),
			nullFloat(s.ChargeCapacity),
			nullFloat(s.DischargeCapacity),
			nullFloat(s.ChargeEnergy),
			nullFloat(s.DischargeEnergy),
			nullFloat(s.InternalResistance),
			aux,
		); err != nil {
			return fmt.Errorf("inserting raw sample %d: %w", s.DataPoint, err)
		}
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, steps *celldata.StepTable) (err error) {
	if steps.Empty() {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, insertStepSQL)
	if err != nil {
		return fmt.Errorf("preparing step insert: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, row := range steps.Rows {
		args := []any{row.Cycle, row.Step, row.SubStep, string(row.Type),
			nullString(row.SubType), nullString(row.Info)}
		args = append(args, statsArgs(row.Current)...)
		args = append(args, statsArgs(row.Voltage)...)
		args = append(args, statsArgs(row.ChargeCapacity)...)
		args = append(args, statsArgs(row.DischargeCapacity)...)
		args = append(args, nullFloat(row.InternalResistance), nullFloat(row.InternalResistancePctChange))

		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting step (%d, %d): %w", row.Cycle, row.Step, err)
		}
	}
	return nil
}

func insertSummary(ctx context.Context, tx *sql.Tx, summary *celldata.SummaryTable) (err error) {
	if summary.Empty() {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, insertSummarySQL)
	if err != nil {
		return fmt.Errorf("preparing summary insert: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, row := range summary.Rows {
		if _, err = stmt.ExecContext(ctx,
			row.Cycle,
			row.DataPoint,
			nullString(row.Timestamp),
			nullFloat(row.DischargeCapacity),
			nullFloat(row.ChargeCapacity),
			nullFloat(row.CumulatedDischargeCapacity),
			nullFloat(row.CumulatedChargeCapacity),
			nullFloat(row.CoulombicEfficiency),
			nullFloat(row.CumulatedCoulombicEff),
			nullFloat(row.CoulombicDifference),
			nullFloat(row.CumulatedCoulombicDiff),
			nullFloat(row.DischargeCapacityLoss),
			nullFloat(row.CumulatedDischargeCapLoss),
			nullFloat(row.ChargeCapacityLoss),
			nullFloat(row.CumulatedChargeCapLoss),
			nullFloat(row.EndVoltageCharge),
			nullFloat(row.EndVoltageDischarge),
			nullFloat(row.CumulatedRIC),
			nullFloat(row.CumulatedRICSEI),
			nullFloat(row.CumulatedRICDisconnect),
			nullFloat(row.ShiftedChargeCapacity),
			nullFloat(row.ShiftedDischargeCapacity),
		); err != nil {
			return fmt.Errorf("inserting summary cycle %d: %w", row.Cycle, err)
		}
	}
	return nil
}

func insertFid(ctx context.Context, tx *sql.Tx, files []celldata.FileRecord) (err error) {
	stmt, err := tx.PrepareContext(ctx, insertFidSQL)
	if err != nil {
		return fmt.Errorf("preparing fid insert: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, f := range files {
		if _, err = stmt.ExecContext(ctx,
			f.Name,
			f.FullPath,
			f.Size,
			nullTime(f.LastModified),
			nullTime(f.LastAccessed),
			nullString(f.Location),
		); err != nil {
			return fmt.Errorf("inserting file record %s: %w", f.Name, err)
		}
	}
	return nil
}

// Load reads the archive back. The four version integers are read and
// checked before any table body is decoded; a container below the minimum
// supported version is rejected without materializing anything.
func (c *Container) Load(ctx context.Context) (a *Archive, err error) {
	if !c.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.path)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", c.path, "mode=ro"))
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer closeWithError(db, &err)

	versions, err := readVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	if versions.Container < MinContainerVersion {
		return nil, fmt.Errorf("%w: container version %d, minimum supported %d",
			ErrUnsupportedVersion, versions.Container, MinContainerVersion)
	}

	if err = checkTables(ctx, db); err != nil {
		return nil, err
	}

	a = &Archive{Versions: versions}

	var columnsJSON string
	if a.Meta, columnsJSON, err = readInfo(ctx, db); err != nil {
		return nil, err
	}
	if a.Raw, err = readRaw(ctx, db, columnsJSON); err != nil {
		return nil, err
	}
	a.Raw.StartTime = a.Meta.StartTime
	if a.Steps, err = readSteps(ctx, db); err != nil {
		return nil, err
	}
	if a.Summary, err = readSummary(ctx, db); err != nil {
		return nil, err
	}
	a.Summary.UsedFallback = a.Meta.SummaryFallback
	if a.Files, err = readFid(ctx, db); err != nil {
		return nil, err
	}

	return a, nil
}

// Stale compares the stored provenance records against the current raw files
// using exactly one criterion. A missing container, a changed file count or
// any mismatch in the compared value marks the container stale and forces
// recomputation.
func (c *Container) Stale(ctx context.Context, fs cycler.PathLike, paths []string, criterion StalenessCriterion) (bool, error) {
	if !c.Exists() {
		return true, nil
	}

	a, err := c.Load(ctx)
	if err != nil {
		return true, err
	}

	if len(a.Files) != len(paths) {
		return true, nil
	}

	for _, f := range a.Files {
		info, err := fs.Stat(f.FullPath)
		if err != nil {
			return true, nil // source file gone or unreadable
		}

		switch criterion {
		case CompareMTime:
			if !info.ModTime.Equal(f.LastModified) {
				return true, nil
			}
		case CompareATime:
			if !info.AccessTime.Equal(f.LastAccessed) {
				return true, nil
			}
		default: // size
			if info.Size != f.Size {
				return true, nil
			}
		}
	}

	return false, nil
}

func readVersions(ctx context.Context, db *sql.DB) (Versions, error) {
	var v Versions
	err := db.QueryRowContext(ctx, selectVersionsSQL).Scan(&v.Container, &v.Raw, &v.Steps, &v.Summary)
	if err != nil {
		return v, fmt.Errorf("%w: reading versions: %v", ErrCorrupt, err)
	}
	return v, nil
}

func checkTables(ctx context.Context, db *sql.DB) (err error) {
	rows, err := db.QueryContext(ctx, selectTablesSQL)
	if err != nil {
		return fmt.Errorf("%w: listing tables: %v", ErrCorrupt, err)
	}
	defer closeWithError(rows, &err)

	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: scanning table name: %v", ErrCorrupt, err)
		}
		present[name] = struct{}{}
	}

	for _, name := range requiredTables {
		if _, ok := present[name]; !ok {
			return fmt.Errorf("%w: table %s missing", ErrCorrupt, name)
		}
	}
	return nil
}

func readInfo(ctx context.Context, db *sql.DB) (meta Meta, columnsJSON string, err error) {
	var cellName, createdAt, startTime, cyclingMode, columns sql.NullString
	var fallback bool

	err = db.QueryRowContext(ctx, selectInfoSQL).Scan(
		&cellName, &createdAt, &startTime,
		&meta.Mass, &meta.NominalCapacity, &cyclingMode, &fallback, &columns)
	if err != nil {
		err = fmt.Errorf("%w: reading info: %v", ErrCorrupt, err)
		return
	}

	meta.CellName = stringValue(cellName)
	meta.CreatedAt = timeValue(createdAt)
	meta.StartTime = timeValue(startTime)
	meta.CyclingMode = celldata.CyclingMode(stringValue(cyclingMode))
	meta.SummaryFallback = fallback
	columnsJSON = stringValue(columns)
	return
}

func readRaw(ctx context.Context, db *sql.DB, columnsJSON string) (table *celldata.RawTable, err error) {
	table = &celldata.RawTable{Columns: make(celldata.ColumnSet)}

	if columnsJSON != "" {
		var columns []string
		if err = json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
			return nil, fmt.Errorf("%w: decoding column set: %v", ErrCorrupt, err)
		}
		for _, col := range columns {
			table.Columns.Add(celldata.Column(col))
		}
	}

	rows, err := db.QueryContext(ctx, selectRawSQL)
	if err != nil {
		return nil, fmt.Errorf("querying raw: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var s celldata.Sample
		var datetime, aux sql.NullString

		if err = rows.Scan(
			&s.DataPoint,
			nullFloatScanner{&s.TestTime},
			nullFloatScanner{&s.StepTime},
			&datetime,
			&s.CycleIndex,
			&s.StepIndex,
			&s.SubStepIndex,
			nullFloatScanner{&s.Current},
			nullFloatScanner{&s.Voltage},
			nullFloatScanner{&s.ChargeCapacity},
			nullFloatScanner{&s.DischargeCapacity},
			nullFloatScanner{&s.ChargeEnergy},
			nullFloatScanner{&s.DischargeEnergy},
			nullFloatScanner{&s.InternalResistance},
			&aux,
		); err != nil {
			return nil, fmt.Errorf("scanning raw sample: %w", err)
		}

		s.DateTime = timeValue(datetime)
		if aux.Valid {
			if err = json.Unmarshal([]byte(aux.String), &s.Aux); err != nil {
				return nil, fmt.Errorf("%w: decoding aux channels: %v", ErrCorrupt, err)
			}
		}

		table.Samples = append(table.Samples, s)
	}
	return table, nil
}

func readSteps(ctx context.Context, db *sql.DB) (table *celldata.StepTable, err error) {
	table = &celldata.StepTable{}

	rows, err := db.QueryContext(ctx, selectStepsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row celldata.StepRow
		var stepType string
		var subType, info sql.NullString

		dest := []any{&row.Cycle, &row.Step, &row.SubStep, &stepType, &subType, &info}
		dest = append(dest, statsScan(&row.Current)...)
		dest = append(dest, statsScan(&row.Voltage)...)
		dest = append(dest, statsScan(&row.ChargeCapacity)...)
		dest = append(dest, statsScan(&row.DischargeCapacity)...)
		dest = append(dest, nullFloatScanner{&row.InternalResistance},
			nullFloatScanner{&row.InternalResistancePctChange})

		if err = rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning step row: %w", err)
		}

		row.Type = celldata.StepType(stepType)
		row.SubType = stringValue(subType)
		row.Info = stringValue(info)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func readSummary(ctx context.Context, db *sql.DB) (table *celldata.SummaryTable, err error) {
	table = &celldata.SummaryTable{}

	rows, err := db.QueryContext(ctx, selectSummarySQL)
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row celldata.SummaryRow
		var timestamp sql.NullString

		if err = rows.Scan(
			&row.Cycle,
			&row.DataPoint,
			&timestamp,
			nullFloatScanner{&row.DischargeCapacity},
			nullFloatScanner{&row.ChargeCapacity},
			nullFloatScanner{&row.CumulatedDischargeCapacity},
			nullFloatScanner{&row.CumulatedChargeCapacity},
			nullFloatScanner{&row.CoulombicEfficiency},
			nullFloatScanner{&row.CumulatedCoulombicEff},
			nullFloatScanner{&row.CoulombicDifference},
			nullFloatScanner{&row.CumulatedCoulombicDiff},
			nullFloatScanner{&row.DischargeCapacityLoss},
			nullFloatScanner{&row.CumulatedDischargeCapLoss},
			nullFloatScanner{&row.ChargeCapacityLoss},
			nullFloatScanner{&row.CumulatedChargeCapLoss},
			nullFloatScanner{&row.EndVoltageCharge},
			nullFloatScanner{&row.EndVoltageDischarge},
			nullFloatScanner{&row.CumulatedRIC},
			nullFloatScanner{&row.CumulatedRICSEI},
			nullFloatScanner{&row.CumulatedRICDisconnect},
			nullFloatScanner{&row.ShiftedChargeCapacity},
			nullFloatScanner{&row.ShiftedDischargeCapacity},
		); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}

		row.Timestamp = stringValue(timestamp)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func readFid(ctx context.Context, db *sql.DB) (files []celldata.FileRecord, err error) {
	rows, err := db.QueryContext(ctx, selectFidSQL)
	if err != nil {
		return nil, fmt.Errorf("querying fid: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f celldata.FileRecord
		var modified, accessed, location sql.NullString

		if err = rows.Scan(&f.Name, &f.FullPath, &f.Size, &modified, &accessed, &location); err != nil {
			return nil, fmt.Errorf("scanning file record: %w", err)
		}

		f.LastModified = timeValue(modified)
		f.LastAccessed = timeValue(accessed)
		f.Location = stringValue(location)
		files = append(files, f)
	}
	return files, nil
}

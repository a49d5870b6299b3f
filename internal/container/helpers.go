package container

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

// NaN marks a not-present canonical value in memory; NULL marks it at rest.
// The two converters keep the round trip exact.

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatValue(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func timeValue(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringValue(v sql.NullString) string {
	return v.String
}

func statsArgs(cs celldata.ChannelStats) []any {
	return []any{
		nullFloat(cs.Avg), nullFloat(cs.Std), nullFloat(cs.Max), nullFloat(cs.Min),
		nullFloat(cs.Start), nullFloat(cs.End), nullFloat(cs.Delta), nullFloat(cs.Rate),
	}
}

// statsScan returns scan destinations that populate cs when the row is read.
func statsScan(cs *celldata.ChannelStats) []any {
	return []any{
		nullFloatScanner{&cs.Avg}, nullFloatScanner{&cs.Std},
		nullFloatScanner{&cs.Max}, nullFloatScanner{&cs.Min},
		nullFloatScanner{&cs.Start}, nullFloatScanner{&cs.End},
		nullFloatScanner{&cs.Delta}, nullFloatScanner{&cs.Rate},
	}
}

// nullFloatScanner scans a nullable REAL directly into a float64, mapping
// NULL back to NaN.
type nullFloatScanner struct {
	dst *float64
}

func (s nullFloatScanner) Scan(src any) error {
	var v sql.NullFloat64
	if err := v.Scan(src); err != nil {
		return err
	}
	*s.dst = floatValue(v)
	return nil
}

// Package model defines the snapshot records gathered from gov.pl and the
// error kinds shared by the reconciliation pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion tags the payload layout of a Record or Library.
type SchemaVersion string

const (
	// SchemaV1 records carry cumulative total, dead and recovered counts.
	SchemaV1 SchemaVersion = "1.0.0"
	// SchemaV2 records were introduced on 24.11.2020 together with the
	// per-capita rate and the split of deaths by cause.
	SchemaV2 SchemaVersion = "1.1.0"

	// LibraryVersion is the only layout a Library has ever been written in.
	LibraryVersion SchemaVersion = "1.0.0"
)

// Known reports whether v is one of the record layouts the pipeline decodes.
func (v SchemaVersion) Known() bool {
	return v == SchemaV1 || v == SchemaV2
}

// Record is one province observed at one point in time.
// Records are values; copy them, never mutate a stored one.
type Record struct {
	Province string        `json:"province"`
	Version  SchemaVersion `json:"version"`
	Date     time.Time     `json:"date"`

	Total     int `json:"total"`
	Dead      int `json:"dead"`
	Recovered int `json:"recovered"`

	// Populated by SchemaV2 sources only.
	TotalPer10k   float64 `json:"total_per_10k"`
	DeadByCovid   int     `json:"dead_by_covid"`
	DeadWithCovid int     `json:"dead_with_covid"`
}

// CompareRecords orders records by province name. Payload is ignored.
func CompareRecords(a, b Record) int {
	return strings.Compare(a.Province, b.Province)
}

// SameProvince reports whether both records describe the same province.
func (r Record) SameProvince(o Record) bool {
	return r.Province == o.Province
}

func (r Record) String() string {
	return fmt.Sprintf("%-20s: %7d %7d %7d", r.Province, r.Total, r.Dead, r.Recovered)
}

package model

import (
	"slices"
	"time"
)

// Library is the full set of records gathered in a single run.
type Library struct {
	Version SchemaVersion `json:"version"`
	Date    time.Time     `json:"date"`
	Records []Record      `json:"records"`
}

// NewLibrary returns an empty library stamped with the given run time.
func NewLibrary(date time.Time) *Library {
	return &Library{Version: LibraryVersion, Date: date}
}

// SortRecords orders the records by province name in place. Index-aligned
// comparison of two libraries is only valid after both were sorted.
func (l *Library) SortRecords() {
	slices.SortStableFunc(l.Records, CompareRecords)
}

// CompareLibraries orders libraries by run timestamp.
func CompareLibraries(a, b *Library) int {
	return a.Date.Compare(b.Date)
}

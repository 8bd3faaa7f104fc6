package model

import "github.com/rotisserie/eris"

// Error kinds raised by the snapshot codec and the reconciliation engine.
// Callers match them with errors.Is; call sites wrap them with context.
var (
	ErrTypeMismatch        = eris.New("not a well-formed snapshot library")
	ErrSchema              = eris.New("unknown schema version")
	ErrConsistency         = eris.New("inconsistent snapshot data")
	ErrDateRange           = eris.New("cutover date not present in series")
	ErrNotFound            = eris.New("province not found")
	ErrInsufficientHistory = eris.New("fewer than two snapshots available")
)

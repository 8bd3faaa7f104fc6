// Package history reconciles the gathered snapshot libraries into one
// consistent daily series per province.
//
// The upstream source published cumulative totals until the cutover date
// and daily values from that day on. Rows before the cutover are converted
// into daily deltas so the whole series shares one meaning.
package history

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// DefaultCutover is the day gov.pl switched from cumulative to daily figures.
var DefaultCutover = time.Date(2020, time.November, 24, 0, 0, 0, 0, time.UTC)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger the engine reports to. Defaults to a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCutover overrides the cutover day. Only the calendar day is used.
func WithCutover(day time.Time) Option {
	return func(e *Engine) {
		e.cutover = day
	}
}

// Engine holds the chronologically ordered history of gathered libraries.
// It is not safe for concurrent use.
type Engine struct {
	log     *zap.Logger
	cutover time.Time
	libs    []*model.Library
}

// NewEngine returns an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:     zap.NewNop(),
		cutover: DefaultCutover,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cutover returns the configured cutover day.
func (e *Engine) Cutover() time.Time { return e.cutover }

// Add validates the library, sorts its records by province in place and
// inserts it into the history, which is kept ordered by run timestamp.
func (e *Engine) Add(lib *model.Library) error {
	if err := validateLibrary(lib); err != nil {
		return err
	}
	for _, existing := range e.libs {
		if existing.Date.Equal(lib.Date) {
			return eris.Wrapf(model.ErrConsistency, "history: duplicate snapshot timestamp %s", lib.Date.Format(time.DateTime))
		}
	}

	lib.SortRecords()
	e.libs = append(e.libs, lib)
	slices.SortFunc(e.libs, model.CompareLibraries)

	e.log.Debug("library added",
		zap.Time("date", lib.Date),
		zap.Int("records", len(lib.Records)),
		zap.Int("history", len(e.libs)),
	)
	return nil
}

// AddAll adds every library, stopping at the first failure.
func (e *Engine) AddAll(libs []*model.Library) error {
	for _, lib := range libs {
		if err := e.Add(lib); err != nil {
			return err
		}
	}
	return nil
}

// Libraries returns the history in chronological order. The slice is a
// copy; the libraries themselves must not be modified.
func (e *Engine) Libraries() []*model.Library {
	return slices.Clone(e.libs)
}

// Len returns the number of libraries in the history.
func (e *Engine) Len() int { return len(e.libs) }

// Latest returns the most recent library.
func (e *Engine) Latest() (*model.Library, bool) {
	if len(e.libs) == 0 {
		return nil, false
	}
	return e.libs[len(e.libs)-1], true
}

func validateLibrary(lib *model.Library) error {
	if lib == nil {
		return eris.Wrap(model.ErrTypeMismatch, "history: nil library")
	}
	if lib.Date.IsZero() {
		return eris.Wrap(model.ErrTypeMismatch, "history: library without timestamp")
	}
	for i, rec := range lib.Records {
		if strings.TrimSpace(rec.Province) == "" {
			return eris.Wrapf(model.ErrTypeMismatch, "history: record %d has no province", i)
		}
	}
	return nil
}

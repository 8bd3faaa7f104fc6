package history

import (
	"slices"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// Row is one day of a province series after reconciliation. All counts are
// daily values; TotalSum is the running all-time total. A stale last day is
// zeroed in its daily counts only and still carries the previous TotalSum.
type Row struct {
	Date          time.Time `json:"date" yaml:"date"`
	Total         int       `json:"total" yaml:"total"`
	TotalPer10k   float64   `json:"total_per_10k" yaml:"total_per_10k"`
	Dead          int       `json:"dead" yaml:"dead"`
	DeadByCovid   int       `json:"dead_by_covid" yaml:"dead_by_covid"`
	DeadWithCovid int       `json:"dead_with_covid" yaml:"dead_with_covid"`
	TotalSum      int       `json:"total_sum" yaml:"total_sum"`
}

// Sub returns the field-wise difference r - o. Date and TotalSum come from r.
func (r Row) Sub(o Row) Row {
	return Row{
		Date:          r.Date,
		Total:         r.Total - o.Total,
		TotalPer10k:   r.TotalPer10k - o.TotalPer10k,
		Dead:          r.Dead - o.Dead,
		DeadByCovid:   r.DeadByCovid - o.DeadByCovid,
		DeadWithCovid: r.DeadWithCovid - o.DeadWithCovid,
		TotalSum:      r.TotalSum - o.TotalSum,
	}
}

// Reconciliation is the immutable result of reconciling an engine's history.
type Reconciliation struct {
	series    map[string][]Row
	provinces []string
	latest    []*model.Library
}

// Reconcile normalizes every library of the history, converts the
// cumulative era into daily values and derives the running totals.
// It never modifies the engine and returns the same result for the same
// history.
func (e *Engine) Reconcile() (*Reconciliation, error) {
	raw := make(map[string][]Row)
	for _, lib := range e.libs {
		seen := make(map[string]string, len(lib.Records))
		for _, rec := range lib.Records {
			if !rec.Version.Known() {
				return nil, eris.Wrapf(model.ErrSchema, "history: %s in %s has version %q",
					rec.Province, lib.Date.Format(time.DateTime), rec.Version)
			}
			key := NormalizeProvince(rec.Province)
			if prev, dup := seen[key]; dup {
				return nil, eris.Wrapf(model.ErrConsistency, "history: %q and %q both map to %s in %s",
					prev, rec.Province, key, lib.Date.Format(time.DateTime))
			}
			seen[key] = rec.Province
			raw[key] = append(raw[key], rowFromRecord(lib.Date, rec))
		}
	}

	r := &Reconciliation{
		series: make(map[string][]Row, len(raw)),
		latest: latestPair(e.libs),
	}
	for key, rows := range raw {
		if zeroStaleTail(rows) {
			e.log.Info("trailing snapshot not updated yet, zeroed",
				zap.String("province", key),
				zap.Time("date", rows[len(rows)-1].Date),
			)
		}
		if err := toDaily(rows, e.cutover); err != nil {
			return nil, eris.Wrapf(err, "history: %s", key)
		}
		accumulate(rows)
		r.series[key] = rows
		r.provinces = append(r.provinces, key)
	}
	sort.Strings(r.provinces)

	e.log.Debug("history reconciled",
		zap.Int("libraries", len(e.libs)),
		zap.Int("provinces", len(r.provinces)),
	)
	return r, nil
}

// rowFromRecord projects a record onto the unified layout. v1 records carry
// none of the v2-only fields, which therefore stay zero.
func rowFromRecord(date time.Time, rec model.Record) Row {
	row := Row{
		Date:  date,
		Total: rec.Total,
		Dead:  rec.Dead,
	}
	if rec.Version == model.SchemaV2 {
		row.TotalPer10k = rec.TotalPer10k
		row.DeadByCovid = rec.DeadByCovid
		row.DeadWithCovid = rec.DeadWithCovid
	}
	return row
}

// zeroStaleTail clears the last row when it repeats the previous row's
// total and dead counts: the source had not published that day's figures
// when the snapshot was taken.
func zeroStaleTail(rows []Row) bool {
	n := len(rows)
	if n < 2 {
		return false
	}
	last, prev := rows[n-1], rows[n-2]
	if last.Total != prev.Total || last.Dead != prev.Dead {
		return false
	}
	rows[n-1] = Row{Date: last.Date}
	return true
}

// toDaily rewrites the rows before the cutover day from cumulative values
// into daily deltas. The first row is diffed against an implicit zero.
func toDaily(rows []Row, cutover time.Time) error {
	day := calendarDay(cutover)
	anchor := slices.IndexFunc(rows, func(r Row) bool {
		return !calendarDay(r.Date).Before(day)
	})
	if anchor == 0 {
		return nil
	}
	if anchor < 0 || !calendarDay(rows[anchor].Date).Equal(day) {
		return eris.Wrapf(model.ErrDateRange, "no row on %s", day.Format(time.DateOnly))
	}

	// Walk backward so every subtraction still sees the cumulative value
	// of the earlier row.
	for i := anchor - 1; i > 0; i-- {
		rows[i].Total -= rows[i-1].Total
		rows[i].Dead -= rows[i-1].Dead
		rows[i].DeadByCovid -= rows[i-1].DeadByCovid
		rows[i].DeadWithCovid -= rows[i-1].DeadWithCovid
	}
	return nil
}

func accumulate(rows []Row) {
	sum := 0
	for i := range rows {
		sum += rows[i].Total
		rows[i].TotalSum = sum
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func latestPair(libs []*model.Library) []*model.Library {
	if len(libs) < 2 {
		return slices.Clone(libs)
	}
	return slices.Clone(libs[len(libs)-2:])
}

package history

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// Change pairs the latest row of a province with its delta against the
// previous row.
type Change struct {
	Province string `json:"province" yaml:"province"`
	Current  Row    `json:"current" yaml:"current"`
	Delta    Row    `json:"delta" yaml:"delta"`
}

// RawChange is the index-aligned comparison of one record in two libraries.
type RawChange struct {
	Province string       `json:"province"`
	Current  model.Record `json:"current"`
	Total    int          `json:"total"`
	Dead     int          `json:"dead"`
}

// Provinces returns the canonical province keys in sorted order.
func (r *Reconciliation) Provinces() []string {
	return slices.Clone(r.provinces)
}

// SeriesFor returns the reconciled series of a province. The name is
// normalized first, so raw source labels are accepted.
func (r *Reconciliation) SeriesFor(province string) ([]Row, error) {
	key := NormalizeProvince(province)
	rows, ok := r.series[key]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "history: %q", province)
	}
	return slices.Clone(rows), nil
}

// SeriesForAll returns a copy of every series keyed by canonical province.
func (r *Reconciliation) SeriesForAll() map[string][]Row {
	out := make(map[string][]Row, len(r.series))
	for key, rows := range r.series {
		out[key] = slices.Clone(rows)
	}
	return out
}

// LatestChanges returns, for every province, the most recent row and its
// delta against the prior row. It needs at least two snapshots and the two
// latest snapshots must cover the same provinces.
func (r *Reconciliation) LatestChanges() ([]Change, error) {
	if len(r.latest) < 2 {
		return nil, eris.Wrapf(model.ErrInsufficientHistory, "history: %d snapshot(s)", len(r.latest))
	}
	prev, cur := r.latest[0], r.latest[1]
	if err := sameProvinces(cur, prev); err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(r.provinces))
	for _, key := range r.provinces {
		rows := r.series[key]
		if len(rows) < 2 || !rows[len(rows)-1].Date.Equal(cur.Date) {
			continue
		}
		last, before := rows[len(rows)-1], rows[len(rows)-2]
		changes = append(changes, Change{
			Province: key,
			Current:  last,
			Delta:    last.Sub(before),
		})
	}
	return changes, nil
}

// Latest returns the run timestamp of the newest snapshot.
func (r *Reconciliation) Latest() (time.Time, bool) {
	if len(r.latest) == 0 {
		return time.Time{}, false
	}
	return r.latest[len(r.latest)-1].Date, true
}

// Diff compares two libraries record by record, in the raw values the
// source published. Both must be sorted and cover the same provinces.
func Diff(newer, older *model.Library) ([]RawChange, error) {
	if newer == nil || older == nil {
		return nil, eris.Wrap(model.ErrTypeMismatch, "history: diff of nil library")
	}
	if len(newer.Records) != len(older.Records) {
		return nil, eris.Wrapf(model.ErrConsistency, "history: %d records against %d",
			len(newer.Records), len(older.Records))
	}

	out := make([]RawChange, 0, len(newer.Records))
	for i, cur := range newer.Records {
		old := older.Records[i]
		if !cur.SameProvince(old) {
			return nil, eris.Wrapf(model.ErrConsistency, "history: province %q does not match %q at %d",
				cur.Province, old.Province, i)
		}
		out = append(out, RawChange{
			Province: cur.Province,
			Current:  cur,
			Total:    cur.Total - old.Total,
			Dead:     cur.Dead - old.Dead,
		})
	}
	return out, nil
}

func sameProvinces(a, b *model.Library) error {
	keys := func(lib *model.Library) []string {
		out := make([]string, 0, len(lib.Records))
		for _, rec := range lib.Records {
			out = append(out, NormalizeProvince(rec.Province))
		}
		slices.Sort(out)
		return out
	}
	ka, kb := keys(a), keys(b)
	if !slices.Equal(ka, kb) {
		return eris.Wrapf(model.ErrConsistency, "history: snapshots %s and %s cover different provinces",
			b.Date.Format(time.DateTime), a.Date.Format(time.DateTime))
	}
	return nil
}

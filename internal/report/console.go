// Package report renders reconciled history for people: console tables,
// email text and spreadsheet exports.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

const (
	titleChanges = "SARS-CoV-2 data with 1 day change summary"
	titleRaw     = "No historical SARS-CoV-2 data. Skipping change calculation."
	titlePub     = "SARS-CoV-2 data as published with 1 day change"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func alignNumbers(t table.Writer, from, to int) {
	var cfgs []table.ColumnConfig
	for n := from; n <= to; n++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	t.SetColumnConfigs(cfgs)
}

func caption(at time.Time) string {
	return "TIMESTAMP OF SAMPLES " + at.Format(time.DateTime)
}

// WriteTable prints the latest values of every province next to their
// one day change.
func WriteTable(w io.Writer, changes []history.Change, at time.Time) {
	t := newTable(w, titleChanges)
	t.AppendHeader(table.Row{"Province", "New", "Dead", "All-time", "Δ New", "Δ Dead"})
	for _, c := range changes {
		t.AppendRow(table.Row{
			c.Province,
			c.Current.Total,
			c.Current.Dead,
			c.Current.TotalSum,
			signed(c.Delta.Total),
			signed(c.Delta.Dead),
		})
	}
	alignNumbers(t, 2, 6)
	t.SetCaption(caption(at))
	t.Render()
}

// WriteRawTable prints a single library as published, without any change
// columns.
func WriteRawTable(w io.Writer, lib *model.Library) {
	t := newTable(w, titleRaw)
	t.AppendHeader(table.Row{"Province", "Total", "Dead", "Recovered"})
	for _, r := range lib.Records {
		t.AppendRow(table.Row{r.Province, r.Total, r.Dead, r.Recovered})
	}
	alignNumbers(t, 2, 4)
	t.SetCaption(caption(lib.Date))
	t.Render()
}

// WriteSummary prints the change table, or the raw latest library when the
// history is too short to compare two snapshots.
func WriteSummary(w io.Writer, rec *history.Reconciliation, latest *model.Library) error {
	changes, err := rec.LatestChanges()
	switch {
	case errors.Is(err, model.ErrInsufficientHistory):
		if latest == nil {
			return err
		}
		WriteRawTable(w, latest)
		return nil
	case err != nil:
		return eris.Wrap(err, "report: latest changes")
	}

	at, _ := rec.Latest()
	WriteTable(w, changes, at)
	return nil
}

// WriteRawChanges prints the published figures of the newest library next
// to their change from the one before, with no normalization or schema
// conversion. The libraries must list the same provinces under the same
// labels; otherwise the model.ErrConsistency from history.Diff is returned.
// A single library is printed with WriteRawTable.
func WriteRawChanges(w io.Writer, libs []*model.Library) error {
	switch len(libs) {
	case 0:
		return eris.Wrap(model.ErrInsufficientHistory, "report: no libraries")
	case 1:
		WriteRawTable(w, libs[0])
		return nil
	}

	newer, older := libs[len(libs)-1], libs[len(libs)-2]
	changes, err := history.Diff(newer, older)
	if err != nil {
		return eris.Wrap(err, "report: raw changes")
	}

	t := newTable(w, titlePub)
	t.AppendHeader(table.Row{"Province", "Total", "Dead", "Δ Total", "Δ Dead"})
	for _, c := range changes {
		t.AppendRow(table.Row{c.Province, c.Current.Total, c.Current.Dead, signed(c.Total), signed(c.Dead)})
	}
	alignNumbers(t, 2, 5)
	t.SetCaption(caption(newer.Date))
	t.Render()
	return nil
}

func signed(n int) string {
	return fmt.Sprintf("%+d", n)
}

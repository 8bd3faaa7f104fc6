package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/oscarsierraproject/covid19pl/internal/history"
)

// csvRow is the on-disk layout of one series row.
type csvRow struct {
	Date          string  `csv:"date"`
	Total         int     `csv:"total"`
	TotalPer10k   float64 `csv:"total_per_10k"`
	Dead          int     `csv:"dead"`
	DeadByCovid   int     `csv:"dead_by_covid"`
	DeadWithCovid int     `csv:"dead_with_covid"`
	TotalSum      int     `csv:"total_sum"`
}

func toCSVRows(rows []history.Row) []csvRow {
	out := make([]csvRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, csvRow{
			Date:          r.Date.Format("2006-01-02"),
			Total:         r.Total,
			TotalPer10k:   r.TotalPer10k,
			Dead:          r.Dead,
			DeadByCovid:   r.DeadByCovid,
			DeadWithCovid: r.DeadWithCovid,
			TotalSum:      r.TotalSum,
		})
	}
	return out
}

// WriteSeriesCSV writes one province series with a header row. The output
// depends only on the rows, so re-exports of the same history are
// byte-identical.
func WriteSeriesCSV(w io.Writer, rows []history.Row) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(csvRow{}); err != nil {
		return eris.Wrap(err, "report: csv header")
	}
	if err := enc.Encode(toCSVRows(rows)); err != nil {
		return eris.Wrap(err, "report: csv rows")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: csv flush")
}

// FileSlug turns a province key into a file name fragment.
func FileSlug(province string) string {
	s := cases.Lower(language.Polish).String(province)
	return strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(s)
}

// CSVFileName returns the export file name of a province.
func CSVFileName(province string) string {
	return "covid19pl_" + FileSlug(province) + ".csv"
}

// ExportCSV writes one CSV file per province into dir and returns the
// written paths in province order.
func ExportCSV(dir string, series map[string][]history.Row) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	provinces := make([]string, 0, len(series))
	for p := range series {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)

	paths := make([]string, 0, len(provinces))
	for _, p := range provinces {
		path := filepath.Join(dir, CSVFileName(p))
		if err := writeCSVFile(path, series[p]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSVFile(path string, rows []history.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := WriteSeriesCSV(f, rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "report: write %s", path)
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

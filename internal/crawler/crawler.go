// Package crawler turns the gov.pl infection list page into a snapshot
// library.
package crawler

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/fetcher"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// DefaultURL is the gov.pl page listing infections per province.
const DefaultURL = "https://www.gov.pl/web/koronawirus/wykaz-zarazen-koronawirusem-sars-cov-2"

// Column headers of the page's data table.
const (
	colProvince = "Województwo"

	colTotalV1 = "Liczba"
	colDeadV1  = "Liczba zgonów"

	colTotalV2         = "Liczba przypadków"
	colPer10kV2        = "Liczba na 10 tys. mieszkańców"
	colDeadV2          = "Wszystkie przypadki śmiertelne"
	colDeadByCovidV2   = "Zgony w wyniku COVID-19 bez chorób współistniejących"
	colDeadWithCovidV2 = "Zgony w wyniku COVID-19 oraz chorób współistniejących"
)

// warsaw is the zone the ministry publishes in. Snapshots store its wall
// clock without an offset, which the snapshot codec reads back as UTC.
var warsaw = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// wallClock returns t as a Warsaw wall-clock time labeled UTC, truncated to
// the second. A run at 23:30 UTC in winter is stamped 00:30 of the next day.
func wallClock(t time.Time) time.Time {
	l := t.In(warsaw)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
}

// Crawler gathers one library from the gov.pl page per call.
type Crawler struct {
	fetcher fetcher.Fetcher
	url     string
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithURL overrides the page address.
func WithURL(url string) Option {
	return func(c *Crawler) { c.url = url }
}

// WithClock overrides the source of the run timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// WithLogger sets the crawler's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crawler) { c.log = l }
}

// New returns a crawler downloading through f.
func New(f fetcher.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: f,
		url:     DefaultURL,
		now:     time.Now,
		log:     zap.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("component", "crawler"))
	return c
}

// Gather downloads the page and returns the current figures stamped with
// the run time on the Warsaw wall clock.
func (c *Crawler) Gather(ctx context.Context) (*model.Library, error) {
	c.log.Info("gathering Polish COVID19 data", zap.String("url", c.url))

	body, err := c.fetcher.Download(ctx, c.url)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: fetch page")
	}
	defer body.Close() //nolint:errcheck

	lib, err := Parse(body, wallClock(c.now()))
	if err != nil {
		return nil, err
	}

	c.log.Info("gathering complete",
		zap.Int("records", len(lib.Records)),
		zap.String("version", string(lib.Records[0].Version)),
	)
	return lib, nil
}

// Parse extracts the per-province table embedded in the page.
func Parse(r io.Reader, at time.Time) (*model.Library, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: parse html")
	}

	sel := doc.Find("#registerData").First()
	if sel.Length() == 0 {
		return nil, eris.New("crawler: #registerData not found")
	}

	// The element holds a JS object literal quoted with apostrophes.
	var register struct {
		ParsedData string `json:"parsedData"`
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(sel.Text(), "'", `"`)), &register); err != nil {
		return nil, eris.Wrap(err, "crawler: decode registerData")
	}
	var rows []map[string]cell
	if err := json.Unmarshal([]byte(register.ParsedData), &rows); err != nil {
		return nil, eris.Wrap(err, "crawler: decode parsedData")
	}

	lib := model.NewLibrary(at)
	for i, row := range rows {
		province := strings.TrimSpace(string(row[colProvince]))
		// Rows with links or no province at all showed up on 23.03.2020.
		if province == "" || strings.Contains(province, "https") {
			continue
		}
		rec, err := recordFromRow(row, province, at)
		if err != nil {
			return nil, eris.Wrapf(err, "crawler: row %d (%s)", i, province)
		}
		lib.Records = append(lib.Records, rec)
	}
	if len(lib.Records) == 0 {
		return nil, eris.New("crawler: page holds no province rows")
	}

	lib.SortRecords()
	return lib, nil
}

func recordFromRow(row map[string]cell, province string, at time.Time) (model.Record, error) {
	rec := model.Record{Province: province, Date: at}
	var err error

	if _, ok := row[colTotalV2]; !ok {
		rec.Version = model.SchemaV1
		if rec.Total, err = row[colTotalV1].Int(); err != nil {
			return rec, err
		}
		rec.Dead, err = row[colDeadV1].Int()
		return rec, err
	}

	rec.Version = model.SchemaV2
	if rec.Total, err = row[colTotalV2].Int(); err != nil {
		return rec, err
	}
	if rec.TotalPer10k, err = row[colPer10kV2].Float(); err != nil {
		return rec, err
	}
	if rec.Dead, err = row[colDeadV2].Int(); err != nil {
		return rec, err
	}
	if rec.DeadByCovid, err = row[colDeadByCovidV2].Int(); err != nil {
		return rec, err
	}
	rec.DeadWithCovid, err = row[colDeadWithCovidV2].Int()
	return rec, err
}

// cell is a table value published either as a JSON string or a number.
type cell string

func (c *cell) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = cell(s)
		return nil
	}
	if string(data) == "null" {
		*c = ""
		return nil
	}
	*c = cell(data)
	return nil
}

// normalized strips thousands separators and uses a dot as decimal mark.
func (c cell) normalized() string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, string(c))
	return strings.ReplaceAll(s, ",", ".")
}

// Int parses the cell as a count. Empty cells count as zero.
func (c cell) Int() (int, error) {
	s := c.normalized()
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Wrapf(err, "parse count %q", string(c))
	}
	return n, nil
}

// Float parses the cell as a decimal. Empty cells count as zero.
func (c cell) Float() (float64, error) {
	s := c.normalized()
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse decimal %q", string(c))
	}
	return f, nil
}

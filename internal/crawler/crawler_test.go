package crawler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/fetcher"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

const pageV1 = `<!DOCTYPE html><html><body>
<div class="article"><h2>Wykaz zarażeń koronawirusem (SARS-CoV-2)</h2></div>
<pre id="registerData" class="hide">{'description': 'Wykaz', 'parsedData': '[{\"Województwo\":\"śląskie\",\"Liczba\":\"1 214\",\"Liczba zgonów\":\"21\",\"Id\":\"t24\"},{\"Województwo\":\"Cała Polska\",\"Liczba\":\"7 202\",\"Liczba zgonów\":\"263\",\"Id\":\"t00\"},{\"Województwo\":\"\",\"Liczba\":\"\",\"Liczba zgonów\":\"\",\"Id\":\"\"},{\"Województwo\":\"https://www.gov.pl/attachment/abc\",\"Liczba\":\"0\",\"Liczba zgonów\":\"\",\"Id\":\"\"},{\"Województwo\":\"lubuskie\",\"Liczba\":\"60\",\"Liczba zgonów\":\"\",\"Id\":\"t08\"}]'}</pre>
</body></html>`

const pageV2 = `<html><body>
<pre id="registerData">{'parsedData': '[{\"Województwo\":\"Cały kraj\",\"Liczba przypadków\":\"10 139\",\"Liczba na 10 tys. mieszkańców\":\"2,64\",\"Wszystkie przypadki śmiertelne\":\"603\",\"Zgony w wyniku COVID-19 bez chorób współistniejących\":\"104\",\"Zgony w wyniku COVID-19 oraz chorób współistniejących\":\"499\"},{\"Województwo\":\"opolskie\",\"Liczba przypadków\":\"292\",\"Liczba na 10 tys. mieszkańców\":\"2,97\",\"Wszystkie przypadki śmiertelne\":\"13\",\"Zgony w wyniku COVID-19 bez chorób współistniejących\":\"\",\"Zgony w wyniku COVID-19 oraz chorób współistniejących\":\"13\"}]'}</pre>
</body></html>`

var runAt = time.Date(2020, 11, 24, 10, 31, 7, 0, time.UTC)

func TestParse_V1(t *testing.T) {
	lib, err := Parse(strings.NewReader(pageV1), runAt)
	require.NoError(t, err)

	assert.Equal(t, runAt, lib.Date)
	require.Len(t, lib.Records, 3)

	// Sorted by province; junk rows dropped.
	assert.Equal(t, "Cała Polska", lib.Records[0].Province)
	assert.Equal(t, "lubuskie", lib.Records[1].Province)
	assert.Equal(t, "śląskie", lib.Records[2].Province)

	nationwide := lib.Records[0]
	assert.Equal(t, model.SchemaV1, nationwide.Version)
	assert.Equal(t, 7202, nationwide.Total)
	assert.Equal(t, 263, nationwide.Dead)
	assert.Equal(t, runAt, nationwide.Date)

	assert.Equal(t, 0, lib.Records[1].Dead)
}

func TestParse_V2(t *testing.T) {
	lib, err := Parse(strings.NewReader(pageV2), runAt)
	require.NoError(t, err)
	require.Len(t, lib.Records, 2)

	rec := lib.Records[0]
	assert.Equal(t, "Cały kraj", rec.Province)
	assert.Equal(t, model.SchemaV2, rec.Version)
	assert.Equal(t, 10139, rec.Total)
	assert.InDelta(t, 2.64, rec.TotalPer10k, 1e-9)
	assert.Equal(t, 603, rec.Dead)
	assert.Equal(t, 104, rec.DeadByCovid)
	assert.Equal(t, 499, rec.DeadWithCovid)

	assert.Equal(t, 0, lib.Records[1].DeadByCovid)
	assert.Equal(t, 13, lib.Records[1].DeadWithCovid)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{name: "no register", page: `<html><body><p>brak</p></body></html>`, want: "#registerData not found"},
		{name: "bad register", page: `<pre id="registerData">{nope</pre>`, want: "decode registerData"},
		{name: "bad rows", page: `<pre id="registerData">{'parsedData': 'x'}</pre>`, want: "decode parsedData"},
		{name: "only junk", page: `<pre id="registerData">{'parsedData': '[{\"Województwo\":\"\"}]'}</pre>`, want: "no province rows"},
		{name: "bad number", page: `<pre id="registerData">{'parsedData': '[{\"Województwo\":\"opolskie\",\"Liczba\":\"dużo\"}]'}</pre>`, want: "opolskie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.page), runAt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		in      cell
		wantInt int
		wantF   float64
		wantErr bool
	}{
		{in: "", wantInt: 0, wantF: 0},
		{in: "12", wantInt: 12, wantF: 12},
		{in: "1 234", wantInt: 1234, wantF: 1234},
		{in: "12 345", wantInt: 12345, wantF: 12345},
		{in: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			n, err := tt.in.Int()
			f, ferr := tt.in.Float()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, ferr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, ferr)
			assert.Equal(t, tt.wantInt, n)
			assert.InDelta(t, tt.wantF, f, 1e-9)
		})
	}

	f, err := cell("3,75").Float()
	require.NoError(t, err)
	assert.InDelta(t, 3.75, f, 1e-9)
}

func TestGather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/koronawirus/wykaz", r.URL.Path)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, pageV2) //nolint:errcheck
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RatePerSec:  100,
		BackoffBase: time.Millisecond,
		Logger:      zap.NewNop(),
	})
	c := New(f,
		WithURL(srv.URL+"/web/koronawirus/wykaz"),
		WithClock(func() time.Time { return runAt.Add(300 * time.Millisecond) }),
		WithLogger(zap.NewNop()),
	)

	lib, err := c.Gather(context.Background())
	require.NoError(t, err)
	// 10:31 UTC is 11:31 in Warsaw in November.
	assert.Equal(t, time.Date(2020, 11, 24, 11, 31, 7, 0, time.UTC), lib.Date)
	assert.Len(t, lib.Records, 2)
}

func TestWallClock(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"winter", time.Date(2020, 11, 24, 10, 31, 7, 0, time.UTC), time.Date(2020, 11, 24, 11, 31, 7, 0, time.UTC)},
		{"winter past midnight", time.Date(2020, 11, 24, 23, 30, 0, 0, time.UTC), time.Date(2020, 11, 25, 0, 30, 0, 0, time.UTC)},
		{"summer past midnight", time.Date(2020, 7, 1, 22, 15, 0, 0, time.UTC), time.Date(2020, 7, 2, 0, 15, 0, 0, time.UTC)},
		{"sub-second dropped", time.Date(2020, 3, 4, 8, 0, 0, 999_000_000, time.UTC), time.Date(2020, 3, 4, 9, 0, 0, 0, time.UTC)},
		{"already local", time.Date(2020, 11, 24, 12, 0, 0, 0, time.FixedZone("CET", 3600)), time.Date(2020, 11, 24, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wallClock(tt.in))
		})
	}
}

func TestGather_LateEveningRunIsNextWarsawDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, pageV2) //nolint:errcheck
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RatePerSec: 100, BackoffBase: time.Millisecond, Logger: zap.NewNop()})
	c := New(f,
		WithURL(srv.URL),
		WithClock(func() time.Time { return time.Date(2020, 11, 24, 23, 30, 0, 0, time.UTC) }),
		WithLogger(zap.NewNop()),
	)

	lib, err := c.Gather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, lib.Date.Day())
	assert.Equal(t, lib.Date, lib.Records[0].Date)
}

type failingFetcher struct{ err error }

func (f failingFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, f.err
}

func TestGather_FetchError(t *testing.T) {
	boom := errors.New("connection refused")
	c := New(failingFetcher{err: boom}, WithLogger(zap.NewNop()))

	_, err := c.Gather(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

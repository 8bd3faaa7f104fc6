// Package snapshot reads and writes gathered libraries as `_type`-tagged
// JSON documents, one file per gathering day.
package snapshot

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// Type discriminators written in the `_type` field.
const (
	TypeLibrary  = "LocationsLibrary"
	TypeRecord   = "LocationEntity"
	TypeDatetime = "datetime"
)

// DatetimeFormat is the strftime layout every snapshot has been written with.
const DatetimeFormat = "%Y-%m-%d %H:%M:%S"

type envelope struct {
	Type    string          `json:"_type"`
	Version string          `json:"_version,omitempty"`
	Format  string          `json:"_format,omitempty"`
	Value   json.RawMessage `json:"value"`
}

type libraryValue struct {
	Version string            `json:"VERSION"`
	Date    datetime          `json:"date"`
	Items   []json.RawMessage `json:"items"`
}

type recordV1 struct {
	Province  string   `json:"province"`
	Total     int      `json:"total"`
	Dead      int      `json:"dead"`
	Recovered int      `json:"recovered"`
	Date      datetime `json:"date"`
	Version   string   `json:"VERSION"`
}

type recordV2 struct {
	Province      string   `json:"province"`
	Total         int      `json:"total"`
	TotalPer10k   float64  `json:"total_per_10k"`
	Dead          int      `json:"dead"`
	Recovered     int      `json:"recovered"`
	DeadByCovid   int      `json:"dead_by_covid"`
	DeadWithCovid int      `json:"dead_with_covid"`
	Date          datetime `json:"date"`
	Version       string   `json:"VERSION"`
}

// datetime is a naive timestamp serialized as a tagged object carrying its
// own strftime layout.
type datetime time.Time

func (d datetime) MarshalJSON() ([]byte, error) {
	layout, err := goLayout(DatetimeFormat)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(time.Time(d).Format(layout))
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: marshal datetime")
	}
	return json.Marshal(envelope{Type: TypeDatetime, Format: DatetimeFormat, Value: value})
}

func (d *datetime) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return eris.Wrap(err, "snapshot: decode datetime")
	}
	if env.Type != TypeDatetime {
		return eris.Wrapf(model.ErrTypeMismatch, "snapshot: expected %s, got %q", TypeDatetime, env.Type)
	}
	format := env.Format
	if format == "" {
		format = DatetimeFormat
	}
	layout, err := goLayout(format)
	if err != nil {
		return err
	}
	var raw string
	if err := json.Unmarshal(env.Value, &raw); err != nil {
		return eris.Wrap(err, "snapshot: decode datetime value")
	}
	t, err := time.ParseInLocation(layout, raw, time.UTC)
	if err != nil {
		return eris.Wrapf(err, "snapshot: parse datetime %q", raw)
	}
	*d = datetime(t)
	return nil
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'%': "%",
}

// goLayout translates the strftime subset used by the collector.
func goLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return "", eris.Errorf("snapshot: dangling %% in datetime format %q", format)
		}
		i++
		layout, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", eris.Errorf("snapshot: unsupported directive %%%c in datetime format %q", format[i], format)
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}

// Decode parses one serialized library. Each record is decoded through the
// layout its version tag selects; fields a layout lacks stay zero.
func Decode(data []byte) (*model.Library, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrap(err, "snapshot: decode document")
	}
	if env.Type != TypeLibrary {
		return nil, eris.Wrapf(model.ErrTypeMismatch, "snapshot: unsupported object type %q", env.Type)
	}

	var value libraryValue
	if err := json.Unmarshal(env.Value, &value); err != nil {
		return nil, eris.Wrap(err, "snapshot: decode library")
	}
	version := model.SchemaVersion(firstNonEmpty(env.Version, value.Version))
	if version != model.LibraryVersion {
		return nil, eris.Wrapf(model.ErrSchema, "snapshot: library version %q", version)
	}

	lib := &model.Library{
		Version: version,
		Date:    time.Time(value.Date),
		Records: make([]model.Record, 0, len(value.Items)),
	}
	for i, item := range value.Items {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: item %d", i)
		}
		lib.Records = append(lib.Records, rec)
	}
	return lib, nil
}

func decodeRecord(data []byte) (model.Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Record{}, eris.Wrap(err, "decode record")
	}
	if env.Type != TypeRecord {
		return model.Record{}, eris.Wrapf(model.ErrTypeMismatch, "unsupported object type %q", env.Type)
	}

	version := env.Version
	if version == "" {
		var peek struct {
			Version string `json:"VERSION"`
		}
		if err := json.Unmarshal(env.Value, &peek); err != nil {
			return model.Record{}, eris.Wrap(err, "decode record version")
		}
		version = peek.Version
	}

	switch model.SchemaVersion(version) {
	case model.SchemaV1:
		var v recordV1
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return model.Record{}, eris.Wrap(err, "decode v1 record")
		}
		return model.Record{
			Province:  v.Province,
			Version:   model.SchemaV1,
			Date:      time.Time(v.Date),
			Total:     v.Total,
			Dead:      v.Dead,
			Recovered: v.Recovered,
		}, nil
	case model.SchemaV2:
		var v recordV2
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return model.Record{}, eris.Wrap(err, "decode v2 record")
		}
		return model.Record{
			Province:      v.Province,
			Version:       model.SchemaV2,
			Date:          time.Time(v.Date),
			Total:         v.Total,
			TotalPer10k:   v.TotalPer10k,
			Dead:          v.Dead,
			Recovered:     v.Recovered,
			DeadByCovid:   v.DeadByCovid,
			DeadWithCovid: v.DeadWithCovid,
		}, nil
	default:
		return model.Record{}, eris.Wrapf(model.ErrSchema, "record version %q", version)
	}
}

// Encode serializes a library in the tagged layout Decode reads back.
func Encode(lib *model.Library) ([]byte, error) {
	if lib == nil {
		return nil, eris.Wrap(model.ErrTypeMismatch, "snapshot: nil library")
	}
	version := lib.Version
	if version == "" {
		version = model.LibraryVersion
	}

	items := make([]json.RawMessage, 0, len(lib.Records))
	for _, rec := range lib.Records {
		item, err := encodeRecord(rec)
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: encode %s", rec.Province)
		}
		items = append(items, item)
	}

	value, err := json.Marshal(libraryValue{
		Version: string(version),
		Date:    datetime(lib.Date),
		Items:   items,
	})
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: encode library")
	}
	out, err := json.MarshalIndent(envelope{Type: TypeLibrary, Version: string(version), Value: value}, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: encode document")
	}
	return out, nil
}

func encodeRecord(rec model.Record) (json.RawMessage, error) {
	var value any
	switch rec.Version {
	case model.SchemaV1:
		value = recordV1{
			Province:  rec.Province,
			Total:     rec.Total,
			Dead:      rec.Dead,
			Recovered: rec.Recovered,
			Date:      datetime(rec.Date),
			Version:   string(rec.Version),
		}
	case model.SchemaV2:
		value = recordV2{
			Province:      rec.Province,
			Total:         rec.Total,
			TotalPer10k:   rec.TotalPer10k,
			Dead:          rec.Dead,
			Recovered:     rec.Recovered,
			DeadByCovid:   rec.DeadByCovid,
			DeadWithCovid: rec.DeadWithCovid,
			Date:          datetime(rec.Date),
			Version:       string(rec.Version),
		}
	default:
		return nil, eris.Wrapf(model.ErrSchema, "record version %q", rec.Version)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, eris.Wrap(err, "marshal record")
	}
	return json.Marshal(envelope{Type: TypeRecord, Version: string(rec.Version), Value: raw})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

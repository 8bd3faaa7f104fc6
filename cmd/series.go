package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

var (
	seriesProvince string
	seriesFormat   string
	seriesFromDB   bool
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Print the reconciled series of one province",
	Long: "Prints one province's series reconciled from the workspace snapshots, or with --from-db\n" +
		"the series last written to the SQLite store by export --db or the scheduler.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			rows []history.Row
			err  error
		)
		if seriesFromDB {
			rows, err = storedSeries(cmd.Context(), cfg.Store, seriesProvince)
		} else {
			rows, err = workspaceSeries(cfg, seriesProvince)
		}
		if err != nil {
			return err
		}
		return writeSeries(os.Stdout, seriesFormat, history.NormalizeProvince(seriesProvince), rows)
	},
}

func init() {
	seriesCmd.Flags().StringVar(&seriesProvince, "province", "", "province name, e.g. \"Cała Polska\" or opolskie")
	seriesCmd.Flags().StringVar(&seriesFormat, "format", "json", "output format: json or yaml")
	seriesCmd.Flags().BoolVar(&seriesFromDB, "from-db", false, "read the series from store.path instead of the workspace")
	_ = seriesCmd.MarkFlagRequired("province")
	rootCmd.AddCommand(seriesCmd)
}

func workspaceSeries(c *config.Config, province string) ([]history.Row, error) {
	if err := c.Validate("report"); err != nil {
		return nil, err
	}
	ws, err := loadWorkspace(c)
	if err != nil {
		return nil, err
	}
	return ws.Rec.SeriesFor(province)
}

// storedSeries reads one province's series from the store.
func storedSeries(ctx context.Context, sc config.StoreConfig, province string) ([]history.Row, error) {
	st, err := openStore(ctx, sc)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("series: --from-db needs store.path")
	}
	defer st.Close() //nolint:errcheck

	all, err := st.LoadSeries(ctx)
	if err != nil {
		return nil, err
	}
	rows, ok := all[history.NormalizeProvince(province)]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "series: %q not in %s", province, sc.Path)
	}
	return rows, nil
}

type seriesDoc struct {
	Province string        `json:"province" yaml:"province"`
	Rows     []history.Row `json:"rows" yaml:"rows"`
}

// writeSeries encodes one province series as JSON or YAML.
func writeSeries(w io.Writer, format, province string, rows []history.Row) error {
	doc := seriesDoc{Province: province, Rows: rows}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(doc), "series: encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "series: encode yaml")
		}
		return eris.Wrap(enc.Close(), "series: close yaml")
	default:
		return eris.Errorf("series: unknown format %q, want json or yaml", format)
	}
}

package report

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/oscarsierraproject/covid19pl/internal/history"
)

// maxSheetName is the longest sheet name spreadsheet applications accept.
const maxSheetName = 31

var xlsxHeader = []string{"date", "total", "total_per_10k", "dead", "dead_by_covid", "dead_with_covid", "total_sum"}

// ExportXLSX writes every series into one workbook, a sheet per province.
func ExportXLSX(path string, series map[string][]history.Row) error {
	provinces := make([]string, 0, len(series))
	for p := range series {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)

	f := xlsx.NewFile()
	for _, p := range provinces {
		sheet, err := f.AddSheet(sheetName(p))
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", p)
		}

		header := sheet.AddRow()
		for _, h := range xlsxHeader {
			header.AddCell().SetString(h)
		}
		for _, r := range toCSVRows(series[p]) {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Date)
			row.AddCell().SetInt(r.Total)
			row.AddCell().SetFloat(r.TotalPer10k)
			row.AddCell().SetInt(r.Dead)
			row.AddCell().SetInt(r.DeadByCovid)
			row.AddCell().SetInt(r.DeadWithCovid)
			row.AddCell().SetInt(r.TotalSum)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func sheetName(province string) string {
	r := []rune(province)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	return string(r)
}

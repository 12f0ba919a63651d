package seeds

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// LoadXLSX reads seeds from the first sheet of a workbook. When the first
// row names a "url" or "website" column it is treated as a header and the
// optional name, region and priority columns are read too; otherwise the
// first column of every row is the URL.
func LoadXLSX(path string) ([]Seed, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seeds: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("seeds: %s has no sheets", path)
	}

	rows := make([][]string, 0, len(f.Sheets[0].Rows))
	for _, row := range f.Sheets[0].Rows {
		rows = append(rows, rowToStrings(row))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{"url": 0, "name": -1, "region": -1, "priority": -1}
	if header, ok := headerColumns(rows[0]); ok {
		cols = header
		rows = rows[1:]
	}

	out := make([]Seed, 0, len(rows))
	for _, r := range rows {
		s := Seed{
			URL:    cell(r, cols["url"]),
			Name:   cell(r, cols["name"]),
			Region: cell(r, cols["region"]),
		}
		s.Priority = atoiOr(cell(r, cols["priority"]), 0)
		out = append(out, s)
	}
	return normalize(out), nil
}

func headerColumns(row []string) (map[string]int, bool) {
	cols := map[string]int{"url": -1, "name": -1, "region": -1, "priority": -1}
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "url", "website", "site":
			cols["url"] = i
		case "name", "truck", "business":
			cols["name"] = i
		case "region", "city":
			cols["region"] = i
		case "priority":
			cols["priority"] = i
		}
	}
	return cols, cols["url"] >= 0
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}

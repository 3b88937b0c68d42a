package seed

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Spreadsheet columns, matched case-insensitively against the header row.
const (
	colName     = "name"
	colURL      = "url"
	colStreet   = "street"
	colCity     = "city"
	colState    = "state"
	colZip      = "zip"
	colLat      = "lat"
	colLng      = "lng"
	colType     = "type"
	colProducts = "products"
)

// readXLSX reads seed rows from the first sheet. The first row is the header;
// only the name column is required.
func readXLSX(path string) ([]Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("seed: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rowToStrings(sheet.Rows[0]) {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colName]; !ok {
		return nil, eris.Errorf("seed: xlsx header missing %q column", colName)
	}

	var out []Record
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}
		if get(colName) == "" && get(colURL) == "" {
			continue
		}
		out = append(out, Record{
			Name:     get(colName),
			URL:      get(colURL),
			Street:   get(colStreet),
			City:     get(colCity),
			State:    get(colState),
			Zip:      get(colZip),
			Lat:      parseCoord(get(colLat)),
			Lng:      parseCoord(get(colLng)),
			Type:     get(colType),
			Products: get(colProducts),
		})
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

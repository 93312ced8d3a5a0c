// Package accountfile reads account lists from CSV or XLSX files and writes
// stored leads to XLSX.
package accountfile

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/signal-hunter/internal/model"
)

var (
	domainHeaders = []string{"domain", "website", "url"}
	nameHeaders   = []string{"company", "company_name", "name", "account"}
)

// Read loads accounts from a .csv or .xlsx file. A header row naming a
// domain column is optional; without one the first column is the domain and
// the second the company name. Rows without a usable domain are skipped and
// repeated domains keep the first row.
func Read(path string) ([]model.ListAccount, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("accountfile: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "accountfile: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comment = '#'

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "accountfile: read csv row")
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "accountfile: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("accountfile: xlsx has no sheets")
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func toAccounts(rows [][]string) []model.ListAccount {
	if len(rows) == 0 {
		return nil
	}
	domainCol, nameCol := 0, 1
	if d, n, ok := headerColumns(rows[0]); ok {
		domainCol, nameCol = d, n
		rows = rows[1:]
	}

	seen := make(map[string]bool)
	var out []model.ListAccount
	for _, row := range rows {
		domain := model.NormalizeDomain(cell(row, domainCol))
		if domain == "" || !strings.Contains(domain, ".") || seen[domain] {
			continue
		}
		seen[domain] = true
		out = append(out, model.ListAccount{
			Domain:      domain,
			CompanyName: cell(row, nameCol),
		})
	}
	return out
}

// headerColumns finds the domain and name columns in a header row. nameCol
// is -1 when the header has no name column.
func headerColumns(row []string) (domainCol, nameCol int, ok bool) {
	domainCol, nameCol = -1, -1
	for i, h := range row {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case domainCol < 0 && contains(domainHeaders, h):
			domainCol = i
		case nameCol < 0 && contains(nameHeaders, h):
			nameCol = i
		}
	}
	return domainCol, nameCol, domainCol >= 0
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

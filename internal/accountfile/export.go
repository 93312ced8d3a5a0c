package accountfile

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/signal-hunter/internal/model"
)

var leadColumns = []string{
	"Company", "Domain", "Mode", "Score", "Confidence", "Signals", "Why Now",
	"Opener (short)", "Opener (medium)", "Evidence", "LinkedIn", "Status", "Created",
}

// WriteLeads saves leads to an XLSX file at path, one row per lead.
func WriteLeads(path string, leads []model.LeadRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "accountfile: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range leadColumns {
		header.AddCell().SetString(c)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		row.AddCell().SetString(l.CompanyName)
		row.AddCell().SetString(l.Domain)
		row.AddCell().SetString(string(l.Mode))
		row.AddCell().SetInt(l.Score)
		row.AddCell().SetFloatWithFormat(l.OverallConfidence, "0.00")
		row.AddCell().SetString(signalNames(l.TriggeredSignals))
		row.AddCell().SetString(l.WhyNow)
		row.AddCell().SetString(l.OpenerShort)
		row.AddCell().SetString(l.OpenerMedium)
		row.AddCell().SetString(strings.Join(l.EvidenceURLs, "\n"))
		row.AddCell().SetString(strings.Join(l.LinkedInSearchHints, "\n"))
		row.AddCell().SetString(string(l.Status))
		row.AddCell().SetString(l.CreatedAt.Format("2006-01-02 15:04"))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "accountfile: save xlsx")
	}
	return nil
}

func signalNames(ts []model.TriggeredSignal) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

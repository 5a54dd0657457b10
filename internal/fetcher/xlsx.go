package fetcher

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// correctionColumns maps accepted header spellings onto canonical column
// roles. Review teams hand these sheets back with whatever headers their
// template used.
var correctionColumns = map[string]string{
	"source_file":  "source_file",
	"file":         "source_file",
	"page":         "page",
	"page_number":  "page",
	"field":        "field",
	"value":        "value",
	"corrected_by": "corrected_by",
	"reviewer":     "corrected_by",
}

var knownFields = map[string]bool{
	model.FieldTicketNumber:   true,
	model.FieldHaulerID:       true,
	model.FieldTicketDate:     true,
	model.FieldMaterial:       true,
	model.FieldQuantity:       true,
	model.FieldManifestNumber: true,
	model.FieldOriginSite:     true,
	model.FieldDestination:    true,
}

// ReadCorrections parses a reviewer-returned corrections spreadsheet. The
// first row is the header; source_file, page, field, and value columns are
// required. Rows with an unknown field name or bad page number fail the
// whole import so a typoed sheet never half-applies.
func ReadCorrections(path string) ([]model.Correction, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open corrections %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("fetcher: corrections %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("fetcher: corrections %s has no data rows", path)
	}

	cols, err := mapHeader(sheet.Rows[0])
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []model.Correction
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if isBlankRow(cells) {
			continue
		}
		c, err := parseCorrectionRow(cells, cols, now)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: corrections row %d", i+2)
		}
		out = append(out, c)
	}
	return out, nil
}

func mapHeader(row *xlsx.Row) (map[string]int, error) {
	cols := make(map[string]int)
	for i, cell := range row.Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		if role, ok := correctionColumns[name]; ok {
			cols[role] = i
		}
	}
	for _, required := range []string{"source_file", "page", "field", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("fetcher: corrections header missing %q column", required)
		}
	}
	return cols, nil
}

func parseCorrectionRow(cells []string, cols map[string]int, now time.Time) (model.Correction, error) {
	get := func(role string) string {
		idx, ok := cols[role]
		if !ok || idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	page, err := strconv.Atoi(get("page"))
	if err != nil || page < 1 {
		return model.Correction{}, eris.Errorf("bad page number %q", get("page"))
	}
	field := strings.ToLower(get("field"))
	if !knownFields[field] {
		return model.Correction{}, eris.Errorf("unknown field %q", get("field"))
	}
	sourceFile := get("source_file")
	if sourceFile == "" {
		return model.Correction{}, eris.New("empty source_file")
	}

	return model.Correction{
		SourceFile:  sourceFile,
		PageNumber:  page,
		Field:       field,
		Value:       get("value"),
		CorrectedBy: get("corrected_by"),
		CreatedAt:   now,
	}, nil
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

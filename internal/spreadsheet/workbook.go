// Package spreadsheet converts between xlsx workbooks and sector mapping rows.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models"
	"sector-registry/sectorhub/internal/models/dtos"

	"github.com/xuri/excelize/v2"
)

const (
	ColSectorCode     = "SectorCode"
	ColGroupType      = "GroupType"
	ColGroupName      = "GroupName"
	ColEffectiveStart = "EffectiveStart"
	ColGroupID        = "GroupId"
	ColEffectiveEnd   = "EffectiveEnd"

	TemplateSheet = "Mappings"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// ParseImportWorkbook reads the first sheet of an xlsx upload. Row 1 is the
// header; columns are matched by name case-insensitively. Rows without a
// sector code are skipped. Rows without an effective start take
// defaultStart, and fail when it is nil.
func ParseImportWorkbook(r io.Reader, defaultStart *time.Time, loc *time.Location) ([]dtos.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "failed to read workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "workbook is empty")
	}

	cols := headerIndex(rows[0])
	for _, required := range []string{ColSectorCode, ColGroupType} {
		if _, ok := cols[strings.ToLower(required)]; !ok {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "missing column %s", required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := cols[strings.ToLower(name)]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	out := make([]dtos.ImportRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		sectorCode := cell(row, ColSectorCode)
		if sectorCode == "" {
			continue
		}

		rawType := cell(row, ColGroupType)
		if rawType == "" {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "row %d: %s is required", line, ColGroupType)
		}
		groupType, err := models.ParseGroupType(rawType)
		if err != nil {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidGroupType, "row %d: invalid group type %q", line, rawType)
		}

		var start time.Time
		if rawStart := cell(row, ColEffectiveStart); rawStart != "" {
			start, err = parseCellDate(rawStart, loc)
			if err != nil {
				return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "row %d: %v", line, err)
			}
		} else if defaultStart != nil {
			start = *defaultStart
		} else {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "row %d: %s is required", line, ColEffectiveStart)
		}

		out = append(out, dtos.ImportRow{
			SectorCode:         sectorCode,
			GroupType:          string(groupType),
			GroupName:          cell(row, ColGroupName),
			EffectiveStartDate: start,
		})
	}

	if len(out) == 0 {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "workbook contains no mapping rows")
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

// parseCellDate accepts Excel serial dates and common text layouts
func parseCellDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", raw)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// BuildTemplateWorkbook writes the latest active mapping of every sector as an
// xlsx template that ParseImportWorkbook reads back.
func BuildTemplateWorkbook(rows []dtos.ActiveMappingRow, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return nil, fmt.Errorf("failed to name template sheet: %w", err)
	}

	header := []interface{}{ColSectorCode, ColGroupType, ColGroupName, ColEffectiveStart, ColGroupID, ColEffectiveEnd}
	if err := f.SetSheetRow(TemplateSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write template header: %w", err)
	}

	for i, row := range rows {
		values := []interface{}{
			row.SectorCode,
			row.GroupType.Label(),
			row.GroupName,
			formatDate(row.EffectiveStart, loc),
			row.GroupID,
			formatDate(row.EffectiveEnd, loc),
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(TemplateSheet, cellRef, &values); err != nil {
			return nil, fmt.Errorf("failed to write template row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(TemplateSheet, "A", "F", 18)
	if err := f.SetPanes(TemplateSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze template header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02")
}

// Package xlsx reads override intents from spreadsheets and writes the
// override export workbook.
package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// Column headers shared by the import and export layouts.
const (
	ColTagNumber              = "TagNumber"
	ColDescription            = "Description"
	ColOverrideType           = "OverrideType"
	ColOverrideMethod         = "OverrideMethod"
	ColAppliedState           = "AppliedState"
	ColRemovedState           = "RemovedState"
	ColComment                = "Comment"
	ColAdditionalValueApplied = "AdditionalValueAppliedState"
	ColAdditionalValueRemoved = "AdditionalValueRemovedState"
	ColCurrentState           = "CurrentState"
)

// DefaultDescription fills blank descriptions on import.
const DefaultDescription = "FLT STATUS"

// ImportSheet is the preferred sheet name; the first sheet is used otherwise.
const ImportSheet = "overrides"

// ExportSheet is the sheet written by WriteOverrides.
const ExportSheet = "SOC_Overrides"

const (
	headerScanRows  = 10
	exportHeaderRow = 6
	maxColumnWidth  = 50
)

var exportHeaders = []string{
	ColTagNumber, ColDescription, ColOverrideType, ColOverrideMethod,
	ColAppliedState, ColRemovedState, ColComment,
	ColAdditionalValueApplied, ColAdditionalValueRemoved, ColCurrentState,
}

// legacyColumns is the positional layout of sheets without a header row.
var legacyColumns = map[string]int{
	ColTagNumber:              0,
	ColDescription:            1,
	ColComment:                2,
	ColOverrideType:           3,
	ColOverrideMethod:         4,
	ColAppliedState:           5,
	ColAdditionalValueApplied: 6,
	ColRemovedState:           7,
	ColAdditionalValueRemoved: 8,
}

// ErrNoRows is returned when a sheet has no override rows.
var ErrNoRows = errors.New("xlsx: no override rows")

// ReadIntents reads titled intents until the first row with an empty tag.
// Columns are located by header; sheets without a header row use the
// legacy positional layout starting at row 2.
func ReadIntents(r io.Reader) ([]overrides.TitledIntent, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheet := ImportSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, ErrNoRows
		}
		sheet = list[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read %s: %w", sheet, err)
	}

	columns, start := locateHeader(rows)
	var out []overrides.TitledIntent
	for _, row := range rows[min(start, len(rows)):] {
		cell := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		tag := cell(ColTagNumber)
		if tag == "" {
			break
		}
		desc := cell(ColDescription)
		if desc == "" {
			desc = DefaultDescription
		}
		out = append(out, overrides.TitledIntent{
			TagNumber:              tag,
			Description:            desc,
			TypeTitle:              cell(ColOverrideType),
			MethodTitle:            cell(ColOverrideMethod),
			AppliedStateTitle:      cell(ColAppliedState),
			RemovedStateTitle:      cell(ColRemovedState),
			Comment:                cell(ColComment),
			AdditionalValueApplied: cell(ColAdditionalValueApplied),
			AdditionalValueRemoved: cell(ColAdditionalValueRemoved),
		})
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// locateHeader returns the column index per header and the first data row.
func locateHeader(rows [][]string) (map[string]int, int) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		columns := make(map[string]int)
		for j, v := range rows[i] {
			name := strings.TrimSpace(v)
			if name != "" {
				if _, seen := columns[name]; !seen {
					columns[name] = j
				}
			}
		}
		if _, ok := columns[ColTagNumber]; ok {
			return columns, i + 1
		}
	}
	return legacyColumns, 1
}

// WriteOverrides renders the export workbook: a metadata block in rows 1-4,
// a bold header in row 6 and one override per row from row 7.
func WriteOverrides(certificateID string, rows []overrides.ExistingOverride, exportedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(ExportSheet, "A1", "SOC Overrides Export")
	_ = f.SetCellValue(ExportSheet, "A2", fmt.Sprintf("SOC ID: %s", certificateID))
	_ = f.SetCellValue(ExportSheet, "A3", fmt.Sprintf("Export Date: %s", exportedAt.Format("2006-01-02 15:04:05")))
	_ = f.SetCellValue(ExportSheet, "A4", fmt.Sprintf("Total Overrides: %d", len(rows)))

	widths := make([]int, len(exportHeaders))
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, exportHeaderRow)
		_ = f.SetCellValue(ExportSheet, cell, h)
		widths[i] = len(h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, exportHeaderRow)
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), exportHeaderRow)
	if err := f.SetCellStyle(ExportSheet, first, last, bold); err != nil {
		return nil, err
	}

	for i, row := range rows {
		values := exportValues(row)
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, exportHeaderRow+1+i)
			_ = f.SetCellValue(ExportSheet, cell, v)
			if len(v) > widths[j] {
				widths[j] = len(v)
			}
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(ExportSheet, col, col, float64(min(w+2, maxColumnWidth)))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportValues(row overrides.ExistingOverride) []string {
	return []string{
		row.TagNumber,
		row.Description,
		row.TypeTitle,
		row.MethodTitle,
		row.AppliedStateTitle,
		row.RemovedStateTitle,
		row.Comment,
		row.AdditionalValueApplied,
		row.AdditionalValueRemoved,
		row.CurrentStateTitle,
	}
}

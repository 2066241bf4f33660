// SPDX-License-Identifier: MIT

package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// renderXLSX writes a tabular workbook: one row per segment with
// timing, speaker, role and confidence columns.
func renderXLSX(t *Transcript) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Transcript"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"#", "Start", "End", "Speaker", "Role", "Content", "Confidence"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, seg := range t.Segments {
		values := []any{
			row + 1,
			formatTimestamp(seg.StartSeconds, '.'),
			formatTimestamp(seg.EndSeconds, '.'),
			fmt.Sprintf("Speaker %d", seg.SpeakerID),
			roleLabelEN(t.RoleFor(seg)),
			seg.Content,
		}
		if seg.ConfidenceKnown() {
			values = append(values, seg.Confidence)
		} else {
			values = append(values, "")
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	// Content column needs room to be readable when opened directly.
	if err := f.SetColWidth(sheet, "F", "F", 80); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

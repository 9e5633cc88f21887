package sheetimport

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/icetech/icetray/internal/icecube"
)

// ExportXLSX writes doc as a workbook that ParseBytes reads back into an
// equivalent document: a "Signals" sheet with one row per signal and an
// "IceCube" sheet holding the cube name.
func ExportXLSX(doc icecube.Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SignalsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(MetaSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}

	_ = f.SetCellValue(MetaSheet, "A1", "name")
	_ = f.SetCellValue(MetaSheet, "B1", doc.Name)

	header := []any{"name", "RW", "scanRate"}
	if err := f.SetSheetRow(SignalsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	_ = f.SetCellStyle(SignalsSheet, "A1", "C1", bold)
	_ = f.SetColWidth(SignalsSheet, "A", "A", 28)
	_ = f.SetColWidth(SignalsSheet, "C", "C", 16)

	for i, sig := range doc.Signals {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{sig.Name, sig.RW, sig.ScanRate}
		if err := f.SetSheetRow(SignalsSheet, cellRef, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

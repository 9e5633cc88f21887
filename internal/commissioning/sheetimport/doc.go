// Package sheetimport reads IceCube signal lists from spreadsheets.
//
// Commissioning engineers often keep the signal list of a cube in a
// workbook. This package turns such a sheet into an icecube.Document that
// the catalogue can build, and writes a document back out as a workbook.
//
// # Supported Formats
//
//   - .xlsx: Excel workbook. The "Signals" sheet is read if present,
//     otherwise the first sheet. An optional "IceCube" sheet carries the
//     cube name in B1.
//   - .csv: comma, semicolon or tab separated text.
//
// # Sheet Layout
//
// The first non-blank row is the header. Column names are matched
// case-insensitively with common aliases:
//
//	name      signal, signal name
//	RW        r/w, direction, dir
//	scanRate  scan rate, scan_rate, scan
//
// Blank rows are skipped. Rows with a blank name produce a warning and are
// skipped. Direction cells accept R/W/read/write in any case; anything else
// is passed through unchanged so that building the document reports it.
//
// # Usage
//
//	parser := sheetimport.NewParser()
//	result, err := parser.ParseBytes(data, "rpi1.xlsx")
//	if err != nil {
//	    return err
//	}
//	entry, err := registry.Build(ctx, result.Document, catalogue.SourceCLI)
package sheetimport

package sheetimport

import (
	"time"

	"github.com/icetech/icetray/internal/icecube"
)

// Result is the outcome of parsing one sheet.
type Result struct {
	// Document is the cube described by the sheet, ready to build.
	Document icecube.Document `json:"document"`

	// SourceFile is the base name of the parsed file.
	SourceFile string `json:"source_file"`

	// Format is "xlsx" or "csv".
	Format string `json:"format"`

	// Sheet is the worksheet read (xlsx only).
	Sheet string `json:"sheet,omitempty"`

	ParsedAt time.Time `json:"parsed_at"`

	// Warnings lists non-fatal issues, in row order.
	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a non-fatal issue tied to a sheet row (1-based; 0 for the file).
type Warning struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

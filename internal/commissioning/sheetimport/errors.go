package sheetimport

import "errors"

// Sentinel errors for sheet import.
var (
	// ErrInvalidFile indicates the data is not a readable workbook or CSV file.
	ErrInvalidFile = errors.New("invalid signal sheet")

	// ErrUnsupportedFormat indicates an extension other than .xlsx or .csv.
	ErrUnsupportedFormat = errors.New("unsupported sheet format")

	// ErrFileTooLarge indicates the file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrMissingColumn indicates a required header column was not found.
	ErrMissingColumn = errors.New("required column missing")
)

// Warning codes for non-fatal parse issues.
const (
	WarnBlankName        = "BLANK_NAME"
	WarnScanRateIgnored  = "SCAN_RATE_IGNORED"
	WarnNoSignals        = "NO_SIGNALS"
	WarnDirectionUnknown = "DIRECTION_UNKNOWN"
)

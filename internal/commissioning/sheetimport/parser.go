package sheetimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/icetech/icetray/internal/icecube"
)

// Parser configuration constants.
const (
	// MaxFileSize is the maximum accepted file size (10MB).
	MaxFileSize = 10 * 1024 * 1024

	formatXLSX = "xlsx"
	formatCSV  = "csv"

	// SignalsSheet and MetaSheet are the worksheet names ExportXLSX writes.
	SignalsSheet = "Signals"
	MetaSheet    = "IceCube"
)

// Parser parses signal sheets into IceCube documents.
type Parser struct {
	// name overrides the cube name taken from the workbook or file name.
	name string
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// WithName returns a parser that gives every parsed cube the given name.
func (p *Parser) WithName(name string) *Parser {
	cpy := *p
	cpy.name = name
	return &cpy
}

// ParseBytes parses a sheet, choosing the reader by the filename extension.
//
// The cube name is, in order of preference: the WithName override, B1 of
// the workbook's "IceCube" sheet, the file name without extension.
func (p *Parser) ParseBytes(data []byte, filename string) (*Result, error) {
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	result := &Result{
		SourceFile: filepath.Base(filename),
		ParsedAt:   time.Now().UTC(),
	}

	var rows [][]string
	var sheetName string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		result.Format = formatXLSX
		rows, sheetName, err = readWorkbook(data, result)
	case ".csv":
		result.Format = formatCSV
		rows, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}

	switch {
	case p.name != "":
		result.Document.Name = p.name
	case sheetName != "":
		result.Document.Name = sheetName
	default:
		result.Document.Name = strings.TrimSuffix(result.SourceFile, filepath.Ext(result.SourceFile))
	}

	if err := p.parseRows(rows, result); err != nil {
		return nil, err
	}
	return result, nil
}

// readWorkbook returns the rows of the signal sheet and the cube name from
// the meta sheet, if any.
func readWorkbook(data []byte, result *Result) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sheet := ""
	for _, s := range sheets {
		if strings.EqualFold(s, SignalsSheet) {
			sheet = s
			break
		}
	}
	if sheet == "" {
		for _, s := range sheets {
			if !strings.EqualFold(s, MetaSheet) {
				sheet = s
				break
			}
		}
	}
	if sheet == "" {
		return nil, "", fmt.Errorf("%w: workbook has no signal sheet", ErrInvalidFile)
	}
	result.Sheet = sheet

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading sheet %q: %w", ErrInvalidFile, sheet, err)
	}

	name := ""
	for _, s := range sheets {
		if strings.EqualFold(s, MetaSheet) {
			v, err := f.GetCellValue(s, "B1")
			if err == nil {
				name = strings.TrimSpace(v)
			}
			break
		}
	}
	return rows, name, nil
}

// readCSV reads all records, detecting the delimiter from the first line.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")) // UTF-8 BOM from Excel exports

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = r.Comma != '\t'

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// columns holds header positions; scan is -1 when the sheet has no scan column.
type columns struct {
	name, rw, scan int
}

func (p *Parser) parseRows(rows [][]string, result *Result) error {
	headerRow := -1
	for i, row := range rows {
		if !isBlank(row) {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return fmt.Errorf("%w: no header row", ErrInvalidFile)
	}

	cols, err := findColumns(rows[headerRow])
	if err != nil {
		return err
	}

	signals := []icecube.SignalDescriptor{}
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if isBlank(row) {
			continue
		}

		name := cell(row, cols.name)
		if name == "" {
			result.warn(line, WarnBlankName, "row has no signal name; skipped")
			continue
		}

		desc := icecube.SignalDescriptor{
			Name: name,
			RW:   normaliseDirection(cell(row, cols.rw)),
		}
		scan := cell(row, cols.scan)

		switch desc.RW {
		case string(icecube.DirectionRead):
			desc.ScanRate = scan
		case string(icecube.DirectionWrite):
			if scan != "" {
				result.warn(line, WarnScanRateIgnored,
					fmt.Sprintf("write signal %q has scan rate %q; ignored", name, scan))
			}
		default:
			result.warn(line, WarnDirectionUnknown,
				fmt.Sprintf("signal %q has direction %q", name, desc.RW))
			desc.ScanRate = scan
		}
		signals = append(signals, desc)
	}

	if len(signals) == 0 {
		result.warn(0, WarnNoSignals, "sheet lists no signals")
	}
	result.Document.Signals = signals
	return nil
}

func findColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	cols := columns{
		name: findColumn(index, "name", "signal", "signal name"),
		rw:   findColumn(index, "rw", "r/w", "direction", "dir"),
		scan: findColumn(index, "scanrate", "scan rate", "scan_rate", "scan"),
	}
	if cols.name < 0 {
		return cols, fmt.Errorf("%w: name", ErrMissingColumn)
	}
	if cols.rw < 0 {
		return cols, fmt.Errorf("%w: RW", ErrMissingColumn)
	}
	return cols, nil
}

func findColumn(index map[string]int, names ...string) int {
	for _, name := range names {
		if idx, ok := index[name]; ok {
			return idx
		}
	}
	return -1
}

// normaliseDirection maps spreadsheet spellings onto R and W. Unknown values
// are returned trimmed but otherwise unchanged.
func normaliseDirection(v string) string {
	switch strings.ToLower(v) {
	case "r", "read":
		return string(icecube.DirectionRead)
	case "w", "write":
		return string(icecube.DirectionWrite)
	default:
		return v
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (r *Result) warn(row int, code, msg string) {
	r.Warnings = append(r.Warnings, Warning{Row: row, Code: code, Message: msg})
}

// Package document reads and writes IceCube documents as JSON or YAML.
//
// JSON is the format the configuration editor saves and the canonical
// output format. YAML is accepted for hand-written documents.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/icetech/icetray/internal/icecube"
)

// Format identifies a document encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// maxDocumentSize bounds what Decode will read. A full cube is a few KB.
const maxDocumentSize = 1 << 20

var (
	// ErrUnknownFormat is returned for an unsupported format name or extension.
	ErrUnknownFormat = errors.New("document: unknown format")

	// ErrDecode is returned when the input is not a well-formed document.
	ErrDecode = errors.New("document: malformed input")
)

// ParseFormat maps a format name ("json", "yaml", "yml") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Decode reads one document from r.
func Decode(r io.Reader, f Format) (icecube.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return icecube.Document{}, fmt.Errorf("reading document: %w", err)
	}
	if len(data) > maxDocumentSize {
		return icecube.Document{}, fmt.Errorf("%w: larger than %d bytes", ErrDecode, maxDocumentSize)
	}
	return DecodeBytes(data, f)
}

// DecodeBytes parses one document from data. Keys other than name,
// signals, RW and scanRate are rejected with an error naming the key.
// Empty YAML input decodes to an empty document.
func DecodeBytes(data []byte, f Format) (icecube.Document, error) {
	var doc icecube.Document
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return icecube.Document{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return icecube.Document{}, fmt.Errorf("%w: trailing data after document", ErrDecode)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return icecube.Document{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	default:
		return icecube.Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
	return doc, nil
}

// LoadFile reads a document from disk, choosing the codec by extension.
func LoadFile(path string) (icecube.Document, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return icecube.Document{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return icecube.Document{}, fmt.Errorf("opening document: %w", err)
	}
	defer file.Close()

	doc, err := Decode(file, f)
	if err != nil {
		return icecube.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Encode writes doc to w. JSON output is indented with two spaces and
// ends with a newline.
func Encode(w io.Writer, doc icecube.Document, f Format) error {
	data, err := Marshal(doc, f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Marshal returns the encoding of doc.
func Marshal(doc icecube.Document, f Format) ([]byte, error) {
	if doc.Signals == nil {
		doc.Signals = []icecube.SignalDescriptor{}
	}
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

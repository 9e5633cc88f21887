package icecube

import (
	"fmt"
	"strings"
)

// Direction says whether the IOC reads a signal from the microcontroller or
// writes it. The values match the RW field of the input document.
type Direction string

const (
	// DirectionRead is an analog input (ai record, get_ protocol function).
	DirectionRead Direction = "R"

	// DirectionWrite is an analog output (ao record, set_ protocol function).
	DirectionWrite Direction = "W"
)

// Record types emitted for each direction.
const (
	RecordTypeRead  = "ai"
	RecordTypeWrite = "ao"
)

// DefaultScanRate is the SCAN value given to read signals built from a
// bare name.
const DefaultScanRate = ".1 second"

// setSuffix is appended to a write signal's name to form its record name.
const setSuffix = ":set"

// Signal is one named I/O value of an IceCube.
//
// It is a tagged variant: Direction selects between the read and write
// behaviour, and scanRate is only meaningful for read signals. Signals are
// values; copying one never shares state.
type Signal struct {
	name      string
	direction Direction
	scanRate  string
}

// NewReadSignal creates a read signal with an explicit scan rate.
func NewReadSignal(name, scanRate string) (Signal, error) {
	if err := ValidateName(name); err != nil {
		return Signal{}, err
	}
	if err := ValidateScanRate(scanRate); err != nil {
		return Signal{}, fmt.Errorf("signal %s: %w", name, err)
	}
	return Signal{name: name, direction: DirectionRead, scanRate: scanRate}, nil
}

// NewDefaultReadSignal creates a read signal scanned at DefaultScanRate.
func NewDefaultReadSignal(name string) (Signal, error) {
	return NewReadSignal(name, DefaultScanRate)
}

// NewWriteSignal creates a write signal.
func NewWriteSignal(name string) (Signal, error) {
	if err := ValidateName(name); err != nil {
		return Signal{}, err
	}
	return Signal{name: name, direction: DirectionWrite}, nil
}

// SignalFromDescriptor builds a signal from one entry of an input document.
func SignalFromDescriptor(d SignalDescriptor) (Signal, error) {
	switch Direction(d.RW) {
	case DirectionRead:
		return NewReadSignal(d.Name, d.ScanRate)
	case DirectionWrite:
		return NewWriteSignal(d.Name)
	case "":
		return Signal{}, fmt.Errorf("%w: RW is required (signal %q)", ErrMissingField, d.Name)
	default:
		return Signal{}, fmt.Errorf("%w: %q (signal %q)", ErrUnrecognizedDirection, d.RW, d.Name)
	}
}

// Name returns the signal name.
func (s Signal) Name() string { return s.name }

// Direction returns DirectionRead or DirectionWrite.
func (s Signal) Direction() Direction { return s.direction }

// IsRead reports whether s is a read signal.
func (s Signal) IsRead() bool { return s.direction == DirectionRead }

// IsWrite reports whether s is a write signal.
func (s Signal) IsWrite() bool { return s.direction == DirectionWrite }

// ScanRate returns the SCAN value of a read signal, or "" for a write signal.
func (s Signal) ScanRate() string { return s.scanRate }

// RecordType returns "ai" for read signals and "ao" for write signals.
func (s Signal) RecordType() string {
	if s.direction == DirectionWrite {
		return RecordTypeWrite
	}
	return RecordTypeRead
}

// ControlPointName returns the EPICS record name of the signal.
//
// Write signals are addressed as <name>:set. Read records carry the bare
// name; their get_ protocol function is the ":get" side of the point.
func (s Signal) ControlPointName() string {
	if s.direction == DirectionWrite {
		return s.name + setSuffix
	}
	return s.name
}

// protoFunctionName is get_<name> or set_<name>.
func (s Signal) protoFunctionName() string {
	if s.direction == DirectionWrite {
		return "set_" + s.name
	}
	return "get_" + s.name
}

// Record returns the database record block for the signal. targetFile is
// the protocol file named in the INP/OUT link.
func (s Signal) Record(targetFile string) string {
	link := fmt.Sprintf("@%s %s() $(PORT)", targetFile, s.protoFunctionName())

	lines := []string{
		fmt.Sprintf("record(%s, %s) {", s.RecordType(), s.ControlPointName()),
		dbField("DTYP", "stream"),
	}
	switch s.direction {
	case DirectionWrite:
		lines = append(lines, dbField("OUT", link))
	default:
		lines = append(lines,
			dbField("INP", link),
			dbField("SCAN", s.scanRate),
		)
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n") + "\n"
}

// ProtoFunction returns the StreamDevice protocol function for the signal,
// keyed on the single character tag.
func (s Signal) ProtoFunction(tag byte) string {
	lines := []string{s.protoFunctionName() + " {"}
	switch s.direction {
	case DirectionWrite:
		lines = append(lines, fmt.Sprintf("\tout \"%c%%d\\n\";", tag))
	default:
		lines = append(lines,
			fmt.Sprintf("\tout \"%c\";", tag),
			fmt.Sprintf("\tin \"%c %%f\";", tag),
		)
	}
	lines = append(lines, "\tExtraInput = Ignore;", "}")
	return strings.Join(lines, "\n") + "\n"
}

// dbField renders one tab-indented FIELD("value") line.
func dbField(field, value string) string {
	return fmt.Sprintf("\t%s(\"%s\")", field, value)
}

// Equal reports whether s and o are duplicates: same direction, name and
// record type, and for read signals the same scan rate.
func (s Signal) Equal(o Signal) bool {
	if s.direction != o.direction || s.name != o.name || s.RecordType() != o.RecordType() {
		return false
	}
	if s.direction == DirectionRead {
		return s.scanRate == o.scanRate
	}
	return true
}

// Descriptor returns the minimal document entry describing s.
func (s Signal) Descriptor() SignalDescriptor {
	d := SignalDescriptor{Name: s.name, RW: string(s.direction)}
	if s.direction == DirectionRead {
		d.ScanRate = s.scanRate
	}
	return d
}

// String implements fmt.Stringer.
func (s Signal) String() string {
	if s.direction == DirectionWrite {
		return fmt.Sprintf("WriteSignal %s (%s)", s.name, s.ControlPointName())
	}
	return fmt.Sprintf("ReadSignal %s (scan %s)", s.name, s.scanRate)
}

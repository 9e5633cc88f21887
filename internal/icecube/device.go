package icecube

import (
	"fmt"
	"strings"
)

// Device is a validated IceCube: a name plus an ordered list of signals,
// with both generated artifacts computed once at construction.
//
// A Device has no setters. To change a cube, build a new Device.
type Device struct {
	name         string
	signals      []Signal
	readSignals  []Signal
	writeSignals []Signal
	document     Document
	targetFile   string
	dbText       string
	protoText    string
}

// Option configures device construction.
type Option func(*options)

type options struct {
	targetFile string
}

// WithTargetFile sets the file named in the INP/OUT links of the cached
// DB text. An empty value keeps DefaultTargetFile.
func WithTargetFile(name string) Option {
	return func(o *options) {
		if name != "" {
			o.targetFile = name
		}
	}
}

// New builds a Device from a name and an ordered signal list.
//
// It validates the name, rejects duplicate signals and lists longer than
// the tag alphabet, partitions the signals by direction and renders both
// artifacts. On error no Device is returned.
func New(name string, signals []Signal, opts ...Option) (*Device, error) {
	o := options{targetFile: DefaultTargetFile}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.ContainsAny(o.targetFile, "\" \t\r\n\\") {
		return nil, fmt.Errorf("%w: target file %q", ErrInvalidName, o.targetFile)
	}

	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	for i, sig := range signals {
		if sig.direction != DirectionRead && sig.direction != DirectionWrite {
			return nil, fmt.Errorf("%w: signal at position %d", ErrUnrecognizedDirection, i)
		}
	}
	if err := ValidateSignalList(signals); err != nil {
		return nil, err
	}
	if len(signals) > MaxSignals {
		return nil, fmt.Errorf("%w: %d signals, at most %d allowed", ErrTagExhaustion, len(signals), MaxSignals)
	}

	d := &Device{
		name:       name,
		signals:    make([]Signal, len(signals)),
		targetFile: o.targetFile,
	}
	copy(d.signals, signals)

	for _, sig := range d.signals {
		if sig.IsRead() {
			d.readSignals = append(d.readSignals, sig)
		} else {
			d.writeSignals = append(d.writeSignals, sig)
		}
	}

	d.document = Document{Name: name, Signals: make([]SignalDescriptor, 0, len(d.signals))}
	for _, sig := range d.signals {
		d.document.Signals = append(d.document.Signals, sig.Descriptor())
	}

	proto, err := generateProto(d.signals)
	if err != nil {
		return nil, err
	}
	d.protoText = proto
	d.dbText = generateDB(d.signals, d.targetFile)

	return d, nil
}

// FromDocument builds a Device from an input document. Every descriptor
// must carry a recognised RW value; nothing is dropped silently.
func FromDocument(doc Document, opts ...Option) (*Device, error) {
	if err := ValidateName(doc.Name); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	signals := make([]Signal, 0, len(doc.Signals))
	for i, desc := range doc.Signals {
		sig, err := SignalFromDescriptor(desc)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		signals = append(signals, sig)
	}
	return New(doc.Name, signals, opts...)
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// TargetFile returns the file named in the cached DB text's links.
func (d *Device) TargetFile() string { return d.targetFile }

// Signals returns the signals in declaration order.
func (d *Device) Signals() []Signal { return cloneSignals(d.signals) }

// ReadSignals returns the read signals in declaration order.
func (d *Device) ReadSignals() []Signal { return cloneSignals(d.readSignals) }

// WriteSignals returns the write signals in declaration order.
func (d *Device) WriteSignals() []Signal { return cloneSignals(d.writeSignals) }

// CountRead returns the number of read signals.
func (d *Device) CountRead() int { return len(d.readSignals) }

// CountWrite returns the number of write signals.
func (d *Device) CountWrite() int { return len(d.writeSignals) }

// CountAll returns CountRead() + CountWrite().
func (d *Device) CountAll() int { return d.CountRead() + d.CountWrite() }

// DBText returns the EPICS database definition generated at construction.
func (d *Device) DBText() string { return d.dbText }

// ProtoText returns the StreamDevice protocol generated at construction.
func (d *Device) ProtoText() string { return d.protoText }

// GenerateDB renders the database definition for another target file.
// The cached DBText is unaffected.
func (d *Device) GenerateDB(targetFile string) string {
	return generateDB(d.signals, targetFile)
}

// Document returns the canonical document re-derived from the signals.
func (d *Device) Document() Document { return d.document.Clone() }

// String implements fmt.Stringer.
func (d *Device) String() string {
	var b strings.Builder
	b.WriteString("IceCube: ")
	b.WriteString(d.name)
	for _, sig := range d.signals {
		b.WriteString("\n    ")
		b.WriteString(sig.String())
	}
	return b.String()
}

func cloneSignals(in []Signal) []Signal {
	if in == nil {
		return nil
	}
	out := make([]Signal, len(in))
	copy(out, in)
	return out
}

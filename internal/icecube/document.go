package icecube

// Document is the declarative description of an IceCube, in the shape the
// configuration editor saves:
//
//	{
//	  "name": "RPi1",
//	  "signals": [
//	    {"name": "photoresistor1", "RW": "R", "scanRate": "1 second"},
//	    {"name": "led1", "RW": "W"}
//	  ]
//	}
type Document struct {
	Name    string             `json:"name" yaml:"name"`
	Signals []SignalDescriptor `json:"signals" yaml:"signals"`
}

// SignalDescriptor is one entry of Document.Signals.
// ScanRate is only required when RW is "R".
type SignalDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	RW       string `json:"RW" yaml:"RW"`
	ScanRate string `json:"scanRate,omitempty" yaml:"scanRate,omitempty"`
}

// Clone returns a copy of d that shares no slice storage with it.
func (d Document) Clone() Document {
	cpy := Document{Name: d.Name}
	if d.Signals != nil {
		cpy.Signals = make([]SignalDescriptor, len(d.Signals))
		copy(cpy.Signals, d.Signals)
	}
	return cpy
}

// Equivalent reports whether d and o describe the same cube: same name and
// the same signals in the same order. ScanRate is ignored on write
// entries, where it carries no meaning.
func (d Document) Equivalent(o Document) bool {
	if d.Name != o.Name || len(d.Signals) != len(o.Signals) {
		return false
	}
	for i := range d.Signals {
		a, b := d.Signals[i], o.Signals[i]
		if a.Name != b.Name || a.RW != b.RW {
			return false
		}
		if a.RW == string(DirectionRead) && a.ScanRate != b.ScanRate {
			return false
		}
	}
	return true
}

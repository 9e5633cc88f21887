// Package icecube is the configuration core of IceTray.
//
// An IceCube is one small computer running an EPICS IOC paired with a single
// microcontroller. This package models the cube as a named, ordered list of
// signals and turns it into the two text artifacts the IOC loads:
//
//   - the EPICS database definition (one ai/ao record per signal)
//   - the StreamDevice protocol file (one protocol function per signal)
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          icecube                             │
//	│                                                              │
//	│  Document ──▶ FromDocument ──▶ New ──▶ Device (immutable)    │
//	│                   │              │        │                  │
//	│              Signal (R/W)   validation    ├─ DBText()        │
//	│                                           ├─ ProtoText()     │
//	│                                           └─ Document()      │
//	└──────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	dev, err := icecube.FromDocument(icecube.Document{
//	    Name: "RPi1",
//	    Signals: []icecube.SignalDescriptor{
//	        {Name: "photoresistor1", RW: "R", ScanRate: "1 second"},
//	        {Name: "led1", RW: "W"},
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Print(dev.DBText())
//	fmt.Print(dev.ProtoText())
//
// # Guarantees
//
// Construction either returns a fully populated Device or an error; every
// derived field is computed once inside New and never recomputed. A Device
// holds no mutable state, so it is safe for concurrent use without locking.
//
// The package performs no file or network I/O. Reading documents, writing
// artifacts and persistence live in the document, artifact and catalogue
// packages.
package icecube

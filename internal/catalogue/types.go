package catalogue

import (
	"time"

	"github.com/icetech/icetray/internal/icecube"
)

// Build sources recorded in the history.
const (
	SourceCLI  = "cli"
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Build results recorded in the history.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
)

// Entry is a stored IceCube: the built Device plus catalogue bookkeeping.
//
// The Device is immutable, so an Entry can be shared between goroutines
// as long as callers do not modify the exported fields.
type Entry struct {
	ID        string
	Device    *icecube.Device
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name is shorthand for e.Device.Name().
func (e *Entry) Name() string { return e.Device.Name() }

// Summary is the JSON shape used when listing entries.
type Summary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TargetFile string    `json:"target_file"`
	ReadCount  int       `json:"read_count"`
	WriteCount int       `json:"write_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Summary returns the listing view of e.
func (e *Entry) Summary() Summary {
	return Summary{
		ID:         e.ID,
		Name:       e.Device.Name(),
		TargetFile: e.Device.TargetFile(),
		ReadCount:  e.Device.CountRead(),
		WriteCount: e.Device.CountWrite(),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// BuildRecord is one row of build history. Rejected builds carry the
// validation error and zero counts.
type BuildRecord struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Source     string        `json:"source"`
	Result     string        `json:"result"`
	Error      string        `json:"error,omitempty"`
	ReadCount  int           `json:"read_count"`
	WriteCount int           `json:"write_count"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// OK reports whether the build produced a Device.
func (b BuildRecord) OK() bool { return b.Result == ResultOK }

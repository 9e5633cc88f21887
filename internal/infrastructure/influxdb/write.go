package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/icetech/icetray/internal/catalogue"
)

// MeasurementBuild is the measurement holding one point per build.
const MeasurementBuild = "icecube_build"

// WriteBuild records one build. Non-blocking; dropped when disconnected.
func (c *Client) WriteBuild(rec catalogue.BuildRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(buildPoint(rec))
}

// ObserveBuild implements catalogue.BuildObserver.
func (c *Client) ObserveBuild(rec catalogue.BuildRecord) {
	c.WriteBuild(rec)
}

// buildPoint tags by cube, source and result; counts and duration are fields.
// Rejected builds carry the error text instead of counts.
func buildPoint(rec catalogue.BuildRecord) *write.Point {
	fields := map[string]interface{}{
		"duration_us": rec.Duration.Microseconds(),
	}
	if rec.OK() {
		fields["read_count"] = int64(rec.ReadCount)
		fields["write_count"] = int64(rec.WriteCount)
		fields["signal_count"] = int64(rec.ReadCount + rec.WriteCount)
	} else {
		fields["error"] = rec.Error
	}

	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementBuild,
		map[string]string{
			"icecube": rec.Name,
			"source":  rec.Source,
			"result":  rec.Result,
		},
		fields,
		ts,
	)
}

// Package influxdb records IceCube build telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every build, CLI,
// API or MQTT, becomes one point in the icecube_build measurement:
//
//	icecube_build,icecube=RPi1,source=api,result=ok read_count=3i,write_count=2i,signal_count=5i,duration_us=412i
//
// Writes are non-blocking and batched (batch_size, flush_interval);
// asynchronous write failures are delivered to the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	registry.AddObserver(client)
package influxdb

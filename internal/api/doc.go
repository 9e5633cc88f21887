// Package api implements the HTTP REST API for IceTray.
//
// This package provides:
//   - Endpoints to build, test-build, list and delete IceCubes
//   - Plain-text downloads of the generated record database and protocol file
//   - Spreadsheet import (CSV or XLSX) and XLSX export of cube documents
//   - Build history per cube
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// Cubes built through the API are stored in the catalogue, written to the
// artifact directory and, when MQTT is enabled, published to IOC hosts.
//
// # Graceful Degradation
//
// The server runs without MQTT or metrics; the corresponding steps are
// skipped.
package api

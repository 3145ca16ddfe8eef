// Package server contains the UDP frame-ingest server and the HTTP
// control/monitoring API. UDP carries the voice frames; HTTP carries the
// start/stop commands and the observability surface.
package server

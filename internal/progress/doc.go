// Package progress carries scrape progress as a stream of events. Workers
// emit into a non-blocking Hub, which batches events on a background
// goroutine and fans them out to sinks such as logs, Prometheus or the
// per-job timeline served by the API.
package progress

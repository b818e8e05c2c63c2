// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and the per-job event timeline. Each satisfies progress.Sink.
package sinks

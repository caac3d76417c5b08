// Package sinks implements progress consumers: structured logs and Prometheus
// collectors for crawl runs.
package sinks

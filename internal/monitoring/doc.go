// Package monitoring exposes Prometheus metrics for reconstruction runs:
// per-channel operation timings, chunk throughput, bulk read duration, and
// buffer pool occupancy.
package monitoring

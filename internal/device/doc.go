// Package device models the accelerator-side resources the overlap pipeline
// schedules: ordered asynchronous execution channels, fixed-size memory
// blocks, double buffers indexed by iteration parity, and a scoped pool that
// owns every allocation for one pipeline run.
//
// A Channel is the analog of a hardware stream: operations enqueued on it
// run in issue order, asynchronously with respect to the host and to other
// channels. The host blocks only in Synchronize. A failed operation poisons
// the channel; later operations are skipped and the first error is returned
// from every subsequent Synchronize.
package device

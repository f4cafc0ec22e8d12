// Package storage provides the chunked array abstraction the pipeline
// streams through.
//
// An Array is a logical three-dimensional float32 volume supporting slice
// reads and writes along the leading two axes. Two variants implement the
// interface: Memory, backed by one contiguous host allocation, and Store,
// an out-of-core uncompressed chunk-file directory for volumes that exceed
// host memory. Concurrent operations on disjoint ranges are safe in both
// variants; the pipeline never issues overlapping concurrent accesses.
package storage

// Package pipeline implements the chunked multi-stage overlap engine.
//
// A Pipeline partitions one axis of a source array into chunks and streams
// them through a stage function using three independent execution channels:
// load (storage to device), compute, and store (device to storage). Each
// stage lags the one feeding it by exactly one iteration, so in steady
// state the transfer of chunk k, the computation of chunk k-1, and the
// flush of chunk k-2 overlap on distinct hardware resources. Two drain
// iterations past the chunk count let the last chunks finish the later
// stages.
//
// Per iteration the host enqueues work on all three channels and then
// performs a full barrier: store first (freeing the output slot and, in
// in-memory mode, the pinned mirror for host copy-out), then load and
// compute. The barrier is what makes slot reuse safe: a buffer slot is
// never touched again before every operation of its previous logical owner
// has been waited on.
//
// A failure on any channel aborts the whole run. Already-flushed chunks
// leave the destination in an undefined completeness state; callers must
// treat it as invalid unless Run returns nil.
package pipeline

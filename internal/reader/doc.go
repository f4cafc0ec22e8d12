// Package reader performs the initial bulk load of a projection volume.
//
// Calibration frames (dark and flat fields) are read synchronously first;
// the projection axis is then divided into contiguous worker ranges read
// concurrently into disjoint regions of the destination array. Workers
// never overlap, so the only synchronization is the final join, which
// collects every worker outcome and surfaces failures as one deterministic
// aggregate in range order.
package reader

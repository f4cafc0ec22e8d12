// Package recon orchestrates a stepwise reconstruction run: parallel bulk
// load of the projection volume, a sinogram-chunked correction pass, a
// projection-chunked filtering pass, and handoff of the filtered volume to
// the backprojector. Intermediate volumes live in host memory or in
// per-run scratch stores depending on configuration; scratch state is
// removed when the run ends, on the abort path included.
package recon

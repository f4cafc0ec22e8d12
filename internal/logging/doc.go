// Package logging provides structured logging using uber/zap.
//
// Production mode emits JSON for machine parsing; development mode emits
// colored console output. Reconstruction runs are long and chunk-grained,
// so log volume is dominated by per-chunk progress events; callers that
// log inside the pipeline loop should throttle themselves (see the
// pipeline package's progress sink).
package logging

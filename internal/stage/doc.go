// Package stage provides the production stage functions driven by the
// overlap pipeline: sinogram correction (dark/flat field normalization and
// negative-log transform) and projection correction (frequency-domain ramp
// filtering). Both operate on device-resident chunk views and tolerate
// remainder chunks shorter than the maximum.
package stage

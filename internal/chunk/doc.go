// Package chunk computes and validates chunk plans.
//
// A plan partitions one axis of a large array into contiguous chunks sized
// so each fits in accelerator memory. All chunks share a target length
// except the final chunk, which takes the positive remainder.
package chunk

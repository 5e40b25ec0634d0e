// Package kernels computes first-order classification images.
//
// For every trial key (one participant/session) and every stimulus dimension
// the stimulus feature is averaged separately over stimuli classified as
// positive and as negative. The difference of the two means is the kernel
// value. Kernels can be energy-normalized per trial key so that different
// participants become comparable in magnitude.
//
// All functions are pure: they never mutate their input and may be called
// concurrently on the same table.
package kernels

// Package store manages the on-disk artifact directory: uuid-named audio
// files, in-flight pinning, and the retention sweep.
package store

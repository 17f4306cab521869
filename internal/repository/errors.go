package repository

import "errors"

// ErrStaleWrite is returned when a guarded update matched no row because the
// row changed since it was read.
var ErrStaleWrite = errors.New("row was modified concurrently")

package cache

import (
	"errors"
	"fmt"
)

// errDiskFull means the rest of the tier is busy and cannot make room.
var errDiskFull = errors.New("no evictable space")

// Error is a disk-tier failure. Callers log it and carry on as if the
// lookup missed; it never fails a request.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

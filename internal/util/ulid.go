package util

import (
	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID string.
// ulid.Make uses a process-wide monotonic entropy source that is safe for
// concurrent use, so IDs created within the same millisecond still sort.
func NewULID() string {
	return ulid.Make().String()
}

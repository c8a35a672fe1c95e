// Package ids mints identifiers for movements and scheduled loan tasks.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// A single monotonic source keeps ids ordered even when a transfer's
// debit and credit are minted within the same millisecond.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var src = &generator{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// New returns a lexicographically sortable identifier.
func New() string {
	src.mu.Lock()
	defer src.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), src.entropy).String()
}

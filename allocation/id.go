package allocation

import (
	"fmt"
	"sync/atomic"
	"time"
)

// =============================================================================
// ID GENERATION
// =============================================================================

var idCounter atomic.Uint64

// NewID returns a process-unique identifier with the given prefix,
// e.g. "dev-1717171717000000000-42". The counter disambiguates IDs minted
// within the same nanosecond.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idCounter.Add(1))
}

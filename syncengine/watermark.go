package syncengine

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// entropy is shared by every watermark so ids generated within the same
// millisecond keep increasing; ulid's monotonic reader is not safe for
// concurrent use, hence entropyMu.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newWatermark returns a monotonic, lexicographically sortable
// identifier: 48-bit time prefix, 80-bit randomness, 26-char Crockford
// base32 — a ULID, exactly the shape §3's Sync Queue Item key format
// calls for.
func newWatermark(nowMillis uint64) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(nowMillis, entropy)
	if err != nil {
		id, _ = ulid.New(nowMillis, rand.Reader)
	}
	return id.String()
}

package store

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID mints prompt identifiers as ULIDs, so prompt listings sort by
// creation time without an extra column. Entropy comes from
// crypto/rand: prompt ids are handed out to untrusted miners, so they
// must not be guessable from a boot-time seed.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}

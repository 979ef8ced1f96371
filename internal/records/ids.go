package records

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idOnce    sync.Once
	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy
)

// NewAuditID returns a ULID for an audit entry created at t. IDs created
// by one process sort in creation order, so backends use them as the
// pagination cursor.
func NewAuditID(t time.Time) string {
	idOnce.Do(func() { idEntropy = ulid.Monotonic(rand.Reader, 0) })

	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}

// ValidCursor reports whether s is a well-formed audit cursor.
func ValidCursor(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

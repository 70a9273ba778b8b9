package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerationError indicates the entropy source failed while minting an
// identifier. Callers must not proceed to a write when this is returned.
type GenerationError struct {
	Err error
}

func (e GenerationError) Error() string {
	return fmt.Sprintf("generate id: %v", e.Err)
}

func (e GenerationError) Unwrap() error { return e.Err }

// Generator mints mission identifiers: ULIDs normalized to lowercase.
// The timestamp component keeps ids lexicographically sortable by creation
// time; the monotonic entropy source keeps same-millisecond ids ordered
// within a process; the random component keeps ids collision-resistant
// across uncoordinated service instances.
type Generator struct {
	Now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func New() *Generator {
	return &Generator{
		Now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Generate returns a fresh lowercase identifier.
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		return "", GenerationError{Err: err}
	}
	return strings.ToLower(u.String()), nil
}

// Valid reports whether s parses as a canonical identifier. IDs are
// generated, never caller-supplied, so this is only used by tooling.
func Valid(s string) bool {
	if s == "" || s != strings.ToLower(s) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}

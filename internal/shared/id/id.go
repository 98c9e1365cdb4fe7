// Package id generates request identifiers for the core service.
//
// Request IDs are prefixed ULIDs ("req_01J..."): sortable by creation time
// and easy to spot in access logs next to the 32-hex trace id.
package id

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies an inbound HTTP request
type RequestID string

// RequestPrefix is prepended to every generated RequestID
const RequestPrefix = "req"

// maxExternalLen bounds client supplied request ids accepted by Sanitize.
const maxExternalLen = 128

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (r RequestID) String() string { return string(r) }

// Sanitize accepts a client supplied request id if it is short and printable,
// and reports false otherwise so the caller can mint a fresh one.
func Sanitize(raw string) (RequestID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxExternalLen {
		return "", false
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7e {
			return "", false
		}
	}
	return RequestID(raw), true
}

// IsValid reports whether s is a RequestID minted by this package.
func IsValid(s string) bool {
	rest, ok := strings.CutPrefix(s, RequestPrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// Timestamp extracts the creation time of a generated RequestID
func Timestamp(r RequestID) (time.Time, error) {
	rest, ok := strings.CutPrefix(string(r), RequestPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("request id %q has no %q prefix", r, RequestPrefix)
	}
	parsed, err := ulid.Parse(rest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse request id: %w", err)
	}
	return ulid.Time(parsed.Time()), nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying r.
func NewContext(ctx context.Context, r RequestID) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the RequestID stored in ctx, if any.
func FromContext(ctx context.Context) (RequestID, bool) {
	r, ok := ctx.Value(ctxKey{}).(RequestID)
	return r, ok && r != ""
}

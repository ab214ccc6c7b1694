package store

import (
	"time"

	"distsys/internal/vclock"
)

// VersionedValue is one sibling of a key: a value, the vector clock that
// produced it, and the wall-clock time it was written, used to
// tie-break when multiple siblings were written concurrently.
type VersionedValue struct {
	Data      string       `json:"data"`
	Clock     vclock.Clock `json:"clock"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Result is what Get returns: either no value, a single reconciled
// value, or a set of concurrent siblings the caller must treat as a
// conflict surface.
type Result struct {
	Found    bool
	Siblings []VersionedValue // len 1 in the common case, >1 on conflict
	Clock    vclock.Clock     // clock of the newest sibling by UpdatedAt
}

// Value returns the single value when there is no conflict. Callers
// must check Conflict first.
func (r Result) Value() string {
	if len(r.Siblings) == 0 {
		return ""
	}
	return r.Siblings[0].Data
}

// Conflict reports whether Get surfaced more than one concurrent sibling.
func (r Result) Conflict() bool {
	return len(r.Siblings) > 1
}

// Values returns every sibling's data, in the order stored.
func (r Result) Values() []string {
	out := make([]string, len(r.Siblings))
	for i, s := range r.Siblings {
		out[i] = s.Data
	}
	return out
}

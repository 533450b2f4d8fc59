// Package ring implements a small bounded ring of entries, each carrying
// its own last-seen timestamp, used by the discovery tables (SPDP
// participants/topics) and the alarm engine's per-point value history.
// Entries are kept in a slice in insertion order.
package ring

// Ring holds up to capacity entries of type T. Once full, Put rejects new
// entries; nothing is overwritten automatically. Callers that want room
// for a new entry must free it first (Prune or RemoveAt).
type Ring[T any] struct {
	entries  []T
	capacity int
}

// New returns an empty Ring with room for capacity entries.
func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{entries: make([]T, 0, capacity), capacity: capacity}
}

// Len returns the number of entries currently stored.
func (r *Ring[T]) Len() int { return len(r.entries) }

// Full reports whether the ring has reached its capacity.
func (r *Ring[T]) Full() bool { return len(r.entries) >= r.capacity }

// Entries returns the live entries in insertion order. The returned slice
// aliases the Ring's internal storage and must not be retained past the
// next mutating call.
func (r *Ring[T]) Entries() []T { return r.entries }

// Find returns the index of the first entry for which match returns true,
// or -1 if none matches.
func (r *Ring[T]) Find(match func(T) bool) int {
	for i := range r.entries {
		if match(r.entries[i]) {
			return i
		}
	}
	return -1
}

// Update replaces the entry at idx.
func (r *Ring[T]) Update(idx int, entry T) {
	r.entries[idx] = entry
}

// Put appends entry. It is the caller's responsibility to check Full()
// first (or to Prune stale entries) — Put on a full ring is a no-op and
// reports false, matching the bounded-table semantics of §3 ("bounded
// (128) ring" / "bounded (256) ring").
func (r *Ring[T]) Put(entry T) bool {
	if r.Full() {
		return false
	}
	r.entries = append(r.entries, entry)
	return true
}

// RemoveAt deletes the entry at idx, preserving the relative order of the
// remaining entries.
func (r *Ring[T]) RemoveAt(idx int) {
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
}

// Prune removes every entry for which stale returns true and reports how
// many were removed.
func (r *Ring[T]) Prune(stale func(T) bool) int {
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if stale(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

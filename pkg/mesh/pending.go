package mesh

import lwbus "github.com/lwedge/lwbus"

// Callback is invoked exactly once when a tracked request completes: on a
// matching reply, on timeout (status lwbus.StatusNoResponding), or on
// disconnect (status lwbus.StatusNoResponding). RPC callbacks receive the
// reply payload; subscribe/unsubscribe/ping callbacks receive only the
// status and an empty payload.
type Callback func(status lwbus.Status, payload []byte)

type pendingKind uint8

const (
	pendingRPC pendingKind = iota
	pendingSubscribe
	pendingUnsubscribe
	pendingPing
)

// pendingEntry is one outstanding tracked request on a Client. aliveMs
// counts down by the timer interval on every sweep tick (10ms by
// default, see DefaultClientTimerInterval); reaching zero
// fires Callback with StatusNoResponding.
type pendingEntry struct {
	seqno    uint16
	kind     pendingKind
	aliveMs  int32
	callback Callback
}

const (
	// fastPoolSize is the number of pre-allocated pending slots per
	// Client before overflow is heap-allocated (spec.md §3, §9).
	fastPoolSize = 8
	// maxInFlight bounds concurrent tracked requests per Client: the low
	// byte of a seqno addresses a slot, so there are at most 256 slots.
	maxInFlight = 256
)

// pendingTable owns the fast pool + heap overflow for a Client's
// outstanding requests, indexed by the low byte of their seqno. A late
// reply bearing a stale seqno can never be mistaken for the slot's
// current occupant: lookup compares the full seqno, whose high byte
// increments on every allocation, not just the slot index.
type pendingTable struct {
	fast     [fastPoolSize]pendingEntry
	fastUsed [fastPoolSize]bool
	slots    [maxInFlight]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{}
}

// acquire reserves slot idx (0..255) and returns a pointer to it for the
// caller to populate. idx must not already be occupied.
func (t *pendingTable) acquire(idx int) *pendingEntry {
	if idx < fastPoolSize && !t.fastUsed[idx] {
		t.fastUsed[idx] = true
		t.fast[idx] = pendingEntry{}
		t.slots[idx] = &t.fast[idx]
		return &t.fast[idx]
	}
	e := &pendingEntry{}
	t.slots[idx] = e
	return e
}

// findFreeSlot walks slot indices looking for an unoccupied one, matching
// the seqno allocation algorithm of §4.3 ("walks the low-byte counter up
// to 255 times"). It returns -1 if all 256 slots are occupied.
func (t *pendingTable) findFreeSlot(start int) int {
	for i := 0; i < maxInFlight; i++ {
		idx := (start + i) % maxInFlight
		if t.slots[idx] == nil {
			return idx
		}
	}
	return -1
}

// lookup returns the entry occupying slot idx, only if its stored seqno
// matches exactly (guards against stale generations).
func (t *pendingTable) lookup(seqno uint16) *pendingEntry {
	idx := int(seqno & 0xFF)
	e := t.slots[idx]
	if e == nil || e.seqno != seqno {
		return nil
	}
	return e
}

// release frees the slot occupied by seqno.
func (t *pendingTable) release(seqno uint16) {
	idx := int(seqno & 0xFF)
	if t.slots[idx] == nil || t.slots[idx].seqno != seqno {
		return
	}
	t.slots[idx] = nil
	if idx < fastPoolSize {
		t.fastUsed[idx] = false
	}
}

// each calls fn for every currently-occupied slot. fn may release its own
// entry but must not touch any other slot.
func (t *pendingTable) each(fn func(e *pendingEntry)) {
	for _, e := range t.slots {
		if e != nil {
			fn(e)
		}
	}
}

func (t *pendingTable) len() int {
	n := 0
	for _, e := range t.slots {
		if e != nil {
			n++
		}
	}
	return n
}

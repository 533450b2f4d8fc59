package alarm

import (
	"sync"

	"github.com/lwedge/lwbus/internal/ring"
)

// historyRingCapacity bounds each point's ValueHistory ring; spec.md §3
// only requires the ring be bounded, not a specific size, so this
// follows the SPDP tables' choice of a generous but finite cap.
const historyRingCapacity = 256

// pointHistory wraps a Ring[historyEntry] with the add/prune operations
// the rate-of-change rule needs (§4.7 step 2, method 6).
type pointHistory struct {
	mu   sync.Mutex
	ring *ring.Ring[historyEntry]
}

func newPointHistory() *pointHistory {
	return &pointHistory{ring: ring.New[historyEntry](historyRingCapacity)}
}

func (h *pointHistory) add(value float64, tsMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ring.Full() {
		h.ring.RemoveAt(0)
	}
	h.ring.Put(historyEntry{value: value, tsMs: tsMs})
}

func (h *pointHistory) pruneOlderThan(nowMs, windowMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring.Prune(func(e historyEntry) bool { return nowMs-e.tsMs > windowMs })
}

func (h *pointHistory) entries() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyEntry(nil), h.ring.Entries()...)
}

// AlarmState is the per-(point,rule) state machine of §3: whether the
// rule is currently active, when it last triggered, and when the active
// span began.
type AlarmState struct {
	Active        bool
	LastTriggerMs int64
	ActivationMs  int64
}

// stateKey identifies one (point, rule) pair.
type stateKey struct {
	pointID int64
	ruleID  int64
}

// stateTable holds every (point,rule) AlarmState and evalContext. Only
// the evaluation goroutine mutates it (§5: "alarm-state tables are
// single-threaded"), so no lock is required in the hot path; the mutex
// here only guards concurrent reads from diagnostics/tests.
type stateTable struct {
	mu        sync.Mutex
	states    map[stateKey]*AlarmState
	contexts  map[stateKey]*evalContext
	histories map[int64]*pointHistory
}

func newStateTable() *stateTable {
	return &stateTable{
		states:    make(map[stateKey]*AlarmState),
		contexts:  make(map[stateKey]*evalContext),
		histories: make(map[int64]*pointHistory),
	}
}

func (t *stateTable) state(pointID, ruleID int64) *AlarmState {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := stateKey{pointID, ruleID}
	s, ok := t.states[key]
	if !ok {
		s = &AlarmState{}
		t.states[key] = s
	}
	return s
}

func (t *stateTable) context(pointID, ruleID int64, needsHistory bool) *evalContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := stateKey{pointID, ruleID}
	c, ok := t.contexts[key]
	if !ok {
		c = &evalContext{}
		t.contexts[key] = c
	}
	if needsHistory && c.history == nil {
		h, ok := t.histories[pointID]
		if !ok {
			h = newPointHistory()
			t.histories[pointID] = h
		}
		c.history = h
	}
	return c
}

// activeStates returns a copy of every currently-active (point,rule) state,
// for diagnostics/tests.
func (t *stateTable) activeStates() map[stateKey]AlarmState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[stateKey]AlarmState)
	for k, v := range t.states {
		if v.Active {
			out[k] = *v
		}
	}
	return out
}

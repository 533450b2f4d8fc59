// Package alarm implements the priority-ordered rule evaluation engine
// of spec.md §4.7: tag updates arrive from a subscription to
// "/tags/update", are queued, and are evaluated against every rule
// configured for their point, triggering at most one rule transition per
// point per evaluation.
package alarm

import "math"

// Method selects one of the eight rule kinds (§3).
type Method int

const (
	MethodHH        Method = 1 // value > threshold
	MethodH         Method = 2 // value > threshold
	MethodL         Method = 3 // value < threshold
	MethodLL        Method = 4 // value < threshold
	MethodFixed     Method = 5 // |value - threshold| < 1e-6
	MethodRate      Method = 6 // |Δvalue| / Δt over param1-second window > threshold
	MethodDuration  Method = 7 // value > threshold sustained for param2 seconds
	MethodDeviation Method = 8 // |value - param3| > threshold
)

// priority maps a Method to its position in the total order §3 defines:
// fixed < HH < H < L < LL < rate < duration < deviation.
var priority = map[Method]int{
	MethodFixed:     0,
	MethodHH:        1,
	MethodH:         2,
	MethodL:         3,
	MethodLL:        4,
	MethodRate:      5,
	MethodDuration:  6,
	MethodDeviation: 7,
}

// Rule is one immutable alarm rule, denormalised with its owning point's
// id/name for logging (§3).
type Rule struct {
	ID        int64
	Name      string
	PointID   int64
	PointName string
	Method    Method
	Threshold float64
	Param1    float64 // rate: window seconds
	Param2    float64 // duration: required duration seconds
	Param3    float64 // deviation: reference value
	Enabled   bool
}

// LessByPriority orders rules by §3's total order, breaking ties by id —
// the sort `Store` applies to each point's rule list at load time.
func LessByPriority(a, b Rule) bool {
	pa, pb := priority[a.Method], priority[b.Method]
	if pa != pb {
		return pa < pb
	}
	return a.ID < b.ID
}

const fixedEpsilon = 1e-6

// historyEntry is one sample in a point's ValueHistory ring (§3), used
// only by the rate-of-change rule; the duration rule keeps its activation
// time in evalContext instead.
type historyEntry struct {
	value float64
	tsMs  int64
}

// evalContext carries the per-(point,rule) mutable state a stateful rule
// (rate, duration) needs across evaluations; stateless rules ignore it.
type evalContext struct {
	history        *pointHistory
	durationActive bool
	durationAt     int64 // activation_ms recorded by method 7, valid only while durationActive
}

// Evaluate reports whether rule fires for value sampled at nowMs, given
// the mutable per-(point,rule) context. It implements §4.7 step 2's
// eight method bodies verbatim.
func Evaluate(rule Rule, value float64, nowMs int64, ctx *evalContext) bool {
	switch rule.Method {
	case MethodHH, MethodH:
		return value > rule.Threshold
	case MethodL, MethodLL:
		return value < rule.Threshold
	case MethodFixed:
		return math.Abs(value-rule.Threshold) < fixedEpsilon
	case MethodRate:
		return evaluateRate(rule, value, nowMs, ctx)
	case MethodDuration:
		return evaluateDuration(rule, value, nowMs, ctx)
	case MethodDeviation:
		return math.Abs(value-rule.Param3) > rule.Threshold
	default:
		return false
	}
}

// evaluateRate appends (value, nowMs) to the history ring, prunes
// entries older than param1 seconds, and triggers if the rate between
// the oldest and newest surviving samples exceeds the threshold.
func evaluateRate(rule Rule, value float64, nowMs int64, ctx *evalContext) bool {
	if ctx.history == nil {
		return false
	}
	ctx.history.add(value, nowMs)
	windowMs := int64(rule.Param1 * 1000)
	ctx.history.pruneOlderThan(nowMs, windowMs)

	entries := ctx.history.entries()
	if len(entries) < 2 {
		return false
	}
	first, last := entries[0], entries[len(entries)-1]
	deltaMs := last.tsMs - first.tsMs
	if deltaMs <= 0 {
		return false
	}
	rate := math.Abs(last.value-first.value) / (float64(deltaMs) / 1000)
	return rate > rule.Threshold
}

// evaluateDuration implements method 7: a value past threshold must
// persist for param2 seconds before triggering; dropping back below
// threshold clears the pending activation.
func evaluateDuration(rule Rule, value float64, nowMs int64, ctx *evalContext) bool {
	if value <= rule.Threshold {
		ctx.durationActive = false
		return false
	}
	if !ctx.durationActive {
		ctx.durationActive = true
		ctx.durationAt = nowMs
		return false
	}
	requiredMs := int64(rule.Param2 * 1000)
	return nowMs-ctx.durationAt >= requiredMs
}

package alarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessByPriority(t *testing.T) {
	fixed := Rule{ID: 1, Method: MethodFixed}
	hh := Rule{ID: 2, Method: MethodHH}
	h := Rule{ID: 3, Method: MethodH}
	l := Rule{ID: 4, Method: MethodL}

	assert.True(t, LessByPriority(fixed, hh))
	assert.True(t, LessByPriority(hh, h))
	assert.True(t, LessByPriority(h, l))
	assert.False(t, LessByPriority(l, h))
}

func TestLessByPriorityTieBreaksByID(t *testing.T) {
	a := Rule{ID: 1, Method: MethodH}
	b := Rule{ID: 2, Method: MethodH}
	assert.True(t, LessByPriority(a, b))
	assert.False(t, LessByPriority(b, a))
}

// TestAlarmPriority exercises T8: with fixed(=10), H(>8), L(<5) on the
// same point, value 10 triggers fixed not H, 9 triggers H, 4 triggers L,
// 6 triggers nothing.
func TestAlarmPriority(t *testing.T) {
	rules := []Rule{
		{ID: 1, Method: MethodFixed, Threshold: 10},
		{ID: 2, Method: MethodH, Threshold: 8},
		{ID: 3, Method: MethodL, Threshold: 5},
	}

	firstTriggered := func(value float64) (Rule, bool) {
		for _, r := range rules {
			if Evaluate(r, value, 0, &evalContext{}) {
				return r, true
			}
		}
		return Rule{}, false
	}

	got, ok := firstTriggered(10)
	assert.True(t, ok)
	assert.Equal(t, MethodFixed, got.Method)

	got, ok = firstTriggered(9)
	assert.True(t, ok)
	assert.Equal(t, MethodH, got.Method)

	got, ok = firstTriggered(4)
	assert.True(t, ok)
	assert.Equal(t, MethodL, got.Method)

	_, ok = firstTriggered(6)
	assert.False(t, ok)
}

func TestEvaluateFixed(t *testing.T) {
	rule := Rule{Method: MethodFixed, Threshold: 10}
	assert.True(t, Evaluate(rule, 10, 0, &evalContext{}))
	assert.True(t, Evaluate(rule, 10.0000001, 0, &evalContext{}))
	assert.False(t, Evaluate(rule, 10.1, 0, &evalContext{}))
}

func TestEvaluateDeviation(t *testing.T) {
	rule := Rule{Method: MethodDeviation, Threshold: 2, Param3: 100}
	assert.False(t, Evaluate(rule, 101.5, 0, &evalContext{}))
	assert.True(t, Evaluate(rule, 103, 0, &evalContext{}))
}

// TestEvaluateDuration exercises T10: duration(threshold=10, param2=2s),
// values 11,11,11 spaced 0.5s apart do not trigger; the sample at t=2s
// does; dropping to 9 clears activation.
func TestEvaluateDuration(t *testing.T) {
	rule := Rule{Method: MethodDuration, Threshold: 10, Param2: 2}
	ctx := &evalContext{}

	assert.False(t, Evaluate(rule, 11, 0, ctx))
	assert.False(t, Evaluate(rule, 11, 500, ctx))
	assert.False(t, Evaluate(rule, 11, 1000, ctx))
	assert.False(t, Evaluate(rule, 11, 1500, ctx))
	assert.True(t, Evaluate(rule, 11, 2000, ctx))

	assert.False(t, Evaluate(rule, 9, 2500, ctx))
	assert.False(t, Evaluate(rule, 11, 2600, ctx))
}

func TestEvaluateRate(t *testing.T) {
	rule := Rule{Method: MethodRate, Threshold: 5, Param1: 1}
	ctx := &evalContext{history: newPointHistory()}

	assert.False(t, Evaluate(rule, 10, 0, ctx))
	assert.False(t, Evaluate(rule, 10.5, 200, ctx))
	assert.True(t, Evaluate(rule, 20, 500, ctx))
}

func TestEvaluateRateWithoutHistoryNeverTriggers(t *testing.T) {
	rule := Rule{Method: MethodRate, Threshold: 5, Param1: 1}
	assert.False(t, Evaluate(rule, 100, 0, &evalContext{}))
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kind string

func TestFirstMatchWinsInOrder(t *testing.T) {
	rules := New(
		Rule[kind]{Pattern: "Traceback", Kind: "traceback"},
		Rule[kind]{Pattern: "error", Kind: "generic"},
	)

	m, ok := rules.First("line one\nTRACEBACK (most recent call last):\nValueError: boom")
	require.True(t, ok)
	assert.Equal(t, kind("traceback"), m.Rule.Kind)
	assert.Equal(t, "TRACEBACK (most recent call last):", m.Excerpt)
}

func TestFirstScansEveryText(t *testing.T) {
	rules := New(Rule[kind]{Pattern: "no attribute", Kind: "attr"})

	m, ok := rules.First("all good", "AttributeError: 'NoneType' object has no attribute 'GetID'")
	require.True(t, ok)
	assert.Equal(t, kind("attr"), m.Rule.Kind)
	assert.Contains(t, m.Excerpt, "GetID")
}

func TestNoMatch(t *testing.T) {
	rules := New(Rule[kind]{Pattern: "fatal", Kind: "fatal"})
	_, ok := rules.First("ok", "")
	assert.False(t, ok)
}

func TestPrependTakesPriority(t *testing.T) {
	rules := New(Rule[kind]{Pattern: "limit", Kind: "rate"})
	rules.Prepend(Rule[kind]{Pattern: "token limit", Kind: "prompt"})

	m, ok := rules.First("exceeded token limit for model")
	require.True(t, ok)
	assert.Equal(t, kind("prompt"), m.Rule.Kind)
	assert.Equal(t, 2, rules.Len())
}

func TestEmptyPatternNeverMatches(t *testing.T) {
	rules := New(Rule[kind]{Pattern: "", Kind: "empty"})
	_, ok := rules.First("anything")
	assert.False(t, ok)
}

func TestListReturnsCopy(t *testing.T) {
	rules := New(Rule[kind]{Pattern: "A", Kind: "a"})
	list := rules.List()
	list[0].Pattern = "changed"
	assert.Equal(t, "a", rules.List()[0].Pattern)
}

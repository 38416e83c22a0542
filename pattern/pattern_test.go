package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgbus/pgbus/pattern"
)

func TestMatch(t *testing.T) {
	t.Run("literal patterns", func(t *testing.T) {
		assert.True(t, pattern.Match("order.created", "order.created"))
		assert.False(t, pattern.Match("order.created", "order.updated"))
		assert.False(t, pattern.Match("order.created", "order.create"))
		assert.False(t, pattern.Match("order.create", "order.created"))
	})

	t.Run("empty pattern matches only empty key", func(t *testing.T) {
		assert.True(t, pattern.Match("", ""))
		assert.False(t, pattern.Match("order.created", ""))
	})

	t.Run("lone wildcard matches everything", func(t *testing.T) {
		assert.True(t, pattern.Match("", "*"))
		assert.True(t, pattern.Match("order.created", "*"))
		assert.True(t, pattern.Match("*", "*"))
	})

	t.Run("trailing wildcard", func(t *testing.T) {
		assert.True(t, pattern.Match("order.created", "order.*"))
		assert.True(t, pattern.Match("order.", "order.*"))
		assert.False(t, pattern.Match("payment.created", "order.*"))
		assert.False(t, pattern.Match("order", "order.*"))
	})

	t.Run("leading wildcard", func(t *testing.T) {
		assert.True(t, pattern.Match("order.created", "*.created"))
		assert.True(t, pattern.Match(".created", "*.created"))
		assert.False(t, pattern.Match("order.updated", "*.created"))
	})

	t.Run("inner wildcard spans dots", func(t *testing.T) {
		assert.True(t, pattern.Match("order.eu.created", "order.*.created"))
		assert.True(t, pattern.Match("order.eu.west.created", "order.*.created"))
		assert.True(t, pattern.Match("order..created", "order.*.created"))
		assert.False(t, pattern.Match("order.created", "order.*.created"))
	})

	t.Run("multiple wildcards", func(t *testing.T) {
		assert.True(t, pattern.Match("order.eu.created", "*.eu.*"))
		assert.True(t, pattern.Match("abcbcd", "a*bc*d"))
		assert.False(t, pattern.Match("abcbce", "a*bc*d"))
	})

	t.Run("wildcard can match empty substring", func(t *testing.T) {
		assert.True(t, pattern.Match("orders", "order*s"))
		assert.True(t, pattern.Match("order.s", "order*s"))
	})

	t.Run("star in key is literal", func(t *testing.T) {
		assert.False(t, pattern.Match("order.*", "order.created"))
		assert.True(t, pattern.Match("order.*", "order.*"))
	})
}

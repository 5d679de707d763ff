package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemClockAdvances(t *testing.T) {
	first := SystemClock.Now()
	second := SystemClock.Now()
	assert.GreaterOrEqual(t, int64(second), int64(first))
}

func TestInstantSentinels(t *testing.T) {
	assert.Equal(t, Instant(0), TimeZero)
	assert.Greater(t, TimeLatest, Instant(0))
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_FirstCallAlwaysAllowed(t *testing.T) {
	l := New()
	assert.True(t, l.Allow(1, "balance", time.Second))
}

func TestAllow_SecondCallWithinWindowDenied(t *testing.T) {
	l := New()
	require := assert.New(t)
	require.True(l.Allow(1, "balance", time.Hour))
	require.False(l.Allow(1, "balance", time.Hour))
}

func TestAllow_DifferentCommandsIndependent(t *testing.T) {
	l := New()
	assert.True(t, l.Allow(1, "balance", time.Hour))
	assert.True(t, l.Allow(1, "portfolio", time.Hour))
}

func TestAllow_DifferentChatsIndependent(t *testing.T) {
	l := New()
	assert.True(t, l.Allow(1, "balance", time.Hour))
	assert.True(t, l.Allow(2, "balance", time.Hour))
}

func TestAllow_AllowedAgainAfterWindowElapses(t *testing.T) {
	l := New()
	assert.True(t, l.Allow(1, "balance", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, l.Allow(1, "balance", time.Millisecond))
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsUpToMaxPerKey(t *testing.T) {
	t.Parallel()

	l := New(2, time.Minute)
	defer l.Close()

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	// Independent keys have independent budgets.
	require.True(t, l.Allow("10.0.0.2"))
}

func TestLimiter_WindowExpiryResetsBudget(t *testing.T) {
	t.Parallel()

	l := New(1, 50*time.Millisecond)
	defer l.Close()

	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	time.Sleep(80 * time.Millisecond)
	require.True(t, l.Allow("10.0.0.1"))
}

func TestLimiter_NilAndEmptyKeyAlwaysPass(t *testing.T) {
	t.Parallel()

	var l *Limiter
	require.True(t, l.Allow("10.0.0.1"))

	l2 := New(1, time.Minute)
	defer l2.Close()
	require.True(t, l2.Allow(""))
	require.True(t, l2.Allow(""))

	require.Nil(t, New(0, time.Minute))
}

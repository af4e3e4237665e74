package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSpacesCalls(t *testing.T) {
	g := NewGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	elapsed := time.Since(start)

	// First call is immediate, the next two each wait the interval.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestGateHonorsCancellation(t *testing.T) {
	g := NewGate(time.Hour)
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx)) // consume the burst

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Wait(cancelled)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistrySharesGatesPerProvider(t *testing.T) {
	r := NewRegistry()

	assert.Same(t, r.Gate(Yahoo), r.Gate(Yahoo))
	assert.NotSame(t, r.Gate(Yahoo), r.Gate(JPFin))
}

func TestRegistryUnknownProviderGetsGate(t *testing.T) {
	r := NewRegistry()

	g := r.Gate("mystery")
	require.NotNil(t, g)
	assert.Same(t, g, r.Gate("mystery"))
}

func TestRegistryWithOverridesDisablesSpacing(t *testing.T) {
	r := NewRegistryWith(map[string]time.Duration{Telegram: 0})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Gate(Telegram).Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

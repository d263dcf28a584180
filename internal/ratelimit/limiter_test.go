package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_SeparateBucketsPerHost(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, hl.Wait(ctx, "https://planning.a.gov.uk/search"))
	require.NoError(t, hl.Wait(ctx, "https://planning.b.gov.uk/search"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, hl.limiters, 2)
}

func TestHostLimiter_CancelledContext(t *testing.T) {
	hl := NewHostLimiter(0.001, 1)
	require.NoError(t, hl.Wait(context.Background(), "https://x.gov.uk/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, hl.Wait(ctx, "https://x.gov.uk/"))
}

func TestHostLimiter_InvalidURLPasses(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	assert.NoError(t, hl.Wait(context.Background(), "::not a url"))
}

package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/resilience"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	})

	boom := errors.New("boom")
	failing := func(ctx context.Context) error { return boom }

	require.ErrorIs(t, cb.Execute(context.Background(), failing), boom)
	assert.Equal(t, resilience.StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(context.Background(), failing), boom)
	assert.Equal(t, resilience.StateOpen, cb.State())

	err := cb.Execute(context.Background(), failing)
	var openErr *resilience.ErrCircuitOpen
	require.ErrorAs(t, err, &openErr)
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	boom := errors.New("boom")
	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error { return boom }))
	assert.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, resilience.StateClosed, cb.State())
}

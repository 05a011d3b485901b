package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/pkg/circuitbreaker"
)

func TestBreakerObserverExportsOpenCircuit(t *testing.T) {
	name := "test_llm_" + t.Name()
	cb := circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		FailureThreshold: 2,
		Cooldown:         time.Hour,
		Observer:         BreakerObserver(),
	})
	ctx := context.Background()
	fail := func() error { return errors.New("upstream 500") }

	_ = cb.Execute(ctx, fail)
	assert.Zero(t, testutil.ToFloat64(CircuitBreakerTrips.WithLabelValues(name)))

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerTrips.WithLabelValues(name)))
	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(CircuitBreakerState.WithLabelValues(name)))

	err := cb.Execute(ctx, func() error { return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerRejections.WithLabelValues(name, "open")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

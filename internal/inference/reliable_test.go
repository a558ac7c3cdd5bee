package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/pdm-core/internal/telemetry"
)

func TestReliableBackend_RetriesTransientErrors(t *testing.T) {
	var calls int32
	flaky := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return BackendResponse{}, errors.New("transient")
		}
		return BackendResponse{Predictions: []float64{0.4}}, nil
	})

	b := NewReliableBackend(flaky, DefaultReliabilityConfig(), telemetry.NewMetrics(nil), zaptest.NewLogger(t))
	resp, err := b.Predict(context.Background(), BackendRequest{Model: "x"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.4}, resp.Predictions)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestReliableBackend_OpensCircuit(t *testing.T) {
	var calls int32
	broken := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		atomic.AddInt32(&calls, 1)
		return BackendResponse{}, errors.New("down")
	})

	cfg := DefaultReliabilityConfig()
	cfg.Attempts = 1
	cfg.ConsecutiveFailures = 1
	b := NewReliableBackend(broken, cfg, nil, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := b.Predict(context.Background(), BackendRequest{Model: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Predict(context.Background(), BackendRequest{Model: "x"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestReliableBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewReliableBackend(BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		return BackendResponse{}, nil
	}), DefaultReliabilityConfig(), nil, zaptest.NewLogger(t))

	_, err := b.Predict(ctx, BackendRequest{Model: "x"})
	assert.Error(t, err)
}

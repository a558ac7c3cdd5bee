package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/pdm-core/internal/domain"
)

func TestGateway_Score(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		backend      BackendFunc
		wantScore    float64
		wantFallback bool
	}{
		{
			name:  "named score field wins",
			model: ModelAnomaly,
			backend: func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
				return BackendResponse{
					Predictions: []float64{0.1},
					Confidence:  0.9,
					Fields:      map[string]float64{"anomaly_score": 0.82},
				}, nil
			},
			wantScore: 0.82,
		},
		{
			name:  "first prediction when field is absent",
			model: ModelFailure,
			backend: func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
				return BackendResponse{Predictions: []float64{0.66, 120}, Confidence: 0.7}, nil
			},
			wantScore: 0.66,
		},
		{
			name:  "backend error falls back",
			model: ModelAnomaly,
			backend: func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
				return BackendResponse{}, errors.New("connection refused")
			},
			wantFallback: true,
		},
		{
			name:  "backend panic falls back",
			model: ModelAnomaly,
			backend: func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
				var fields map[string]float64
				fields["anomaly_score"] = 1
				return BackendResponse{Fields: fields}, nil
			},
			wantFallback: true,
		},
		{
			name:         "unknown model falls back",
			model:        "no_such_model",
			backend:      func(ctx context.Context, req BackendRequest) (BackendResponse, error) { return BackendResponse{}, nil },
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(DefaultRegistry(), tt.backend, zaptest.NewLogger(t))
			res := g.Score(context.Background(), Request{Model: tt.model, Features: domain.FeatureVector{1, 2, 3, 4}})

			assert.Equal(t, tt.wantFallback, res.FallbackUsed)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			if tt.wantFallback {
				assert.Zero(t, res.Confidence)
			}
		})
	}
}

func TestGateway_TimeoutFallsBackWithinBound(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	// Бэкенд игнорирует контекст и висит
	slow := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		<-block
		return BackendResponse{Predictions: []float64{1}}, nil
	})

	timeout := 50 * time.Millisecond
	g := NewGateway(DefaultRegistry(), slow, zaptest.NewLogger(t), WithTimeout(timeout))

	start := time.Now()
	res := g.Score(context.Background(), Request{Model: ModelAnomaly, Features: domain.FeatureVector{1, 2, 3, 4}})
	elapsed := time.Since(start)

	assert.True(t, res.FallbackUsed)
	assert.Zero(t, res.Score)
	assert.Zero(t, res.Confidence)
	assert.Less(t, elapsed, timeout+200*time.Millisecond)
}

func TestGateway_ForwardsRequest(t *testing.T) {
	var got BackendRequest
	backend := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		got = req
		return BackendResponse{Predictions: []float64{0.5}}, nil
	})

	g := NewGateway(DefaultRegistry(), backend, zaptest.NewLogger(t))
	g.Score(context.Background(), Request{
		Model:           ModelFailure,
		Features:        domain.FeatureVector{1, 2},
		MachineID:       "m1",
		UltraLowLatency: true,
	})

	assert.Equal(t, "failure_predictor_v1", got.Model)
	assert.Equal(t, []float64{1, 2}, got.InputFeatures)
	assert.Equal(t, "m1", got.MachineID)
	assert.True(t, got.UltraLowLatency)

	g.Score(context.Background(), Request{Model: ModelAnomaly})
	assert.Equal(t, int64(50), got.LatencyHintMs)
}

func TestGateway_LocalModelBypassesRemote(t *testing.T) {
	reg := DefaultRegistry()
	spec, err := reg.Lookup(ModelAnomaly)
	require.NoError(t, err)
	spec.Local = &LinearModel{
		Name:    ModelAnomaly,
		Mean:    []float64{0, 0, 0, 0},
		Scale:   []float64{1, 1, 1, 1},
		Weights: [][]float64{{0, 0, 0, 0}},
		Bias:    []float64{0},
		Links:   []string{LinkLogistic},
	}
	require.NoError(t, reg.Register(spec))

	remote := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		t.Fatal("remote backend must not be called")
		return BackendResponse{}, nil
	})

	g := NewGateway(reg, remote, zaptest.NewLogger(t))
	res := g.Score(context.Background(), Request{Model: ModelAnomaly, Features: domain.FeatureVector{1, 2, 3, 4}})

	assert.False(t, res.FallbackUsed)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
}

func TestGateway_NoRemoteFallsBack(t *testing.T) {
	g := NewGateway(DefaultRegistry(), nil, zaptest.NewLogger(t))
	res := g.Score(context.Background(), Request{Model: ModelControl})
	assert.True(t, res.FallbackUsed)
}

func TestGateway_Stats(t *testing.T) {
	calls := 0
	backend := BackendFunc(func(ctx context.Context, req BackendRequest) (BackendResponse, error) {
		calls++
		if calls == 3 {
			return BackendResponse{}, errors.New("boom")
		}
		return BackendResponse{Predictions: []float64{0.2}}, nil
	})

	g := NewGateway(DefaultRegistry(), backend, zaptest.NewLogger(t), WithTargetLatency(20*time.Millisecond))
	for i := 0; i < 3; i++ {
		g.Score(context.Background(), Request{Model: ModelAnomaly})
	}

	stats := g.Stats()
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.Fallbacks)
	assert.GreaterOrEqual(t, stats.AvgLatencyMs, 0.0)
	assert.Equal(t, 20.0, stats.TargetLatencyMs)
}

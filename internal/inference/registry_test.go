package inference

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failureModelJSON = `{
  "name": "failure_prediction",
  "mean": [70, 5, 80, 0.5, 0.1, 0.7, 2, 2],
  "scale": [10, 2, 10, 0.2, 0.05, 0.2, 2, 2],
  "weights": [[0.8, 0.2, 0.5, 0.9, 0.2, 0.4, 0.3, 0.3], [-20, -5, -10, -25, -5, -10, -8, -8]],
  "bias": [-0.5, 300],
  "links": ["logistic", "identity"],
  "outputs": ["failure_probability", "estimated_hours"]
}`

func writeModel(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	spec, err := r.Lookup(ModelAnomaly)
	require.NoError(t, err)
	assert.Equal(t, "anomaly_detector_v1", spec.RemoteID)

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.Equal(t, []string{ModelAnomaly, ModelControl, ModelFailure, ModelVibration}, r.Names())
}

func TestRegistry_RegisterRequiresName(t *testing.T) {
	assert.Error(t, NewRegistry().Register(ModelSpec{}))
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "failure.json", failureModelJSON)

	r := DefaultRegistry()
	require.NoError(t, r.LoadDir(dir))

	spec, err := r.Lookup(ModelFailure)
	require.NoError(t, err)
	require.NotNil(t, spec.Local)
	assert.Equal(t, "failure_predictor_v1", spec.RemoteID)

	resp, err := spec.Local.Predict([]float64{70, 5, 80, 0.5, 0.1, 0.7, 2, 2})
	require.NoError(t, err)
	require.Len(t, resp.Predictions, 2)
	// Вход равен среднему: логит = bias
	assert.InDelta(t, 1/(1+1.6487212707), resp.Predictions[0], 1e-6)
	assert.InDelta(t, 300, resp.Predictions[1], 1e-9)
	assert.InDelta(t, resp.Predictions[0], resp.Fields["failure_probability"], 1e-12)
	assert.Greater(t, resp.Confidence, 0.5)
}

func TestRegistry_LoadDirErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "empty directory"},
		{name: "corrupt json", files: map[string]string{"bad.json": "{"}},
		{name: "dimension mismatch", files: map[string]string{
			"bad.json": `{"name":"x","mean":[1,2],"scale":[1],"weights":[[1,2]],"bias":[0]}`,
		}},
		{name: "unknown link", files: map[string]string{
			"bad.json": `{"name":"x","mean":[1],"scale":[1],"weights":[[1]],"bias":[0],"links":["tanh"]}`,
		}},
		{name: "one bad file spoils the set", files: map[string]string{
			"a.json": failureModelJSON,
			"b.json": `{"name":""}`,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, body := range tt.files {
				writeModel(t, dir, name, body)
			}
			r := DefaultRegistry()
			assert.Error(t, r.LoadDir(dir))

			spec, err := r.Lookup(ModelFailure)
			require.NoError(t, err)
			assert.Nil(t, spec.Local)
		})
	}
}

func TestLinearModel_WrongFeatureCount(t *testing.T) {
	m := &LinearModel{Name: "x", Mean: []float64{0}, Scale: []float64{1}, Weights: [][]float64{{1}}, Bias: []float64{0}}
	_, err := NewLocalBackend(m).Predict(context.Background(), BackendRequest{InputFeatures: []float64{1, 2}})
	assert.Error(t, err)
}

func TestLinearModel_NonNegativeOutputs(t *testing.T) {
	tests := []struct {
		name        string
		nonNegative []string
		wantHours   float64
	}{
		{name: "negative hours cut at zero", nonNegative: []string{"estimated_hours"}, wantHours: 0},
		{name: "unlisted output kept as is", wantHours: -40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &LinearModel{
				Name:        "failure",
				Mean:        []float64{0},
				Scale:       []float64{1},
				Weights:     [][]float64{{0}, {-10}},
				Bias:        []float64{0, 10},
				Links:       []string{LinkLogistic, LinkIdentity},
				Outputs:     []string{"failure_probability", "estimated_hours"},
				NonNegative: tt.nonNegative,
			}
			resp, err := NewLocalBackend(m).Predict(context.Background(), BackendRequest{InputFeatures: []float64{5}})
			require.NoError(t, err)

			assert.InDelta(t, 0.5, resp.Predictions[0], 1e-9)
			assert.InDelta(t, tt.wantHours, resp.Predictions[1], 1e-9)
			assert.InDelta(t, tt.wantHours, resp.Fields["estimated_hours"], 1e-9)
		})
	}
}

package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// LocalModel считается внутри процесса без сетевого вызова.
type LocalModel interface {
	Predict(features []float64) (BackendResponse, error)
}

const (
	LinkIdentity = "identity"
	LinkLogistic = "logistic"
)

// LinearModel — стандартизированная линейная модель с выходом на каждую строку весов.
// Выход i = link_i(bias_i + w_i · (x - mean) / scale).
type LinearModel struct {
	Name       string      `json:"name"`
	Mean       []float64   `json:"mean"`
	Scale      []float64   `json:"scale"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Links      []string    `json:"links"`
	Outputs    []string    `json:"outputs"`    // имена выходов, попадают в Fields
	Confidence float64     `json:"confidence"` // для моделей без вероятностного выхода

	// Выходы, которые не могут быть отрицательными (например, часы до отказа):
	// линейная экстраполяция обрезается по нулю
	NonNegative []string `json:"non_negative"`
}

func (m *LinearModel) validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if len(m.Weights) == 0 {
		return errors.New("at least one output is required")
	}
	dim := len(m.Mean)
	if dim == 0 || len(m.Scale) != dim {
		return fmt.Errorf("mean/scale size mismatch: %d/%d", dim, len(m.Scale))
	}
	if len(m.Bias) != len(m.Weights) {
		return fmt.Errorf("bias size %d, want %d", len(m.Bias), len(m.Weights))
	}
	for i, w := range m.Weights {
		if len(w) != dim {
			return fmt.Errorf("weights[%d] size %d, want %d", i, len(w), dim)
		}
	}
	for _, link := range m.Links {
		if link != LinkIdentity && link != LinkLogistic {
			return fmt.Errorf("unknown link %q", link)
		}
	}
	return nil
}

func (m *LinearModel) Predict(features []float64) (BackendResponse, error) {
	if len(features) != len(m.Mean) {
		return BackendResponse{}, fmt.Errorf("%s: got %d features, want %d", m.Name, len(features), len(m.Mean))
	}

	x := make([]float64, len(features))
	for i, v := range features {
		scale := m.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (v - m.Mean[i]) / scale
	}

	resp := BackendResponse{
		Predictions: make([]float64, len(m.Weights)),
		Confidence:  m.Confidence,
		Fields:      make(map[string]float64, len(m.Outputs)),
	}
	for k, w := range m.Weights {
		z := m.Bias[k]
		for i := range x {
			z += w[i] * x[i]
		}
		if m.link(k) == LinkLogistic {
			z = 1 / (1 + math.Exp(-z))
			if k == 0 {
				resp.Confidence = math.Max(z, 1-z)
			}
		}
		if m.nonNegative(k) {
			z = math.Max(z, 0)
		}
		resp.Predictions[k] = z
		if k < len(m.Outputs) && m.Outputs[k] != "" {
			resp.Fields[m.Outputs[k]] = z
		}
	}
	return resp, nil
}

func (m *LinearModel) nonNegative(k int) bool {
	if k >= len(m.Outputs) {
		return false
	}
	for _, name := range m.NonNegative {
		if name == m.Outputs[k] {
			return true
		}
	}
	return false
}

func (m *LinearModel) link(k int) string {
	if k < len(m.Links) && m.Links[k] != "" {
		return m.Links[k]
	}
	return LinkIdentity
}

// LocalBackend адаптирует LocalModel к интерфейсу Backend.
type LocalBackend struct {
	model LocalModel
}

func NewLocalBackend(model LocalModel) *LocalBackend {
	return &LocalBackend{model: model}
}

func (b *LocalBackend) Predict(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	if err := ctx.Err(); err != nil {
		return BackendResponse{}, err
	}
	return b.model.Predict(req.InputFeatures)
}

package inference

import (
	"context"
	"fmt"
)

// BackendRequest — тело запроса к сервису инференса.
type BackendRequest struct {
	Model           string    `json:"model"`
	InputFeatures   []float64 `json:"input_features"`
	MachineID       string    `json:"machine_id,omitempty"`
	LatencyHintMs   int64     `json:"latency_hint_ms,omitempty"`
	UltraLowLatency bool      `json:"ultra_low_latency,omitempty"`
}

// BackendResponse — разобранный ответ бэкенда.
type BackendResponse struct {
	Predictions []float64
	Confidence  float64
	LatencyMs   float64
	Fields      map[string]float64 // прочие числовые поля (anomaly_score, failure_probability ...)
	Labels      map[string]string  // строковые поля (action, bearing_health ...)
}

// Backend — транспорт до модели. Реализации должны уважать ctx.
type Backend interface {
	Predict(ctx context.Context, req BackendRequest) (BackendResponse, error)
}

// BackendFunc позволяет передать функцию как Backend.
type BackendFunc func(ctx context.Context, req BackendRequest) (BackendResponse, error)

func (f BackendFunc) Predict(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	return f(ctx, req)
}

// parseResponse разбирает JSON-совместимую карту ответа (HTTP и structpb дают одинаковую форму).
func parseResponse(m map[string]interface{}) (BackendResponse, error) {
	if msg, ok := m["error"].(string); ok && msg != "" {
		return BackendResponse{}, fmt.Errorf("%w: %s", ErrBackendStatus, msg)
	}

	resp := BackendResponse{
		Fields: make(map[string]float64),
		Labels: make(map[string]string),
	}
	for key, raw := range m {
		switch key {
		case "predictions":
			list, ok := raw.([]interface{})
			if !ok {
				return BackendResponse{}, fmt.Errorf("%w: predictions is %T", ErrBadResponse, raw)
			}
			resp.Predictions = make([]float64, 0, len(list))
			for _, item := range list {
				v, ok := item.(float64)
				if !ok {
					return BackendResponse{}, fmt.Errorf("%w: prediction is %T", ErrBadResponse, item)
				}
				resp.Predictions = append(resp.Predictions, v)
			}
			continue
		case "confidence":
			resp.Confidence, _ = raw.(float64)
			continue
		case "latency_ms":
			resp.LatencyMs, _ = raw.(float64)
			continue
		}

		switch v := raw.(type) {
		case float64:
			resp.Fields[key] = v
		case bool:
			if v {
				resp.Fields[key] = 1
			} else {
				resp.Fields[key] = 0
			}
		case string:
			resp.Labels[key] = v
		}
	}
	return resp, nil
}

func toInterfaceSlice(in []float64) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

package domain

import "time"

// ScoreResult — нормализованный ответ шлюза инференса.
type ScoreResult struct {
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	Latency      time.Duration      `json:"latency"`
	FallbackUsed bool               `json:"fallback_used"`
	Predictions  []float64          `json:"predictions,omitempty"`
	Outputs      map[string]float64 `json:"outputs,omitempty"`
	Labels       map[string]string  `json:"labels,omitempty"`
}

// FallbackScore — ответ при любой ошибке инференса.
func FallbackScore(latency time.Duration) ScoreResult {
	return ScoreResult{Score: 0, Confidence: 0, Latency: latency, FallbackUsed: true}
}

// InferenceStats — агрегаты по вызовам шлюза.
type InferenceStats struct {
	TotalCalls      int64   `json:"total_calls"`
	Fallbacks       int64   `json:"fallbacks"`
	AvgLatencyMs    float64 `json:"average_latency_ms"`
	TargetLatencyMs float64 `json:"target_latency_ms"`
}

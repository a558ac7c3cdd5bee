package inference

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PredictMethod — унарный метод сервиса инференса, payload — google.protobuf.Struct.
const PredictMethod = "/pdm.inference.v1.InferenceService/Predict"

type GRPCBackend struct {
	conn   grpc.ClientConnInterface
	method string
}

// NewGRPCBackend создает адаптер поверх готового соединения.
func NewGRPCBackend(conn grpc.ClientConnInterface) *GRPCBackend {
	return &GRPCBackend{conn: conn, method: PredictMethod}
}

func (b *GRPCBackend) Predict(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	// 1. Собираем Struct из запроса
	payload, err := structpb.NewStruct(map[string]interface{}{
		"model":             req.Model,
		"input_features":    toInterfaceSlice(req.InputFeatures),
		"machine_id":        req.MachineID,
		"latency_hint_ms":   float64(req.LatencyHintMs),
		"ultra_low_latency": req.UltraLowLatency,
	})
	if err != nil {
		return BackendResponse{}, fmt.Errorf("failed to create proto struct: %w", err)
	}

	// 2. Унарный вызов; дедлайн приходит из ctx шлюза
	out := &structpb.Struct{}
	if err := b.conn.Invoke(ctx, b.method, payload, out); err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return BackendResponse{}, &ThrottleError{RetryAfter: 0, Cause: err}
		}
		return BackendResponse{}, fmt.Errorf("inference call failed: %w", err)
	}

	// 3. Разбираем ответ так же, как JSON
	return parseResponse(out.AsMap())
}

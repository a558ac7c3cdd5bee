package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/pdm-core/internal/domain"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

type fakeNATS struct {
	subject string
	data    []byte
}

func (n *fakeNATS) Publish(subj string, data []byte) error {
	n.subject = subj
	n.data = data
	return nil
}

func sampleAlert() domain.AlertRecord {
	return domain.AlertRecord{
		ID:        "a-1",
		Type:      domain.AlertFailurePrediction,
		MachineID: "m1",
		Severity:  domain.SeverityCritical,
		Message:   "Failure probability: 91.00%",
	}
}

func TestRedisSink_Send(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewRedisSink(pub).Send(context.Background(), sampleAlert()))

	assert.Equal(t, "pdm:alerts:failure_prediction", pub.channel)
	var got domain.AlertRecord
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, "a-1", got.ID)

	pub.err = errors.New("connection reset")
	assert.Error(t, NewRedisSink(pub).Send(context.Background(), sampleAlert()))
}

func TestNATSSink_Send(t *testing.T) {
	conn := &fakeNATS{}
	require.NoError(t, NewNATSSink(conn).Send(context.Background(), sampleAlert()))

	assert.Equal(t, "factory.alerts.failure_prediction", conn.subject)
	assert.Contains(t, string(conn.data), `"severity":"critical"`)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	var delivered int
	ok := SinkFunc(func(context.Context, domain.AlertRecord) error { delivered++; return nil })
	bad := SinkFunc(func(context.Context, domain.AlertRecord) error { return errA })

	err := MultiSink{bad, ok, NewLogSink(zaptest.NewLogger(t))}.Send(context.Background(), sampleAlert())

	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, delivered)
	assert.NoError(t, MultiSink{ok}.Send(context.Background(), sampleAlert()))
}

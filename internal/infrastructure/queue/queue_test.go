package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/testutil"
)

func TestNew_SelectsDriver(t *testing.T) {
	cfg := testutil.Config()

	cfg.Queue.Driver = "memory"
	q, err := New(cfg, nil, testutil.Logger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	cfg.Queue.Driver = "redis"
	_, err = New(cfg, nil, testutil.Logger())
	assert.Error(t, err)

	cfg.Queue.Driver = "kafka"
	cfg.Queue.KafkaBrokers = nil
	_, err = New(cfg, nil, testutil.Logger())
	assert.Error(t, err)

	cfg.Queue.KafkaBrokers = []string{"localhost:9092"}
	q, err = New(cfg, nil, testutil.Logger())
	require.NoError(t, err)
	assert.IsType(t, &KafkaQueue{}, q)
	assert.NoError(t, q.Close())

	cfg.Queue.Driver = "sqs"
	_, err = New(cfg, nil, testutil.Logger())
	assert.Error(t, err)
}

func TestKafkaMessage_KeyedByJobKey(t *testing.T) {
	job, err := shared.NewJob(shared.JobDigitalKeyNotify, "12:34", shared.DigitalKeyNotifyPayload{OrderID: 12, OrderItemID: 34})
	require.NoError(t, err)

	msg, err := toMessage(job)
	require.NoError(t, err)
	assert.Equal(t, "12:34", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, shared.JobDigitalKeyNotify, string(msg.Headers[0].Value))

	decoded, err := decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.JSONEq(t, string(job.Payload), string(decoded.Payload))
}

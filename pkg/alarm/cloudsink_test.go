package alarm

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLogEntityKeysAndFields(t *testing.T) {
	ev := LogEvent{
		RuleID: 2, PointID: 7, PointName: "p7",
		EventType: eventTypeTrigger, Value: 60, Threshold: 50,
		Message: "high triggered on point p7", StartTimeMs: 1000,
	}
	body, err := buildLogEntity(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "7", m["PartitionKey"])
	assert.Equal(t, "1000-2-1", m["RowKey"])
	assert.Equal(t, "p7", m["PointName"])
}

func TestCloudMirrorEnqueueDropsOnOverflow(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := newCloudMirror(nil, logrus.NewEntry(logger))

	for i := 0; i < cloudQueueCapacity; i++ {
		m.enqueue(LogEvent{RuleID: int64(i)})
	}
	// One more over capacity must not block.
	done := make(chan struct{})
	go func() {
		m.enqueue(LogEvent{RuleID: 999})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Len(t, m.queue, cloudQueueCapacity)
}

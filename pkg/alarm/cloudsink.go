package alarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/sirupsen/logrus"
)

const cloudQueueCapacity = 1000

// CloudMirror asynchronously mirrors alarm log rows to an Azure Table for
// edge→cloud visibility. It is strictly best-effort: a failed or backed-up
// mirror never blocks evaluation or the required local SQLite write.
type CloudMirror struct {
	client *aztables.Client
	logger *logrus.Entry
	queue  chan LogEvent
	done   chan struct{}
}

// NewCloudMirror opens a table client against serviceURL (an Azure Storage
// account table endpoint) using a shared-key credential, creating tableName
// if it does not already exist.
func NewCloudMirror(ctx context.Context, serviceURL, account, key, tableName string, logger *logrus.Entry) (*CloudMirror, error) {
	cred, err := aztables.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("alarm: cloud mirror credential: %w", err)
	}
	service, err := aztables.NewServiceClientWithSharedKey(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("alarm: cloud mirror service client: %w", err)
	}
	client := service.NewClient(tableName)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		logger.WithError(err).Debug("cloud mirror table create skipped (likely already exists)")
	}
	return newCloudMirror(client, logger), nil
}

func newCloudMirror(client *aztables.Client, logger *logrus.Entry) *CloudMirror {
	return &CloudMirror{
		client: client,
		logger: logger,
		queue:  make(chan LogEvent, cloudQueueCapacity),
		done:   make(chan struct{}),
	}
}

func (m *CloudMirror) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.queue:
			if !ok {
				return
			}
			if err := m.mirror(ctx, ev); err != nil {
				m.logger.WithFields(logrus.Fields{"rule_id": ev.RuleID, "point_id": ev.PointID}).
					WithError(err).Warn("cloud mirror write failed, local log unaffected")
			}
		}
	}
}

// enqueue submits ev for best-effort mirroring. Unlike logSaver.enqueue,
// overflow is not even worth a warning at normal log levels — the cloud
// mirror is expected to occasionally lag or drop under sustained load.
func (m *CloudMirror) enqueue(ev LogEvent) {
	select {
	case m.queue <- ev:
	default:
		m.logger.Debug("cloud mirror queue full, dropping event")
	}
}

func (m *CloudMirror) stop() {
	close(m.queue)
	<-m.done
}

func (m *CloudMirror) mirror(ctx context.Context, ev LogEvent) error {
	body, err := buildLogEntity(ev)
	if err != nil {
		return fmt.Errorf("alarm: marshal cloud mirror entity: %w", err)
	}
	_, err = m.client.AddEntity(ctx, body, nil)
	return err
}

// buildLogEntity builds the JSON entity body aztables.Client.AddEntity
// expects, keyed by point id (PartitionKey) and a start-time/rule/event
// composite (RowKey) that is unique per transition.
func buildLogEntity(ev LogEvent) ([]byte, error) {
	entity := map[string]any{
		"PartitionKey": fmt.Sprintf("%d", ev.PointID),
		"RowKey":       fmt.Sprintf("%d-%d-%d", ev.StartTimeMs, ev.RuleID, ev.EventType),
		"RuleID":       ev.RuleID,
		"PointName":    ev.PointName,
		"EventType":    ev.EventType,
		"Value":        ev.Value,
		"Threshold":    ev.Threshold,
		"Message":      ev.Message,
		"StartTimeMs":  ev.StartTimeMs,
		"EndTimeMs":    ev.EndTimeMs,
	}
	return json.Marshal(entity)
}

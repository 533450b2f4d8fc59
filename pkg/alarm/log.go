package alarm

import (
	"context"

	"github.com/sirupsen/logrus"
)

const logQueueCapacity = 1000

// LogSink persists one alarm log event; *Store implements it against
// t_alarm_log. Tests substitute an in-memory fake.
type LogSink interface {
	InsertLogEvent(ctx context.Context, ev LogEvent) error
}

// logSaver drains a queue of LogEvents on its own goroutine and writes
// each to a LogSink within its own transaction — §4.7's "a dedicated
// log-saver thread drains the queue and writes to t_alarm_log", kept off
// the evaluation goroutine so a slow database write never stalls rule
// evaluation.
type logSaver struct {
	store  LogSink
	logger *logrus.Entry
	queue  chan LogEvent
	done   chan struct{}
}

func newLogSaver(store LogSink, logger *logrus.Entry) *logSaver {
	return &logSaver{
		store:  store,
		logger: logger,
		queue:  make(chan LogEvent, logQueueCapacity),
		done:   make(chan struct{}),
	}
}

func (l *logSaver) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-l.queue:
			if !ok {
				return
			}
			if err := l.store.InsertLogEvent(ctx, ev); err != nil {
				l.logger.WithFields(logrus.Fields{"rule_id": ev.RuleID, "point_id": ev.PointID}).
					WithError(err).Error("alarm log write failed")
			}
		}
	}
}

// enqueue submits ev for asynchronous persistence. On overflow the event
// is dropped and logged — the same overflow policy §4.7 specifies for
// the ingestion queue, applied symmetrically to the log path.
func (l *logSaver) enqueue(ev LogEvent) {
	select {
	case l.queue <- ev:
	default:
		l.logger.WithFields(logrus.Fields{"rule_id": ev.RuleID, "point_id": ev.PointID}).
			Warn("alarm log queue full, dropping event")
	}
}

func (l *logSaver) stop() {
	close(l.queue)
	<-l.done
}

package alarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lwedge/lwbus/pkg/mesh"
)

const ingestQueueCapacity = 1000

// alarmInfoTopic is where TRIGGER/CLEAR transitions are published (§6).
const alarmInfoTopic = "/v1/alarm_server/alarm_info/"

const (
	eventTypeTrigger = 1
	eventTypeClear   = 2
)

// messageTypeTrigger/Clear distinguish the two publish payloads on
// alarmInfoTopic.
const (
	messageTypeTrigger = "TRIGGER"
	messageTypeClear   = "CLEAR"
)

// pointUpdate is one dequeued ingestion item: a point observed at value
// at the time the tag update carrying it arrived.
type pointUpdate struct {
	pointID   int64
	pointName string
	value     float64
	nowMs     int64
}

// AlarmInfo is the JSON payload published on alarmInfoTopic (§6).
type AlarmInfo struct {
	PointID     int64   `json:"point_id"`
	PointName   string  `json:"point_name"`
	PointValue  float64 `json:"point_value"`
	RuleID      int64   `json:"rule_id"`
	RuleName    string  `json:"rule_name"`
	RuleMethod  Method  `json:"rule_method"`
	MessageType string  `json:"message_type"`
	TimestampMs int64   `json:"timestamp"`
}

// Publisher abstracts the "publish AlarmInfo to every subscriber" side
// effect, satisfied by *mesh.Server (the alarm-server's own embedded
// server, per §4.6's dual-role pattern Driver also follows).
type Publisher interface {
	Publish(url string, payload []byte)
}

// Engine is the alarm evaluation engine of §4.7: a bounded ingestion
// queue, a single evaluation goroutine, and a log-saver goroutine.
type Engine struct {
	logger      *logrus.Entry
	store       *Store
	publisher   Publisher
	logSaver    *logSaver
	cloudMirror *CloudMirror

	mu            sync.RWMutex
	rulesByPoint  map[int64][]Rule
	pointIDByName map[string]int64
	states        *stateTable

	queue  chan pointUpdate
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs an Engine. Call LoadRules then Start.
func NewEngine(store *Store, publisher Publisher, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("service", "[ALARM]")
	return &Engine{
		logger:        entry,
		store:         store,
		publisher:     publisher,
		logSaver:      newLogSaver(store, entry),
		rulesByPoint:  make(map[int64][]Rule),
		pointIDByName: make(map[string]int64),
		states:        newStateTable(),
		queue:         make(chan pointUpdate, ingestQueueCapacity),
	}
}

// WithCloudMirror attaches an optional best-effort cloud mirror. Must be
// called before Start.
func (e *Engine) WithCloudMirror(m *CloudMirror) *Engine {
	e.cloudMirror = m
	return e
}

// LoadRules reads and installs the current rule set from the store
// (§4.7's "Rule loading"): rules are immutable for the process lifetime
// once loaded, so this is normally called once at startup.
func (e *Engine) LoadRules(ctx context.Context) error {
	byPoint, err := e.store.LoadRules(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]int64, len(byPoint))
	for pointID, rules := range byPoint {
		if len(rules) > 0 {
			byName[rules[0].PointName] = pointID
		}
	}

	e.mu.Lock()
	e.rulesByPoint = byPoint
	e.pointIDByName = byName
	e.mu.Unlock()
	return nil
}

// Start launches the evaluation, log-saver, and (if attached) cloud-mirror
// goroutines.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.logSaver.run(ctx) }()
	go func() { defer e.wg.Done(); e.evaluateLoop(ctx) }()

	if e.cloudMirror != nil {
		e.wg.Add(1)
		go func() { defer e.wg.Done(); e.cloudMirror.run(ctx) }()
	}
}

// Stop cancels every goroutine Start launched and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Ingest enqueues one (point_id via name, value) observation, reporting
// false and logging on queue overflow — §4.7: "On overflow the message
// is dropped and logged; there is no back-pressure to the publisher."
func (e *Engine) Ingest(pointName string, value float64, nowMs int64) bool {
	e.mu.RLock()
	pointID, ok := e.pointIDByName[pointName]
	e.mu.RUnlock()
	if !ok {
		return false // no rules configured for this point; nothing to evaluate
	}

	update := pointUpdate{pointID: pointID, pointName: pointName, value: value, nowMs: nowMs}
	select {
	case e.queue <- update:
		return true
	default:
		e.logger.WithField("point", pointName).Warn("alarm ingestion queue full, dropping update")
		return false
	}
}

// SubscribeUpdates sends client's subscribe request for "/tags/update" —
// the alarm-engine's half of §2's "the hub forwards to subscribed clients;
// the alarm engine is one such subscriber". It does not route the
// delivered publishes anywhere itself: they reach Ingest only if the
// client's ClientOptions.OnMessage calls HandleTagUpdateDatagram.
func (e *Engine) SubscribeUpdates(client *mesh.Client) error {
	return client.Subscribe("/tags/update", nil)
}

// HandleTagUpdateDatagram parses a /tags/update payload and ingests
// every entry whose name matches a configured point.
func (e *Engine) HandleTagUpdateDatagram(payload []byte) error {
	updates, err := decodeTagUpdates(payload)
	if err != nil {
		return fmt.Errorf("alarm: decode /tags/update: %w", err)
	}
	for _, u := range updates {
		e.Ingest(u.Name, u.Value, u.TimeMs)
	}
	return nil
}

func (e *Engine) evaluateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-e.queue:
			e.evaluateOne(update)
		}
	}
}

// evaluateOne implements §4.7 step 3/4: evaluate rules in priority
// order, trigger at most one, and clear every other previously-active
// rule on the point.
func (e *Engine) evaluateOne(u pointUpdate) {
	e.mu.RLock()
	rules := e.rulesByPoint[u.pointID]
	e.mu.RUnlock()

	var triggered *Rule
	for i := range rules {
		rule := rules[i]
		needsHistory := rule.Method == MethodRate
		ctx := e.states.context(u.pointID, rule.ID, needsHistory)
		if Evaluate(rule, u.value, u.nowMs, ctx) {
			triggered = &rules[i]
			break
		}
	}

	if triggered != nil {
		for i := range rules {
			if rules[i].ID == triggered.ID {
				continue
			}
			state := e.states.state(u.pointID, rules[i].ID)
			if state.Active {
				e.fireTransition(rules[i], u, false)
			}
		}
		e.fireTransition(*triggered, u, true)
		return
	}

	for i := range rules {
		state := e.states.state(u.pointID, rules[i].ID)
		if state.Active {
			e.fireTransition(rules[i], u, false)
		}
	}
}

// fireTransition flips the (point,rule) state if it changed, publishing
// and logging only on an actual transition — a repeat trigger of an
// already-active rule is a no-op (§4.7 step 3/4).
func (e *Engine) fireTransition(rule Rule, u pointUpdate, active bool) {
	state := e.states.state(u.pointID, rule.ID)
	isNewTransition := state.Active != active
	state.Active = active
	if active {
		state.LastTriggerMs = u.nowMs
		if state.ActivationMs == 0 {
			state.ActivationMs = u.nowMs
		}
	} else {
		state.ActivationMs = 0
	}

	if isNewTransition {
		e.publish(rule, u, active)
		e.log(rule, u, active)
	}
}

func (e *Engine) publish(rule Rule, u pointUpdate, active bool) {
	if e.publisher == nil {
		return
	}
	messageType := messageTypeClear
	if active {
		messageType = messageTypeTrigger
	}
	info := AlarmInfo{
		PointID:     u.pointID,
		PointName:   u.pointName,
		PointValue:  u.value,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		RuleMethod:  rule.Method,
		MessageType: messageType,
		TimestampMs: u.nowMs,
	}
	buf, err := encodeAlarmInfo(info)
	if err != nil {
		e.logger.WithError(err).Error("marshal alarm_info failed")
		return
	}
	e.publisher.Publish(alarmInfoTopic, buf)
}

func (e *Engine) log(rule Rule, u pointUpdate, active bool) {
	ev := LogEvent{
		RuleID:      rule.ID,
		PointID:     u.pointID,
		PointName:   u.pointName,
		Value:       u.value,
		Threshold:   rule.Threshold,
		StartTimeMs: u.nowMs,
	}
	if active {
		ev.EventType = eventTypeTrigger
		ev.Message = fmt.Sprintf("%s triggered on point %s", rule.Name, u.pointName)
		ev.EndTimeMs = 0
	} else {
		ev.EventType = eventTypeClear
		ev.Message = fmt.Sprintf("%s cleared on point %s", rule.Name, u.pointName)
		ev.EndTimeMs = u.nowMs
	}
	e.logSaver.enqueue(ev)
	if e.cloudMirror != nil {
		e.cloudMirror.enqueue(ev)
	}
}


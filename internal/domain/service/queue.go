package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
)

// EventQueue 持久化事件队列
//
// Producers (adapters) call Push; the single supervisor loop calls Dequeue.
// The read-then-update dequeue is safe only under single-consumer discipline;
// adding a second concurrent consumer would break it.
type EventQueue struct {
	events repository.EventRepository
	logger *zap.Logger

	// now is swappable so tests can pin the hour bucket.
	now func() time.Time
}

// NewEventQueue 创建事件队列
func NewEventQueue(events repository.EventRepository, logger *zap.Logger) *EventQueue {
	return &EventQueue{
		events: events,
		logger: logger.With(zap.String("component", "event-queue")),
		now:    time.Now,
	}
}

// Push inserts a new event and returns its id.
//
// The id is deterministic over (source, type, payload, hour bucket), and the
// insert ignores primary-key conflicts: pushing an identical event twice
// within the same hour is a no-op that returns the existing id. Adapters
// whose events must be distinct per sub-hour tick include a unique field in
// the payload (e.g. the minute string).
func (q *EventQueue) Push(ctx context.Context, source, eventType string, payload map[string]interface{}, projectID string, priority int) (string, error) {
	if source == "" {
		return "", entity.ErrInvalidEventSource
	}
	if eventType == "" {
		return "", entity.ErrInvalidEventType
	}
	if priority == 0 {
		priority = entity.PriorityDefault
	}
	if priority < entity.PriorityHighest || priority > entity.PriorityLowest {
		return "", entity.ErrInvalidPriority
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	id, err := q.eventID(source, eventType, payload)
	if err != nil {
		return "", err
	}

	event := &entity.Event{
		ID:        id,
		Source:    source,
		Type:      eventType,
		ProjectID: projectID,
		Priority:  priority,
		Payload:   payload,
		Status:    entity.EventPending,
		CreatedAt: q.now().UTC(),
	}
	if err := q.events.Insert(ctx, event); err != nil {
		return "", err
	}
	return id, nil
}

// Dequeue fetches the highest-priority pending event, marks it processing,
// and returns the pre-update snapshot. Returns nil when the queue is empty.
func (q *EventQueue) Dequeue(ctx context.Context) (*entity.Event, error) {
	event, err := q.events.NextPending(ctx)
	if err != nil || event == nil {
		return nil, err
	}
	if err := q.events.MarkProcessing(ctx, event.ID); err != nil {
		return nil, err
	}
	return event, nil
}

// Complete 标记事件处理完成
func (q *EventQueue) Complete(ctx context.Context, id string) error {
	return q.events.MarkProcessed(ctx, id, entity.EventDone, q.now().UTC())
}

// Fail marks an event as failed. Failure is terminal — there is no retry;
// re-enqueueing is an adapter or operator responsibility.
func (q *EventQueue) Fail(ctx context.Context, id string) error {
	return q.events.MarkProcessed(ctx, id, entity.EventFailed, q.now().UTC())
}

// ResetStale re-queues events left in processing by a crashed prior run.
// Returns the number of events reset. Called once at startup.
func (q *EventQueue) ResetStale(ctx context.Context) (int64, error) {
	n, err := q.events.ResetStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("Reset stale events to pending", zap.Int64("count", n))
	}
	return n, nil
}

// eventID 确定性事件ID: hash(source + canonical payload + 小时桶)
//
// Truncating the timestamp to the hour (not the minute) is deliberate — it
// tolerates clock skew between adapters while giving a natural one-hour
// dedup window for identical events.
func (q *EventQueue) eventID(source, eventType string, payload map[string]interface{}) (string, error) {
	// json.Marshal sorts map keys recursively, which gives us a canonical
	// encoding without a separate canonicalisation pass.
	content, err := json.Marshal(map[string]interface{}{
		"source":  source,
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	hourKey := q.now().UTC().Format("2006010215")
	sum := sha256.Sum256([]byte(source + ":" + string(content) + ":" + hourKey))
	return "evt_" + hex.EncodeToString(sum[:])[:16], nil
}

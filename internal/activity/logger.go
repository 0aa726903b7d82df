package activity

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"admin-service/internal/bucketing"
	"admin-service/internal/models"
	"admin-service/internal/util"
)

// Producer is the slice of the Kafka client the logger needs. Tests
// substitute a recording fake.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Logger emits audit events best-effort. Emission never blocks the flow it
// instruments, is never retried, and failures are logged locally and
// swallowed. Dropped events under failure are a documented gap, not a bug.
type Logger struct {
	producer  Producer
	bucketing *bucketing.Manager
	topic     string
	logger    *zap.Logger
}

func NewLogger(producer Producer, bucketingMgr *bucketing.Manager, topic string, logger *zap.Logger) *Logger {
	return &Logger{
		producer:  producer,
		bucketing: bucketingMgr,
		topic:     topic,
		logger:    logger,
	}
}

// Log dispatches an event asynchronously and returns immediately.
func (l *Logger) Log(event models.ActivityEvent) {
	if !l.prepare(&event) {
		return
	}
	go l.send(event)
}

// LogBatch dispatches events asynchronously on a single goroutine so their
// relative order on the topic is preserved. Used for page transitions,
// where the END of the outgoing page must precede the START of the next.
func (l *Logger) LogBatch(events ...models.ActivityEvent) {
	prepared := make([]models.ActivityEvent, 0, len(events))
	for _, event := range events {
		if l.prepare(&event) {
			prepared = append(prepared, event)
		}
	}
	if len(prepared) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, event := range prepared {
			l.sendCtx(ctx, event)
		}
	}()
}

// LogSync dispatches an event on the calling goroutine, bounded by ctx.
// Used for LOGOUT, which is emitted before the session record is cleared;
// the clear proceeds whatever happens here.
func (l *Logger) LogSync(ctx context.Context, event models.ActivityEvent) {
	if !l.prepare(&event) {
		return
	}
	l.sendCtx(ctx, event)
}

func (l *Logger) prepare(event *models.ActivityEvent) bool {
	if l == nil || l.producer == nil {
		return false
	}
	// No admin identity means nothing to attribute the event to; skip
	// outright rather than queue.
	if event.AdminID == "" {
		l.logger.Debug("Activity event skipped, no admin id",
			util.String("action", event.Action))
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if l.bucketing != nil {
		event.EventBucket = l.bucketing.GetEventBucket(event.AdminID)
	}
	return true
}

func (l *Logger) send(event models.ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.sendCtx(ctx, event)
}

func (l *Logger) sendCtx(ctx context.Context, event models.ActivityEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("Failed to marshal activity event",
			util.String("action", event.Action),
			util.ErrorField(err))
		return
	}

	if err := l.producer.ProduceMessage(ctx, l.topic, []byte(event.AdminID), value); err != nil {
		// Swallowed: no retry, no queueing, no user-visible error.
		l.logger.Warn("Failed to emit activity event",
			util.String("action", event.Action),
			util.String("admin_id", event.AdminID),
			util.ErrorField(err))
		return
	}

	l.logger.Debug("Activity event emitted",
		util.String("action", event.Action),
		util.String("admin_id", event.AdminID),
		util.String("page", event.Page))
}

package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"admin-service/internal/models"
	"admin-service/internal/util"
)

const insertActivityQuery = `
	INSERT INTO admin_activity (
		event_bucket, admin_id, action, page, details, duration_ms, timestamp
	)`

// Consumer reads the next message off the activity topic.
type Consumer interface {
	ConsumeMessage(ctx context.Context) (*kafka.Message, error)
}

// BatchInserter writes rows to the analytics store.
type BatchInserter interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

// Sink drains the activity topic into ClickHouse in batches. It is a
// consumer of the fire-and-forget stream: losing the sink never affects
// emission, and a malformed message is dropped with a warning.
type Sink struct {
	consumer   Consumer
	clickhouse BatchInserter
	batchSize  int
	flushEvery time.Duration
	logger     *zap.Logger
}

func NewSink(consumer Consumer, clickhouse BatchInserter, logger *zap.Logger) *Sink {
	return &Sink{
		consumer:   consumer,
		clickhouse: clickhouse,
		batchSize:  200,
		flushEvery: 5 * time.Second,
		logger:     logger,
	}
}

// Run consumes until ctx is cancelled, flushing whenever the batch fills
// or the flush interval elapses.
func (s *Sink) Run(ctx context.Context) {
	util.Info("Activity sink started",
		util.Int("batch_size", s.batchSize),
		util.Duration("flush_interval", s.flushEvery))

	batch := make([]models.ActivityEvent, 0, s.batchSize)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	messages := make(chan []byte)
	go s.consumeLoop(ctx, messages)

	for {
		select {
		case <-ctx.Done():
			s.flush(batch)
			util.Info("Activity sink stopped")
			return
		case <-ticker.C:
			s.flush(batch)
			batch = batch[:0]
		case value, ok := <-messages:
			if !ok {
				s.flush(batch)
				return
			}
			var event models.ActivityEvent
			if err := json.Unmarshal(value, &event); err != nil {
				s.logger.Warn("Dropping malformed activity message", util.ErrorField(err))
				continue
			}
			batch = append(batch, event)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Sink) consumeLoop(ctx context.Context, out chan<- []byte) {
	defer close(out)
	for {
		msg, err := s.consumer.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Activity consume failed", util.ErrorField(err))
			continue
		}
		select {
		case out <- msg.Value:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sink) flush(batch []models.ActivityEvent) {
	if len(batch) == 0 {
		return
	}

	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []interface{}{
			e.EventBucket, e.AdminID, e.Action, e.Page, e.Details, e.DurationMS, e.Timestamp,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.clickhouse.BatchInsert(ctx, insertActivityQuery, rows); err != nil {
		s.logger.Error("Failed to flush activity batch",
			util.Int("batch_size", len(batch)),
			util.ErrorField(err))
		return
	}

	s.logger.Debug("Activity batch flushed", util.Int("batch_size", len(batch)))
}

// Package consumer runs the raw-data-ready subscription loop and the
// per-message cleaning pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/metrics"
	"github.com/sinofeed/weibo-cleaner/internal/task"
)

// subscription is the slice of *pubsub.Subscription the consumer needs.
type subscription interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// acker abstracts message acknowledgement for tests.
type acker interface {
	Ack()
	Nack()
}

// idGenerator produces event ids.
type idGenerator interface {
	NewID() (string, error)
}

// Config controls Consumer behavior.
type Config struct {
	// CleanedTopic receives the per-message summary event.
	CleanedTopic string
	// MessageTimeout bounds one pipeline run; a stuck message must not
	// occupy a prefetch slot forever.
	MessageTimeout time.Duration
}

// Consumer subscribes to raw-data-ready notifications and executes the
// pipeline once per message: fetch raw record, idempotency check, route,
// clean, flip status, publish summary. A message is acknowledged after the
// pipeline completes with success or a classified failure; only infra
// errors that left no trace (fetch or status-update failures) are nacked
// for broker redelivery.
type Consumer struct {
	sub       subscription
	rawStore  clean.RawDataStore
	router    *task.Router
	publisher clean.Publisher
	idGen     idGenerator
	clock     clean.Clock
	validate  *validator.Validate
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Consumer.
func New(
	sub subscription,
	rawStore clean.RawDataStore,
	router *task.Router,
	publisher clean.Publisher,
	idGen idGenerator,
	clock clean.Clock,
	cfg Config,
	logger *zap.Logger,
) *Consumer {
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 60 * time.Second
	}
	return &Consumer{
		sub:       sub,
		rawStore:  rawStore,
		router:    router,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		validate:  validator.New(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming messages until the context finishes. One poisoned
// message never halts the loop.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		c.handle(msgCtx, msg.Data, msg)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// handle decodes, validates and processes one message, then acknowledges it.
func (c *Consumer) handle(ctx context.Context, data []byte, msg acker) {
	metrics.MessageStarted()
	defer metrics.MessageFinished()

	var ev clean.RawDataReadyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Error("dropping undecodable message", zap.Error(err))
		metrics.ObserveMessage("unknown", "malformed")
		msg.Ack()
		return
	}
	if err := c.validate.Struct(ev); err != nil {
		c.logger.Error("dropping invalid message",
			zap.String("raw_data_id", ev.RawDataID),
			zap.Error(err),
		)
		metrics.ObserveMessage(ev.SourceType, "invalid")
		msg.Ack()
		return
	}

	logger := c.logger.With(zap.String("raw_data_id", ev.RawDataID))
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.MessageTimeout)
	defer cancel()

	outcome, retry := c.process(runCtx, logger, ev)
	metrics.ObserveMessage(ev.SourceType, outcome)
	if retry {
		msg.Nack()
		return
	}
	msg.Ack()
}

// process runs the pipeline and classifies the result. The boolean asks the
// broker to redeliver.
func (c *Consumer) process(ctx context.Context, logger *zap.Logger, ev clean.RawDataReadyEvent) (string, bool) {
	start := c.clock.Now()

	raw, err := c.rawStore.GetRawData(ctx, ev.RawDataID)
	switch {
	case errors.Is(err, clean.ErrRawDataNotFound):
		logger.Warn("raw data record missing, dropping message")
		return "not_found", false
	case err != nil:
		logger.Error("fetch raw data failed", zap.Error(err))
		return "fetch_error", true
	}

	// Idempotency: a processed record is never reprocessed.
	if raw.Status == clean.RawStatusProcessed {
		logger.Debug("raw data already processed, skipping")
		return "skipped", false
	}

	t, err := c.router.TaskFor(raw.SourceType)
	if err != nil {
		c.markFailed(ctx, logger, raw.ID, err)
		return "unsupported_source", false
	}

	res, err := task.Run(ctx, t, task.Input{Raw: raw, Event: ev}, c.clock, logger)
	switch {
	case errors.Is(err, clean.ErrPostNotFound):
		// Permanently unprocessable until the post arrives via another
		// crawl; dropped without retry.
		logger.Warn("comment target post missing, dropping message", zap.Error(err))
		return "post_not_found", false
	case err != nil:
		c.markFailed(ctx, logger, raw.ID, err)
		return "failed", false
	}

	processedAt := c.clock.Now()
	if err := c.rawStore.MarkProcessed(ctx, raw.ID, processedAt); err != nil {
		logger.Error("mark raw data processed failed", zap.Error(err))
		return "status_update_error", true
	}

	c.publishCleaned(ctx, logger, raw, res, processedAt, processedAt.Sub(start))
	return "processed", false
}

func (c *Consumer) markFailed(ctx context.Context, logger *zap.Logger, rawDataID string, cause error) {
	logger.Error("marking raw data failed", zap.Error(cause))
	// The cause may be the run context expiring; the status write must still
	// land or the record stays pending with its message already dropped.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.rawStore.MarkFailed(writeCtx, rawDataID, cause.Error(), c.clock.Now()); err != nil {
		logger.Error("mark raw data failed errored", zap.Error(err))
	}
}

// publishCleaned emits the summary event. The raw record is already flipped
// to processed; a publish failure is logged, not retried, so the status
// transition stays monotonic.
func (c *Consumer) publishCleaned(
	ctx context.Context,
	logger *zap.Logger,
	raw clean.RawDataRecord,
	res clean.TaskResult,
	processedAt time.Time,
	elapsed time.Duration,
) {
	if c.cfg.CleanedTopic == "" || c.publisher == nil {
		return
	}
	eventID, err := c.idGen.NewID()
	if err != nil {
		logger.Warn("generate event id failed", zap.Error(err))
	}
	event := clean.CleanedDataEvent{
		EventID:    eventID,
		RawDataID:  raw.ID,
		SourceType: raw.SourceType,
		ExtractedEntities: clean.ExtractedEntities{
			PostIDs:    orEmpty(res.PostIDs),
			CommentIDs: orEmpty(res.CommentIDs),
			UserIDs:    orEmpty(res.UserIDs),
		},
		Stats: clean.CleanStats{
			TotalRecords:     res.Total,
			SuccessCount:     res.Success,
			SkippedCount:     res.Skipped,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
		CreatedAt: processedAt,
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.CleanedTopic, event); err != nil {
		logger.Error("publish cleaned data event failed", zap.Error(err))
		return
	}
	metrics.ObserveOutboundEvent("cleaned-data")
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

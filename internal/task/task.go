// Package task implements the cleaning task variants and their router.
package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/metrics"
)

// Input carries everything a task variant needs for one run.
type Input struct {
	Raw   clean.RawDataRecord
	Event clean.RawDataReadyEvent
	// StartedAt is stamped by Run before the variant executes; the search
	// task's time-window continuation anchors on it.
	StartedAt time.Time
}

// Task is one cleaning variant.
type Task interface {
	Name() string
	Clean(ctx context.Context, in Input) (clean.TaskResult, error)
}

// Topics names the outbound destinations tasks publish to. An empty topic
// downgrades that emission to a log line.
type Topics struct {
	DetailCrawl string
	SearchCrawl string
}

// Deps bundles the collaborators shared by every task variant.
type Deps struct {
	Store     clean.EntityStore
	Publisher clean.Publisher
	Topics    Topics
	Clock     clean.Clock
	Logger    *zap.Logger
}

// Run executes a task with the shared lifecycle: stamp the start time, run
// the variant, record duration and result counts on success or structured
// error detail on failure. Errors always propagate after being recorded.
func Run(ctx context.Context, t Task, in Input, clock clean.Clock, logger *zap.Logger) (clean.TaskResult, error) {
	in.StartedAt = clock.Now()
	logger = logger.With(
		zap.String("task", t.Name()),
		zap.String("raw_data_id", in.Raw.ID),
	)
	logger.Info("task started")

	res, err := t.Clean(ctx, in)
	duration := clock.Now().Sub(in.StartedAt)
	if err != nil {
		metrics.ObserveTask(t.Name(), "error", duration)
		logger.Error("task failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return res, err
	}

	metrics.ObserveTask(t.Name(), "ok", duration)
	metrics.AddEntities("posts", len(res.PostIDs))
	metrics.AddEntities("comments", len(res.CommentIDs))
	metrics.AddEntities("users", len(res.UserIDs))
	logger.Info("task completed",
		zap.Duration("duration", duration),
		zap.Int("posts", len(res.PostIDs)),
		zap.Int("comments", len(res.CommentIDs)),
		zap.Int("users", len(res.UserIDs)),
		zap.Int("skipped", res.Skipped),
		zap.String("note", res.Note),
	)
	return res, nil
}

// publish sends an outbound event, or logs it when no topic is configured.
func (d Deps) publish(ctx context.Context, topic, event string, payload any) error {
	if topic == "" || d.Publisher == nil {
		d.Logger.Info("outbound event not wired to a topic, logging only",
			zap.String("event", event),
			zap.Any("payload", payload),
		)
		return nil
	}
	if _, err := d.Publisher.Publish(ctx, topic, payload); err != nil {
		return err
	}
	metrics.ObserveOutboundEvent(event)
	return nil
}

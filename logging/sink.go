package logging

import (
	"context"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/activitymap"
)

// ActivitySink writes every auth activity event as a structured log line.
// Failures are logged at warn level.
type ActivitySink struct {
	logger *Logger
	opts   []activitymap.Option
}

var _ auth.ActivitySink = (*ActivitySink)(nil)

func NewActivitySink(logger *Logger, opts ...activitymap.Option) *ActivitySink {
	if logger == nil {
		logger = Nop()
	}
	return &ActivitySink{
		logger: logger.Named("activity"),
		opts:   opts,
	}
}

func (s *ActivitySink) Record(_ context.Context, event auth.ActivityEvent) error {
	record := activitymap.Normalize(event, s.opts...)

	entry := s.logger.zl.Info()
	if record.Outcome == activitymap.OutcomeFailure {
		entry = s.logger.zl.Warn()
	}

	entry = entry.
		Str("action", record.Action).
		Str("outcome", record.Outcome).
		Str("actor_id", record.ActorID).
		Time("occurred_at", record.OccurredAt)

	if record.UserID != "" {
		entry = entry.Str("user_id", record.UserID)
	}
	if record.Reason != "" {
		entry = entry.Str("reason", record.Reason)
	}
	if len(record.Metadata) > 0 {
		entry = entry.Fields(record.Metadata)
	}

	entry.Msg(string(event.EventType))
	return nil
}

// Package activitymap flattens auth activity events into a shape that log
// and metric sinks can consume without knowing the event taxonomy.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-tokens"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown"
)

const (
	// MetadataKeyActorType stores auth.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyError is moved out of metadata into Normalized.Reason
	MetadataKeyError = "error"
)

const (
	defaultChannel = "auth"
	defaultActorID = "anonymous"
)

// Normalized is a transport agnostic activity record
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	Outcome    string         `json:"outcome"`
	UserID     string         `json:"user_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Success reports whether the action completed
func (n Normalized) Success() bool {
	return n.Outcome == OutcomeSuccess
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	redact        map[string]struct{}
	now           func() time.Time
}

// WithChannel overrides the "auth" channel
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when neither actor nor user is known
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithRedactedKeys drops metadata keys from the output, e.g. "email"
func WithRedactedKeys(keys ...string) Option {
	return func(opts *normalizeOptions) {
		for _, key := range keys {
			opts.redact[key] = struct{}{}
		}
	}
}

// WithClock sets the time used for events without OccurredAt
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Split breaks "auth.login.failure" into ("login", "failure"). Event types
// outside the auth namespace keep their full name as action.
func Split(eventType auth.ActivityEventType) (action, outcome string) {
	name := strings.TrimPrefix(string(eventType), "auth.")
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name, OutcomeUnknown
	}

	switch suffix := name[idx+1:]; suffix {
	case OutcomeSuccess, OutcomeFailure:
		return name[:idx], suffix
	default:
		return name, OutcomeUnknown
	}
}

// Normalize converts an auth.ActivityEvent into a Normalized record
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		redact:        map[string]struct{}{},
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	action, outcome := Split(event.EventType)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	out := Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Action:     action,
		Outcome:    outcome,
		UserID:     strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		OccurredAt: occurredAt.UTC(),
	}

	out.Metadata, out.Reason = normalizeMetadata(event, options.redact)
	return out
}

func normalizeMetadata(event auth.ActivityEvent, redact map[string]struct{}) (map[string]any, string) {
	var reason string
	metadata := make(map[string]any, len(event.Metadata)+1)

	for key, value := range event.Metadata {
		if _, skip := redact[key]; skip {
			continue
		}
		if key == MetadataKeyError {
			if s, ok := value.(string); ok {
				reason = s
				continue
			}
		}
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	if len(metadata) == 0 {
		return nil, reason
	}
	return metadata, reason
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

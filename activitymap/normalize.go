package activitymap

import (
	"context"
	"strings"
	"time"

	access "github.com/gcimedia/go-access"
)

const (
	// MetadataKeyActorType stores the actor type derived from access.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyRole stores the role of principal events.
	MetadataKeyRole = "role"
)

const (
	defaultChannel  = "access"
	defaultActorID  = "system"
	objectPrincipal = "principal"
	objectRole      = "role"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts an access.ActivityEvent into a generic normalized
// shape. Events about a principal use the principal as object, the rest use
// the role.
func Normalize(event access.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	objectType, objectID := objectRole, strings.TrimSpace(event.Role)
	metadata := cloneMap(event.Metadata)
	if principalID := strings.TrimSpace(event.PrincipalID); principalID != "" {
		objectType, objectID = objectPrincipal, principalID
		if event.Role != "" {
			metadata = setDefault(metadata, MetadataKeyRole, event.Role)
		}
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		metadata = setDefault(metadata, MetadataKeyActorType, actorType)
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel of normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event has none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Sink returns an access.ActivitySink that hands normalized records to fn.
func Sink(fn func(ctx context.Context, record Normalized) error, opts ...Option) access.ActivitySink {
	return access.ActivitySinkFunc(func(ctx context.Context, event access.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, Normalize(event, opts...))
	})
}

func setDefault(m map[string]any, key string, value any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	if _, exists := m[key]; !exists {
		m[key] = value
	}
	return m
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

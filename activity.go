package access

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStaffReconciled   ActivityEventType = "principal.staff.reconciled"
	ActivityEventRoleAssigned      ActivityEventType = "principal.role.assigned"
	ActivityEventRoleCreated       ActivityEventType = "role.created"
	ActivityEventRoleUpdated       ActivityEventType = "role.updated"
	ActivityEventRoleDeleted       ActivityEventType = "role.deleted"
	ActivityEventRoleStaffChanged  ActivityEventType = "role.staff.changed"
	ActivityEventPermissionsSynced ActivityEventType = "role.permissions.synced"
)

// ActorRef identifies who or what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used when no actor is supplied.
var SystemActor = ActorRef{Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	PrincipalID string
	Role        string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity fills defaults and forwards event to sink. Sink failures
// are logged and never returned.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		if actor, ok := ActorFromContext(ctx); ok {
			event.Actor = actor
		} else {
			event.Actor = SystemActor
		}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}

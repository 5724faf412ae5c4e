package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	TypeSchedule = "schedule"
	TypeManual   = "manual"
)

// Spec is the trigger part of a watch definition.
//
// Type selects the engine; Schedule is only meaningful for schedule triggers.
type Spec struct {
	Type     string `json:"type"`
	Schedule string `json:"schedule,omitempty"`
}

func (s Spec) normalized() Spec {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.Schedule = strings.TrimSpace(s.Schedule)
	return s
}

func (s Spec) String() string {
	if s.Schedule == "" {
		return s.Type
	}
	return s.Type + "(" + s.Schedule + ")"
}

// Event is produced when a trigger fires for a watch.
type Event struct {
	ID            string
	WatchID       string
	Type          string
	ScheduledTime time.Time // when the trigger was due
	TriggeredTime time.Time // clock reading when it actually fired
	Data          map[string]any
}

// Drift is how late the firing was relative to its due time.
func (e Event) Drift() time.Duration {
	if e.ScheduledTime.IsZero() || e.TriggeredTime.IsZero() {
		return 0
	}
	return e.TriggeredTime.Sub(e.ScheduledTime)
}

// NewEvent builds an event with a deterministic ID for (watch, type, scheduled time).
func NewEvent(watchID, typ string, scheduled, triggered time.Time, data map[string]any) Event {
	return Event{
		ID:            EventID(watchID, typ, scheduled),
		WatchID:       watchID,
		Type:          typ,
		ScheduledTime: scheduled,
		TriggeredTime: triggered,
		Data:          data,
	}
}

// EventID is the idempotency key of a firing.
func EventID(watchID, typ string, scheduled time.Time) string {
	data := fmt.Sprintf("%s:%s:%d", watchID, typ, scheduled.UnixNano())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:12])
}

// Listener receives fired events. It is the single seam between firing and execution.
type Listener interface {
	OnFire(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) OnFire(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Engine owns the triggers of one type.
type Engine interface {
	Type() string
	// Validate rejects malformed specs without registering anything.
	Validate(spec Spec) error
	// Add registers (or replaces) the trigger of watchID.
	Add(watchID string, spec Spec) error
	// Remove unregisters watchID; it reports whether anything was removed.
	Remove(watchID string) bool
	Start(ctx context.Context, l Listener) error
	Stop(ctx context.Context)
	Count() int
}

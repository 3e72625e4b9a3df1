// Package events publishes notifications about newly stored activities.
package events

import (
	"context"
	"time"
)

// EventTypeActivityIngested is the value of the event-type message header
const EventTypeActivityIngested = "activity.ingested"

// Sources of an ingest
const (
	SourceAuthorization = "authorization"
	SourceRefresh       = "scheduled_refresh"
)

// ActivityIngested is emitted once per activity row actually inserted
type ActivityIngested struct {
	ActivityID  int64     `json:"activity_id"`
	OwnerUserID int64     `json:"owner_user_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	StartDate   time.Time `json:"start_date"`
	Source      string    `json:"source"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	PublishActivityIngested(ctx context.Context, e ActivityIngested) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishActivityIngested(context.Context, ActivityIngested) error { return nil }
func (Nop) Close() error                                                    { return nil }

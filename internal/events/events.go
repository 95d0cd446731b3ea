// Package events announces post lifecycle changes to other processes.
//
// Events are fire-and-forget notifications. A failed publish is logged by
// the caller and never undoes the database change that triggered it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sakif/postboard/internal/model"
)

// Subjects used on the bus.
const (
	SubjectPostCreated   = "post.created"
	SubjectPostPublished = "post.published"
	SubjectPostDeleted   = "post.deleted"
)

// PostEvent is the JSON payload for every post subject. Deleted events
// carry only ID and AuthorID.
type PostEvent struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	Status     string     `json:"status,omitempty"`
	MediaType  string     `json:"media_type,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// Publisher is what the post service needs from an event bus.
type Publisher interface {
	PostCreated(ctx context.Context, post *model.Post) error
	PostPublished(ctx context.Context, post *model.Post) error
	PostDeleted(ctx context.Context, authorID, postID string) error
}

// Nop discards every event. Used when no bus is configured.
type Nop struct{}

func (Nop) PostCreated(context.Context, *model.Post) error { return nil }

func (Nop) PostPublished(context.Context, *model.Post) error { return nil }

func (Nop) PostDeleted(context.Context, string, string) error { return nil }

// NatsPublisher sends events as JSON messages over NATS core.
type NatsPublisher struct {
	nc  *nats.Conn
	now func() time.Time
}

// Connect dials url and returns a publisher owning the connection.
func Connect(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("postboard"))
	if err != nil {
		return nil, fmt.Errorf("events: connecting to NATS at %s: %w", url, err)
	}
	return NewNatsPublisher(nc), nil
}

// NewNatsPublisher wraps an existing connection.
func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc, now: time.Now}
}

func (p *NatsPublisher) PostCreated(ctx context.Context, post *model.Post) error {
	return p.publish(ctx, SubjectPostCreated, postEvent(post, p.now()))
}

func (p *NatsPublisher) PostPublished(ctx context.Context, post *model.Post) error {
	return p.publish(ctx, SubjectPostPublished, postEvent(post, p.now()))
}

func (p *NatsPublisher) PostDeleted(ctx context.Context, authorID, postID string) error {
	return p.publish(ctx, SubjectPostDeleted, PostEvent{
		ID:         postID,
		AuthorID:   authorID,
		OccurredAt: p.now().UTC(),
	})
}

// Close flushes buffered messages and closes the connection.
func (p *NatsPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

func (p *NatsPublisher) publish(ctx context.Context, subject string, ev PostEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshalling %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publishing %s: %w", subject, err)
	}
	return nil
}

func postEvent(post *model.Post, now time.Time) PostEvent {
	created := post.CreatedAt
	return PostEvent{
		ID:         post.ID,
		AuthorID:   post.UserID,
		Status:     string(post.Status),
		MediaType:  string(post.MediaType),
		OccurredAt: now.UTC(),
		CreatedAt:  &created,
	}
}

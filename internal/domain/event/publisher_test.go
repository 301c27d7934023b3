package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUserChannel(t *testing.T) {
	id := uuid.New()
	want := "events:user:" + id.String()
	if got := UserChannel(id); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPublisherWithoutRedis(t *testing.T) {
	// Event delivery is optional infrastructure; a nil client must be a
	// silent no-op, never a panic on the money path.
	p := NewPublisher(nil)
	p.Publish(context.Background(), Event{Type: TypeTaskPosted, UserID: uuid.New()})
	p.PublishAll(context.Background(), Event{Type: TypeTaskCancelled}, uuid.New(), uuid.New())

	var nilPublisher *Publisher
	nilPublisher.Publish(context.Background(), Event{Type: TypeTransaction})
}

package pubsub

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

type Publisher interface {
	// Publish topic to message broker with payload.
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PubSub is the capability the scheduler and the notification sink share.
// Plain topics carry UI events; streams carry queued jobs. The persistent
// (NATS) and in-process backends expose the identical contract.
type PubSub interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler func(payload []byte) error) (Subscription, error)

	StreamPublish(ctx context.Context, stream, subject string, payload []byte) error
	StreamConsume(ctx context.Context, stream, subject string, conc int, handler func(msg *Message) error) (Subscription, error)
}

type Message struct {
	Data []byte

	msg jetstream.Msg
}

func (m *Message) Ack() error {
	if m.msg == nil {
		return nil
	}
	return m.msg.Ack()
}

type Subscription interface {
	Unsubscribe() error
}

const (
	// JobsStream is the work queue stream; one subject per job kind so
	// each kind gets its own bounded consumer.
	JobsStream = "JOBS"

	UIEventsTopic = "ui.events"
)

// GetJobSubject returns the per-kind subject under the jobs stream, so
// each kind gets its own filtered consumer.
func GetJobSubject(kind string) string {
	return kind
}

func getStreamSub(stream, sub string) string {
	return stream + "." + sub
}

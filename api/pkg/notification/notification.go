package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/pubsub"
	"github.com/conductorhq/conductor/api/pkg/types"
)

//go:generate mockgen -source $GOFILE -destination notification_mocks.go -package $GOPACKAGE

// Notifier is the UI event sink the orchestration core emits into:
// created/updated/deleted sessions, created folders, job lifecycle.
type Notifier interface {
	Notify(ctx context.Context, event *types.Event) error
}

// PubSubNotifier publishes events as JSON on the shared UI events topic.
// The UI layer (out of scope here) subscribes on the other end.
type PubSubNotifier struct {
	publisher pubsub.Publisher
}

var _ Notifier = &PubSubNotifier{}

func New(publisher pubsub.Publisher) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher}
}

func (n *PubSubNotifier) Notify(ctx context.Context, event *types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = n.publisher.Publish(ctx, pubsub.UIEventsTopic, payload)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	log.Trace().Str("event", string(event.Type)).Msg("published UI event")
	return nil
}

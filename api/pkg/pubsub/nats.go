package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Nats struct {
	conn *nats.Conn
	js   jetstream.JetStream

	stream jetstream.Stream
}

var _ PubSub = &Nats{}

// NewInMemoryNats embeds a nats-server in-process with JetStream enabled.
// Used when no external queue endpoint is configured but persistence of
// queued jobs across restarts is still wanted.
func NewInMemoryNats(storeDir string) (*Nats, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  storeDir,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("failed to start in-memory nats server")
	}

	return connectNats(ns.ClientURL())
}

// NewNats connects to an external NATS deployment.
func NewNats(serverURL string) (*Nats, error) {
	return connectNats(serverURL)
}

func connectNats(url string) (*Nats, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:      JobsStream,
		Subjects:  []string{JobsStream + ".*"},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream stream: %w", err)
	}

	return &Nats{
		conn:   nc,
		js:     js,
		stream: stream,
	}, nil
}

func (n *Nats) Publish(_ context.Context, topic string, payload []byte) error {
	return n.conn.Publish(topic, payload)
}

func (n *Nats) Subscribe(_ context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		err := handler(msg.Data)
		if err != nil {
			log.Err(err).Str("topic", topic).Msg("error handling message")
		}
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// StreamPublish enqueues a job onto the work queue stream. Exactly one
// consumer picks it up.
func (n *Nats) StreamPublish(ctx context.Context, stream, subject string, payload []byte) error {
	_, err := n.js.Publish(ctx, getStreamSub(stream, subject), payload,
		jetstream.WithRetryWait(100*time.Millisecond),
		jetstream.WithRetryAttempts(10),
	)
	if err != nil {
		return fmt.Errorf("failed to publish message to jetstream: %w", err)
	}
	return nil
}

// StreamConsume delivers each queued message to one consumer, at most
// conc in flight at a time.
func (n *Nats) StreamConsume(ctx context.Context, stream, subject string, conc int, handler func(msg *Message) error) (Subscription, error) {
	if conc < 1 {
		conc = 1
	}

	s, err := n.js.Stream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	filter := getStreamSub(stream, subject)

	c, err := s.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		AckPolicy:      jetstream.AckExplicitPolicy,
		FilterSubjects: []string{filter},
		MaxAckPending:  conc,
		AckWait:        30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	// Consume dispatches callbacks serially from a single goroutine, so
	// handler invocations move onto their own goroutines; the semaphore
	// backpressures delivery once conc handlers are in flight. This keeps
	// pool-width semantics identical to the in-memory backend.
	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	cons, err := c.Consume(func(msg jetstream.Msg) {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			err := handler(&Message{
				Data: msg.Data(),
				msg:  msg,
			})
			if err != nil {
				log.Err(err).Str("subject", filter).Msg("error handling message")
			}
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start msg consumer: %w", err)
	}

	return &consumerWrapper{consumer: cons, wg: &wg}, nil
}

func (n *Nats) Close() {
	n.conn.Close()
}

type consumerWrapper struct {
	consumer jetstream.ConsumeContext
	wg       *sync.WaitGroup
}

// Unsubscribe stops delivery and waits for in-flight handlers to finish.
func (c *consumerWrapper) Unsubscribe() error {
	c.consumer.Stop()
	c.wg.Wait()
	return nil
}

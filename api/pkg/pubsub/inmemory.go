package pubsub

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// InMemory is the fallback backend when no persistent queue is
// configured: plain topics fan out to subscribers, stream subjects are
// FIFO queues drained by a bounded pool of workers. Queued jobs do not
// survive a restart, which is acceptable because every pending/running
// session is reset to stopped on start-up anyway.
type InMemory struct {
	mu     sync.Mutex
	subs   map[string][]*inMemorySubscription
	queues map[string]*inMemoryQueue
	closed bool
}

var _ PubSub = &InMemory{}

func NewInMemory() *InMemory {
	return &InMemory{
		subs:   make(map[string][]*inMemorySubscription),
		queues: make(map[string]*inMemoryQueue),
	}
}

func (p *InMemory) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	subs := make([]*inMemorySubscription, len(p.subs[topic]))
	copy(subs, p.subs[topic])
	p.mu.Unlock()

	for _, sub := range subs {
		if err := sub.handler(payload); err != nil {
			log.Err(err).Str("topic", topic).Msg("error handling message")
		}
	}
	return nil
}

func (p *InMemory) Subscribe(_ context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &inMemorySubscription{
		pubsub:  p,
		topic:   topic,
		handler: handler,
	}
	p.subs[topic] = append(p.subs[topic], sub)
	return sub, nil
}

func (p *InMemory) StreamPublish(_ context.Context, stream, subject string, payload []byte) error {
	q := p.queue(getStreamSub(stream, subject))
	q.enqueue(payload)
	return nil
}

func (p *InMemory) StreamConsume(_ context.Context, stream, subject string, conc int, handler func(msg *Message) error) (Subscription, error) {
	q := p.queue(getStreamSub(stream, subject))
	return q.consume(conc, handler), nil
}

func (p *InMemory) queue(key string) *inMemoryQueue {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		q = newInMemoryQueue()
		p.queues[key] = q
	}
	return q
}

type inMemorySubscription struct {
	pubsub  *InMemory
	topic   string
	handler func(payload []byte) error
}

func (s *inMemorySubscription) Unsubscribe() error {
	s.pubsub.mu.Lock()
	defer s.pubsub.mu.Unlock()

	subs := s.pubsub.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			s.pubsub.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

// inMemoryQueue is an unbounded FIFO buffer drained by worker
// goroutines. Messages enqueued before a consumer attaches are held.
type inMemoryQueue struct {
	mu      sync.Mutex
	backlog [][]byte
	notify  chan struct{}
}

func newInMemoryQueue() *inMemoryQueue {
	return &inMemoryQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *inMemoryQueue) enqueue(payload []byte) {
	q.mu.Lock()
	q.backlog = append(q.backlog, payload)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *inMemoryQueue) dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) == 0 {
		return nil, false
	}
	payload := q.backlog[0]
	q.backlog = q.backlog[1:]
	if len(q.backlog) > 0 {
		// More queued: wake another worker.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return payload, true
}

func (q *inMemoryQueue) consume(conc int, handler func(msg *Message) error) Subscription {
	if conc < 1 {
		conc = 1
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < conc; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				payload, ok := q.dequeue()
				if !ok {
					select {
					case <-stop:
						return
					case <-q.notify:
						continue
					}
				}
				if err := handler(&Message{Data: payload}); err != nil {
					log.Err(err).Msg("error handling message")
				}
			}
		}()
	}

	return &queueSubscription{stop: stop, wg: &wg}
}

type queueSubscription struct {
	stop chan struct{}
	wg   *sync.WaitGroup
	once sync.Once
}

func (s *queueSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

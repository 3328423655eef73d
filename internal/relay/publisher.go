package relay

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// Publisher is the broker surface the relay needs. Resume unblocks an
// ordering key after a failed publish.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
	Resume(orderingKey string)
	Stop()
}

type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// publisherSet keeps one publisher per topic so batching and flow control
// carry across cycles.
type publisherSet struct {
	mu      sync.Mutex
	factory func(topic string) Publisher
	byTopic map[string]Publisher
}

func newPublisherSet(factory func(topic string) Publisher) *publisherSet {
	return &publisherSet{factory: factory, byTopic: map[string]Publisher{}}
}

func (s *publisherSet) get(topic string) Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.byTopic[topic]; ok {
		return pub
	}
	pub := s.factory(topic)
	if pub != nil {
		s.byTopic[topic] = pub
	}
	return pub
}

func (s *publisherSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.byTopic {
		pub.Stop()
		delete(s.byTopic, topic)
	}
}

// brokerPublisher adapts a Pub/Sub publisher with message ordering enabled,
// so events for one aggregate arrive in the order they were recorded.
type brokerPublisher struct {
	pub *gcppubsub.Publisher
}

func newBrokerPublisher(pub *gcppubsub.Publisher) Publisher {
	if pub == nil {
		return nil
	}
	pub.EnableMessageOrdering = true
	return &brokerPublisher{pub: pub}
}

func (b *brokerPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return brokerResult{b.pub.Publish(ctx, msg)}
}

func (b *brokerPublisher) Resume(orderingKey string) {
	b.pub.ResumePublish(orderingKey)
}

func (b *brokerPublisher) Stop() {
	b.pub.Stop()
}

type brokerResult struct {
	res *gcppubsub.PublishResult
}

func (r brokerResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result missing")
	}
	return r.res.Get(ctx)
}

package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaykit/krest/internal/broker"
)

// fakeIterator is a broker.Iterator driven by a fixed slice of messages
// plus one optional error that surfaces exactly once, after every message
// has been drained — the shape every failure-then-recovery scenario needs.
type fakeIterator struct {
	mu       sync.Mutex
	messages []broker.Message
	err      error
	pos      int
	closed   bool
}

func (f *fakeIterator) HasNext(time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, broker.ErrIteratorClosed
	}
	if f.pos < len(f.messages) {
		return true, nil
	}
	if f.err != nil {
		err := f.err
		f.err = nil
		return false, err
	}
	return false, nil
}

func (f *fakeIterator) Peek(time.Duration) (broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[f.pos], nil
}

func (f *fakeIterator) Next(time.Duration) (broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[f.pos]
	f.pos++
	return m, nil
}

func (f *fakeIterator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeClient hands out one fakeIterator per topic, caching it across
// Subscribe calls the same way a real topicState only opens its iterator
// once and reuses it across reads.
type fakeClient struct {
	mu        sync.Mutex
	iterators map[string]*fakeIterator
}

func newFakeClient() *fakeClient {
	return &fakeClient{iterators: make(map[string]*fakeIterator)}
}

func (f *fakeClient) register(topic string, messages []broker.Message, err error) *fakeIterator {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := &fakeIterator{messages: messages, err: err}
	f.iterators[topic] = it
	return it
}

func (f *fakeClient) Subscribe(_ context.Context, _, topic string) (broker.Iterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.iterators[topic]
	if !ok {
		return nil, fmt.Errorf("fakeClient: no iterator registered for topic %q", topic)
	}
	return it, nil
}

func (f *fakeClient) Close() error { return nil }

func textMessage(topic string, partition int32, offset int64, value string) broker.Message {
	return broker.Message{Topic: topic, Partition: partition, Offset: offset, Value: []byte(value)}
}

package consumer

import (
	"context"
	"sync"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/format"
	"github.com/relaykit/krest/internal/offsetcommit"
)

// instance is a Consumer Instance per spec.md §3: identified by
// (group, id), owns one broker client connection, a decoder for its
// declared embedded format, and a mapping from topic name to topicState.
// At most one topic may be active at a time.
type instance struct {
	mu sync.Mutex

	group string
	id    string
	name  string

	client    broker.Client
	decoder   format.Decoder
	factory   *recordFactory
	committer offsetcommit.Committer

	overrides InstanceOverrides

	topics      map[string]*topicState
	activeTopic string

	shuttingDown bool
}

func newInstance(group, id, name string, client broker.Client, decoder format.Decoder, committer offsetcommit.Committer, overrides InstanceOverrides) *instance {
	return &instance{
		group:     group,
		id:        id,
		name:      name,
		client:    client,
		decoder:   decoder,
		factory:   newRecordFactory(decoder),
		committer: committer,
		overrides: overrides,
		topics:    make(map[string]*topicState),
	}
}

// getOrCreateTopicState returns the existing topicState for topic; if the
// instance has an active state for a different topic, fails with
// AlreadySubscribed.
func (inst *instance) getOrCreateTopicState(topic string) (*topicState, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.shuttingDown {
		return nil, NewError(ShuttingDown, nil)
	}

	if inst.activeTopic != "" && inst.activeTopic != topic {
		return nil, NewError(AlreadySubscribed, nil)
	}

	ts, ok := inst.topics[topic]
	if !ok {
		ts = newTopicState(inst.group, topic, inst.client)
		inst.topics[topic] = ts
		inst.activeTopic = topic
	}
	return ts, nil
}

// createConsumerRecord delegates to the instance's record factory, which
// is bound to its declared embedded format decoder.
func (inst *instance) createConsumerRecord(raw broker.Message) (ConsumerRecord, int, error) {
	return inst.factory.createConsumerRecord(raw)
}

// markShuttingDown flags the instance so any Read Task constructed
// afterward finishes with ShuttingDown instead of touching torn-down Topic
// State. A task that already holds a topicState is not checked against the
// flag; it sees ShuttingDown only when it next pulls from the closed
// iterator.
func (inst *instance) markShuttingDown() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.shuttingDown = true
}

func (inst *instance) isShuttingDown() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.shuttingDown
}

// snapshotOffsets takes the instance lock just long enough to read the
// active topic's name and its topicState, then copies the consumed-offset
// map under that topicState's own lock; the actual commit runs outside
// both locks, per spec.md §5's "snapshot-then-send" requirement.
func (inst *instance) snapshotOffsets() (topic string, offsets offsetcommit.Offsets, ok bool) {
	inst.mu.Lock()
	active := inst.activeTopic
	ts, exists := inst.topics[active]
	inst.mu.Unlock()

	if active == "" || !exists {
		return "", nil, false
	}
	return active, offsetcommit.Offsets(ts.consumedOffsets()), true
}

// commitOffsets snapshots the active topic's consumed offsets and hands
// them to the instance's committer, outside the instance lock.
func (inst *instance) commitOffsets(ctx context.Context) error {
	if inst.committer == nil {
		return nil
	}
	topic, offsets, ok := inst.snapshotOffsets()
	if !ok {
		return nil
	}
	return inst.committer.Commit(ctx, inst.group, topic, offsets)
}

// close tears down every topic's iterator and the instance's broker
// client connection.
func (inst *instance) close() error {
	inst.mu.Lock()
	topics := make([]*topicState, 0, len(inst.topics))
	for _, ts := range inst.topics {
		topics = append(topics, ts)
	}
	inst.mu.Unlock()

	var firstErr error
	for _, ts := range topics {
		if err := ts.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := inst.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if inst.committer != nil {
		if err := inst.committer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

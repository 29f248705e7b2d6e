package consumer

import (
	"context"
	"errors"
	"sync"

	"github.com/relaykit/krest/internal/broker"
)

// topicState is the serialized access point to one broker iterator for one
// (instance, topic) pair, per spec.md §3/4.B. The iterator is opened lazily
// on the first read; at most one Read Task may hold it at a time via
// inUse, and at most one failed task may wait in failedTask for the next
// read to inherit.
type topicState struct {
	mu sync.Mutex

	topic   string
	groupID string
	client  broker.Client

	iterator broker.Iterator
	inUse    bool
	offsets  map[int32]int64

	failedTask *readTask
}

func newTopicState(groupID, topic string, client broker.Client) *topicState {
	return &topicState{
		topic:   topic,
		groupID: groupID,
		client:  client,
		offsets: make(map[int32]int64),
	}
}

// errTopicBusy is returned by startRead when another Read Task already
// holds the in-use flag. It is not part of the public taxonomy in
// errors.go: the worker treats it as a reason to reinsert and retry the
// task later, never as a reason to finish it.
var errTopicBusy = errors.New("consumer: topic state in use by another task")

// startRead acquires the in-use flag and lazily opens the broker iterator.
// Fails with BrokerInitFailure if the underlying client rejects the
// subscription, or with errTopicBusy if another task currently holds the
// iterator — the worker should not dequeue a task whose Topic State is
// held; if it does anyway, this lets it reinsert and skip instead of
// racing the holder.
func (ts *topicState) startRead(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.inUse {
		return errTopicBusy
	}
	ts.inUse = true
	if ts.iterator != nil {
		return nil
	}

	it, err := ts.client.Subscribe(ctx, ts.groupID, ts.topic)
	if err != nil {
		ts.inUse = false
		return NewError(BrokerInitFailure, err)
	}
	ts.iterator = it
	return nil
}

// finishRead releases the in-use flag.
func (ts *topicState) finishRead() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.inUse = false
}

// clearFailedTask returns and removes the carry-over task, or reports ok
// == false if the slot was empty.
func (ts *topicState) clearFailedTask() (*readTask, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := ts.failedTask
	ts.failedTask = nil
	return t, t != nil
}

// setFailedTask stores t. Precondition: the slot was empty — callers only
// reach here from finish(err), which runs after the task's own startRead,
// so it can never race another task's setFailedTask for the same topic.
func (ts *topicState) setFailedTask(t *readTask) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failedTask = t
}

// recordOffset advances the consumed-offset ledger for partition. Called
// only from a successful finish, never speculatively.
func (ts *topicState) recordOffset(partition int32, offset int64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.offsets[partition] = offset
}

// consumedOffsets returns a snapshot of the offset map.
func (ts *topicState) consumedOffsets() map[int32]int64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make(map[int32]int64, len(ts.offsets))
	for k, v := range ts.offsets {
		out[k] = v
	}
	return out
}

// close tears down the iterator, if one was ever opened.
func (ts *topicState) close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.iterator == nil {
		return nil
	}
	return ts.iterator.Close()
}

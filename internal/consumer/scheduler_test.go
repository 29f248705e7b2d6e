package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/format"
)

func newSchedulerTestInstance(t *testing.T, topic string) (*instance, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	client.register(topic, nil, nil)
	decoder, err := format.ForName(format.Binary)
	require.NoError(t, err)
	return newInstance("g", "i1", "", client, decoder, nil, InstanceOverrides{}), client
}

// TestSubmitDropsAlreadyFinishedTaskSilently covers the AlreadySubscribed
// fast path: a task whose callback already fired at construction must
// never occupy a scheduler slot.
func TestSubmitDropsAlreadyFinishedTaskSilently(t *testing.T) {
	inst, _ := newSchedulerTestInstance(t, "a")
	cfg := DefaultProxyConfig()
	clk := clock.NewVirtual(0)
	s := newScheduler(2, clk, nil)

	// Exhaust the single-topic slot so the second task finishes immediately
	// with AlreadySubscribed.
	_ = newReadTask(context.Background(), inst, "a", 0, 0, cfg, clk, nil, func([]ConsumerRecord, error) {})
	task := newReadTask(context.Background(), inst, "b", 0, 0, cfg, clk, nil, func([]ConsumerRecord, error) {})
	require.True(t, task.done())

	s.submit(task)
	assert.Equal(t, 0, s.pendingCount())
}

// TestSchedulerDrainsMultipleTasksToZero runs several real read tasks
// (each against an empty topic, so each finishes only once its own
// request deadline elapses) through the real dispatch loop and checks the
// scheduler empties itself.
func TestSchedulerDrainsMultipleTasksToZero(t *testing.T) {
	cfg := NewProxyConfig(WithFetchMaxWaitMs(30), WithIteratorBackoffMs(5), WithIteratorTimeoutMs(1))
	clk := clock.Real()
	s := newScheduler(2, clk, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)
	defer s.stop()

	done := make(chan struct{}, 3)
	for _, topic := range []string{"a", "b", "c"} {
		inst, _ := newSchedulerTestInstance(t, topic)
		task := newReadTask(context.Background(), inst, topic, 0, 0, cfg, clk, nil, func([]ConsumerRecord, error) {
			done <- struct{}{}
		})
		s.submit(task)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("not all tasks completed")
		}
	}

	assert.Eventually(t, func() bool { return s.pendingCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestStopHaltsDispatchLoop asserts stop() causes run to return promptly
// even with no tasks pending.
func TestStopHaltsDispatchLoop(t *testing.T) {
	s := newScheduler(1, clock.Real(), nil)
	ctx := context.Background()

	runDone := make(chan struct{})
	go func() {
		s.run(ctx)
		close(runDone)
	}()

	s.stop()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("run did not return after stop")
	}
}

package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/format"
)

func runManager(t *testing.T, m *Manager) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	return func() {
		m.Stop()
		cancel()
		<-done
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := NewProxyConfig(WithFetchMaxWaitMs(50), WithIteratorBackoffMs(5), WithIteratorTimeoutMs(1))
	return NewManager(cfg, 2, clock.Real(), nil)
}

func TestCreateConsumerIDPrecedenceOverName(t *testing.T) {
	m := newTestManager(t)
	client := newFakeClient()
	id, err := m.CreateConsumer(CreateConsumerRequest{
		Group:  "g",
		ID:     "explicit-id",
		Name:   "friendly-name",
		Format: format.Binary,
		Client: client,
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit-id", id)

	inst, ok := m.lookup("g", "explicit-id")
	require.True(t, ok)
	assert.Equal(t, "friendly-name", inst.name)
}

func TestCreateConsumerDuplicateNameFails(t *testing.T) {
	m := newTestManager(t)
	client1 := newFakeClient()
	client2 := newFakeClient()

	_, err := m.CreateConsumer(CreateConsumerRequest{Group: "g", Name: "dup", Format: format.Binary, Client: client1})
	require.NoError(t, err)

	_, err = m.CreateConsumer(CreateConsumerRequest{Group: "g", Name: "dup", Format: format.Binary, Client: client2})
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, AlreadyExists, ce.Kind)
}

func TestCreateConsumerDuplicateIDFails(t *testing.T) {
	m := newTestManager(t)
	client := newFakeClient()

	_, err := m.CreateConsumer(CreateConsumerRequest{Group: "g", ID: "same", Format: format.Binary, Client: client})
	require.NoError(t, err)

	_, err = m.CreateConsumer(CreateConsumerRequest{Group: "g", ID: "same", Format: format.Binary, Client: client})
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, AlreadyExists, ce.Kind)
}

func TestCreateConsumerUnsupportedFormatIsInvalidArgument(t *testing.T) {
	m := newTestManager(t)
	client := newFakeClient()

	_, err := m.CreateConsumer(CreateConsumerRequest{Group: "g", ID: "c1", Format: format.Name("protobuf"), Client: client})
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, InvalidArgument, ce.Kind)
	assert.ErrorIs(t, err, format.ErrUnsupportedFormat)
}

func TestReadTopicNotFoundFiresSynchronously(t *testing.T) {
	m := newTestManager(t)

	var (
		mu      sync.Mutex
		called  bool
		gotErr  error
	)
	m.ReadTopic(context.Background(), "g", "missing", "orders", 0, 0, func(records []ConsumerRecord, err error) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		gotErr = err
	})

	mu.Lock()
	defer mu.Unlock()
	require.True(t, called)
	ce, ok := AsError(gotErr)
	require.True(t, ok)
	assert.Equal(t, NotFound, ce.Kind)
	assert.Equal(t, 0, m.scheduler.pendingCount())
}

func TestReadTopicRunsToCompletionThroughRealScheduler(t *testing.T) {
	m := newTestManager(t)
	stop := runManager(t, m)
	defer stop()

	client := newFakeClient()
	client.register("orders", []broker.Message{
		textMessage("orders", 0, 0, "a"),
		textMessage("orders", 1, 0, "b"),
	}, nil)

	id, err := m.CreateConsumer(CreateConsumerRequest{Group: "g", ID: "c1", Format: format.Binary, Client: client})
	require.NoError(t, err)

	resultCh := make(chan struct {
		records []ConsumerRecord
		err     error
	}, 1)
	m.ReadTopic(context.Background(), "g", id, "orders", 0, 0, func(records []ConsumerRecord, err error) {
		resultCh <- struct {
			records []ConsumerRecord
			err     error
		}{records, err}
	})

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Len(t, res.records, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("read task never completed")
	}

	assert.Eventually(t, func() bool { return m.scheduler.pendingCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCommitOffsetsNotFound(t *testing.T) {
	m := newTestManager(t)
	done := make(chan error, 1)
	m.CommitOffsets(context.Background(), "g", "missing", func(err error) { done <- err })

	err := <-done
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, NotFound, ce.Kind)
}

func TestDeleteConsumerNotFound(t *testing.T) {
	m := newTestManager(t)
	err := m.DeleteConsumer("g", "missing")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, NotFound, ce.Kind)
}

func TestDeleteConsumerTornDownInstanceRejectsFurtherReads(t *testing.T) {
	m := newTestManager(t)
	client := newFakeClient()
	client.register("orders", nil, nil)

	id, err := m.CreateConsumer(CreateConsumerRequest{Group: "g", ID: "c1", Format: format.Binary, Client: client})
	require.NoError(t, err)

	require.NoError(t, m.DeleteConsumer("g", id))

	_, ok := m.lookup("g", id)
	assert.False(t, ok)

	called := make(chan error, 1)
	m.ReadTopic(context.Background(), "g", id, "orders", 0, 0, func(records []ConsumerRecord, err error) {
		called <- err
	})
	err = <-called
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, NotFound, ce.Kind)
}

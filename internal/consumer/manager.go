package consumer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/format"
	"github.com/relaykit/krest/internal/offsetcommit"
)

// CreateConsumerRequest is what a caller supplies to register an instance.
// ID takes precedence over Name for backward compatibility, per spec.md
// 4.F; if both are empty an ID is generated.
type CreateConsumerRequest struct {
	Group     string
	ID        string
	Name      string
	Format    format.Name
	Client    broker.Client
	Committer offsetcommit.Committer
	Overrides InstanceOverrides
}

// Manager is the Manager Facade of spec.md 4.F: the instance registry
// that dispatches read/commit/delete and enforces the single-topic-per-
// instance rule at submission rather than inside the task.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*instance
	names     map[string]string

	config    ProxyConfig
	clk       clock.Clock
	logger    *zap.Logger
	scheduler *scheduler
}

// NewManager builds a Manager with its own worker pool of the given size.
func NewManager(config ProxyConfig, workers int, clk clock.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		instances: make(map[string]*instance),
		names:     make(map[string]string),
		config:    config,
		clk:       clk,
		logger:    logger.Named("consumer.manager"),
		scheduler: newScheduler(workers, clk, logger),
	}
	return m
}

// Run drives the Manager's scheduler until ctx is cancelled or Stop is
// called. Callers typically run this in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	m.scheduler.run(ctx)
}

// Stop halts the scheduler's dispatch loop. A step already handed to a
// worker still runs to its end; nothing is dequeued afterward, so a task
// that step did not finish stays queued and its callback does not fire.
func (m *Manager) Stop() {
	m.scheduler.stop()
}

func instanceKey(group, id string) string {
	return group + "/" + id
}

func nameKey(group, name string) string {
	return group + "/" + name
}

// CreateConsumer registers an instance, returning its id. A caller-
// supplied ID takes precedence over a caller-supplied name; a duplicate
// name for the group fails with AlreadyExists. An unrecognized Format is
// the caller's mistake, not the server's, so it is reported as
// InvalidArgument rather than format.ForName's bare error.
func (m *Manager) CreateConsumer(req CreateConsumerRequest) (string, error) {
	decoder, err := format.ForName(req.Format)
	if err != nil {
		return "", NewError(InvalidArgument, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := req.ID
	if id == "" {
		if req.Name != "" {
			id = req.Name
		} else {
			id = generateTaskID()
		}
	}

	if req.Name != "" {
		nk := nameKey(req.Group, req.Name)
		if existing, ok := m.names[nk]; ok && existing != id {
			return "", NewError(AlreadyExists, nil)
		}
	}

	ik := instanceKey(req.Group, id)
	if _, exists := m.instances[ik]; exists {
		return "", NewError(AlreadyExists, nil)
	}

	inst := newInstance(req.Group, id, req.Name, req.Client, decoder, req.Committer, req.Overrides)
	m.instances[ik] = inst
	if req.Name != "" {
		m.names[nameKey(req.Group, req.Name)] = id
	}
	return id, nil
}

func (m *Manager) lookup(group, id string) (*instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceKey(group, id)]
	return inst, ok
}

// ReadTopic constructs and submits a Read Task for (group, id, topic). If
// the instance is missing, cb fires synchronously with NotFound and
// ReadTopic returns without touching the scheduler. requestMaxBytes and
// requestTimeoutMs are per-request overrides; 0 means "use the instance's
// or global default."
func (m *Manager) ReadTopic(ctx context.Context, group, id, topic string, requestMaxBytes, requestTimeoutMs int64, cb Callback) {
	inst, ok := m.lookup(group, id)
	if !ok {
		cb(nil, NewError(NotFound, nil))
		return
	}

	task := newReadTask(ctx, inst, topic, requestMaxBytes, requestTimeoutMs, m.config, m.clk, m.logger, cb)
	m.scheduler.submit(task)
}

// CommitOffsets snapshots the instance's consumed offsets under its own
// lock and sends them to its committer outside that lock, firing cb with
// the result.
func (m *Manager) CommitOffsets(ctx context.Context, group, id string, cb func(error)) {
	inst, ok := m.lookup(group, id)
	if !ok {
		cb(NewError(NotFound, nil))
		return
	}
	cb(inst.commitOffsets(ctx))
}

// DeleteConsumer tears down an instance. Any in-flight Read Task observes
// ShuttingDown the next time it touches the torn-down Topic State's
// iterator rather than referencing state that no longer exists.
func (m *Manager) DeleteConsumer(group, id string) error {
	m.mu.Lock()
	inst, ok := m.instances[instanceKey(group, id)]
	if !ok {
		m.mu.Unlock()
		return NewError(NotFound, nil)
	}
	delete(m.instances, instanceKey(group, id))
	if inst.name != "" {
		delete(m.names, nameKey(group, inst.name))
	}
	m.mu.Unlock()

	inst.markShuttingDown()
	if err := inst.close(); err != nil {
		return fmt.Errorf("consumer: close instance %s/%s: %w", group, id, err)
	}
	return nil
}

package consumer

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/clock"
)

// Callback is the completion contract: exactly one invocation, records
// non-nil and possibly empty iff err is nil.
type Callback func(records []ConsumerRecord, err error)

// readTask is one HTTP read's state machine and stop logic — the subject
// of this package. It is mutated only by the worker currently advancing
// it; everything else about it (messages, offsets) is borrowed or
// transferred, never shared live.
type readTask struct {
	id  string
	ctx context.Context

	inst       *instance
	topic      string
	topicState *topicState
	clk        clock.Clock
	logger     *zap.Logger
	callback   Callback

	messages                   []ConsumerRecord
	bytesConsumed              int64
	exceededMinResponseBytes   bool
	willExceedMaxResponseBytes bool

	started        int64
	waitExpiration int64
	finished       bool
	bound          bool

	maxResponseBytes  int64
	requestTimeoutMs  int64
	responseMinBytes  int64
	iteratorBackoffMs int64
	iteratorTimeoutMs int64
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// newReadTask performs the construction steps of spec.md 4.D: resolving
// maxResponseBytes/requestTimeoutMs/responseMinBytes from config and
// per-instance overrides, binding the task's started time, resolving the
// topic's topicState, and inheriting any failed task's buffer.
// requestMaxBytes/requestTimeoutMs are this call's per-request overrides
// (0 means "none supplied"); requestTimeoutMs, if positive, replaces both
// the instance override and the global default, and may exceed them. A
// per-request byte cap, by contrast, can only narrow maxResponseBytes: it
// is bounded by both RequestMaxBytes and ResponseMaxBytes. messages starts
// as a non-nil empty slice so every finish path — including one that never
// reaches the bind-success branch, such as a busy-timeout — upholds the
// err == nil iff records != nil invariant. If resolving the topicState
// fails, the task finishes immediately — without ever acquiring an
// iterator — and its callback has already fired by the time this returns.
func newReadTask(ctx context.Context, inst *instance, topic string, requestMaxBytes int64, requestTimeoutMs int64, global ProxyConfig, clk clock.Clock, logger *zap.Logger, callback Callback) *readTask {
	effectiveRequestMax := requestMaxBytes
	if effectiveRequestMax <= 0 || effectiveRequestMax > global.RequestMaxBytes {
		effectiveRequestMax = global.RequestMaxBytes
	}

	responseMinBytes := inst.overrides.effectiveFetchMinBytes(global)
	if responseMinBytes < 0 {
		responseMinBytes = math.MaxInt64
	}

	effectiveRequestTimeoutMs := inst.overrides.effectiveFetchMaxWaitMs(global)
	if requestTimeoutMs > 0 {
		effectiveRequestTimeoutMs = requestTimeoutMs
	}

	t := &readTask{
		id:                generateTaskID(),
		ctx:               ctx,
		inst:              inst,
		topic:             topic,
		clk:               clk,
		logger:            logger,
		callback:          callback,
		messages:          make([]ConsumerRecord, 0),
		started:           clk.NowMs(),
		maxResponseBytes:  minInt64(effectiveRequestMax, global.ResponseMaxBytes),
		requestTimeoutMs:  effectiveRequestTimeoutMs,
		responseMinBytes:  responseMinBytes,
		iteratorBackoffMs: global.IteratorBackoffMs,
		iteratorTimeoutMs: global.IteratorTimeoutMs,
	}

	ts, err := inst.getOrCreateTopicState(topic)
	if err != nil {
		t.finish(err)
		return t
	}
	t.topicState = ts

	if prev, ok := ts.clearFailedTask(); ok {
		t.messages = prev.messages
		t.bytesConsumed = prev.bytesConsumed
		t.exceededMinResponseBytes = prev.exceededMinResponseBytes
		t.willExceedMaxResponseBytes = prev.willExceedMaxResponseBytes
	}

	return t
}

func (t *readTask) done() bool {
	return t.finished
}

// doPartialRead is one cooperative step. It returns backoff, an advisory
// telling the scheduler this task just hit the broker's iterator timeout
// and its waitExpiration (already reflecting iteratorBackoffMs) should be
// honored rather than rescheduling immediately.
func (t *readTask) doPartialRead() (backoff bool) {
	if t.finished {
		return false
	}

	iterationStart := t.clk.NowMs()

	if !t.bound {
		if err := t.topicState.startRead(t.ctx); err != nil {
			if err == errTopicBusy {
				t.waitExpiration = minInt64(iterationStart+t.iteratorBackoffMs, t.started+t.requestTimeoutMs)
				if t.clk.NowMs()-t.started >= t.requestTimeoutMs {
					t.finish(nil)
				}
				return true
			}
			t.finish(err)
			return false
		}
		t.waitExpiration = 0
		t.bound = true
	}

	backoff, err := t.pullAvailable()
	if err != nil {
		if err == broker.ErrIteratorClosed {
			t.finish(NewError(ShuttingDown, nil))
		} else {
			t.finish(NewError(BrokerIOFailure, err))
		}
		return false
	}

	backoffExpiration := iterationStart + t.iteratorBackoffMs
	requestExpiration := t.started + t.requestTimeoutMs
	t.waitExpiration = minInt64(backoffExpiration, requestExpiration)

	now := t.clk.NowMs()
	requestTimedOut := now-t.started >= t.requestTimeoutMs
	if requestTimedOut || t.willExceedMaxResponseBytes || t.exceededMinResponseBytes {
		t.finish(nil)
	}

	return backoff
}

// pullAvailable runs the inner pull loop, bounded by the broker's own
// short iterator timeout. A peeked message is only advanced past once it
// is known to fit under maxResponseBytes — size accounting happens before
// advancing, so a rejected message is never lost to an offset the client
// was never shown.
func (t *readTask) pullAvailable() (backoff bool, err error) {
	pollTimeout := time.Duration(t.iteratorTimeoutMs) * time.Millisecond

	for {
		has, err := t.topicState.iterator.HasNext(pollTimeout)
		if err != nil {
			if err == broker.ErrIteratorTimeout {
				return true, nil
			}
			return false, err
		}
		if !has {
			return true, nil
		}

		raw, err := t.topicState.iterator.Peek(pollTimeout)
		if err != nil {
			if err == broker.ErrIteratorTimeout {
				return true, nil
			}
			return false, err
		}

		record, size, err := t.inst.createConsumerRecord(raw)
		if err != nil {
			return false, err
		}

		if t.bytesConsumed+int64(size) >= t.maxResponseBytes {
			t.willExceedMaxResponseBytes = true
			return false, nil
		}

		if _, err := t.topicState.iterator.Next(pollTimeout); err != nil {
			if err == broker.ErrIteratorTimeout {
				return true, nil
			}
			return false, err
		}
		t.messages = append(t.messages, record)
		t.bytesConsumed += int64(size)

		if t.bytesConsumed > t.responseMinBytes {
			t.exceededMinResponseBytes = true
			return false, nil
		}
	}
}

// finish is the terminal transition: records offsets on success, deposits
// the task in the failed-task slot on error if it holds messages, releases
// the topicState's in-use flag, and invokes the callback exactly once. Any
// panic from the callback is recovered and logged — it must not unwind
// into the worker.
func (t *readTask) finish(err error) {
	if err == nil {
		for _, m := range t.messages {
			t.topicState.recordOffset(m.Partition, m.Offset)
		}
	} else if len(t.messages) > 0 {
		t.topicState.setFailedTask(t)
	}

	if t.bound {
		t.topicState.finishRead()
	}

	t.invokeCallback(err)
	t.finished = true
}

func (t *readTask) invokeCallback(err error) {
	defer func() {
		if r := recover(); r != nil {
			if t.logger != nil {
				t.logger.Error("read task callback panicked", zap.Any("recovered", r), zap.String("task", t.id))
			}
		}
	}()

	if err != nil {
		t.callback(nil, err)
		return
	}
	t.callback(t.messages, nil)
}

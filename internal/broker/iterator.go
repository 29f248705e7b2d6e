package broker

import (
	"errors"
	"sync"
	"time"
)

// ErrIteratorTimeout is returned by Next/Peek when no message arrives
// within the caller's poll budget. It is a distinct outcome of the pull
// step, never an exception — callers treat it the same as "no record
// available right now" and decide what to do next.
var ErrIteratorTimeout = errors.New("broker: iterator timeout")

// ErrIteratorClosed is returned once the iterator's backing subscription
// has been torn down.
var ErrIteratorClosed = errors.New("broker: iterator closed")

// Iterator is the upstream pull contract the read task drives: peek without
// consuming, consume what was peeked, and report timeout as a value rather
// than a panic or blocking forever.
type Iterator interface {
	// HasNext reports whether a message is currently buffered, waiting up
	// to timeout for one to arrive if none is buffered yet.
	HasNext(timeout time.Duration) (bool, error)
	// Peek returns the next message without advancing past it. Calling
	// Peek twice without an intervening Next returns the same message.
	Peek(timeout time.Duration) (Message, error)
	// Next returns the next message and advances past it.
	Next(timeout time.Duration) (Message, error)
	// Close releases the iterator's backing subscription.
	Close() error
}

// channelIterator implements Iterator over a channel fed by a backend-
// specific poller (a Kinesis shard poller or a sarama ConsumerGroupHandler).
// Both backends only ever write to this channel; they never touch the
// fields a Read Task reads through the Iterator interface, which preserves
// the "iterator exclusively held by its advancing Read Task" invariant.
type channelIterator struct {
	messages <-chan Message
	errs     <-chan error
	done     <-chan struct{}
	closeFn  func() error

	mu     sync.Mutex
	peeked *Message
	closed bool
}

// newChannelIterator wraps messages/errs/done channels a backend poller
// feeds. closeFn is invoked exactly once by Close to tear down the poller.
func newChannelIterator(messages <-chan Message, errs <-chan error, done <-chan struct{}, closeFn func() error) *channelIterator {
	return &channelIterator{
		messages: messages,
		errs:     errs,
		done:     done,
		closeFn:  closeFn,
	}
}

func (it *channelIterator) HasNext(timeout time.Duration) (bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.peeked != nil {
		return true, nil
	}
	msg, err := it.fill(timeout)
	if err != nil {
		if errors.Is(err, ErrIteratorTimeout) {
			return false, nil
		}
		return false, err
	}
	it.peeked = &msg
	return true, nil
}

func (it *channelIterator) Peek(timeout time.Duration) (Message, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.peeked != nil {
		return *it.peeked, nil
	}
	msg, err := it.fill(timeout)
	if err != nil {
		return Message{}, err
	}
	it.peeked = &msg
	return msg, nil
}

func (it *channelIterator) Next(timeout time.Duration) (Message, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.peeked != nil {
		msg := *it.peeked
		it.peeked = nil
		return msg, nil
	}
	return it.fill(timeout)
}

// fill blocks the caller's budget waiting for a message, an upstream error,
// or backend shutdown. When more than one is ready at once, select picks
// among them at random; there is no priority order. Must be called with mu
// held.
func (it *channelIterator) fill(timeout time.Duration) (Message, error) {
	if it.closed {
		return Message{}, ErrIteratorClosed
	}
	select {
	case msg := <-it.messages:
		return msg, nil
	case err := <-it.errs:
		return Message{}, err
	case <-it.done:
		return Message{}, ErrIteratorClosed
	case <-time.After(timeout):
		return Message{}, ErrIteratorTimeout
	}
}

func (it *channelIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return nil
	}
	it.closed = true
	if it.closeFn != nil {
		return it.closeFn()
	}
	return nil
}

package broker

import "context"

// Client is a message bus backend capable of opening an Iterator over a
// topic's shards/partitions for a given consumer group. Consumer State
// holds one Client per proxy process; Topic State opens one Iterator per
// subscribed topic through it.
type Client interface {
	// Subscribe opens an iterator that yields messages for topic across all
	// of its shards/partitions, committing consumption under groupID.
	Subscribe(ctx context.Context, groupID, topic string) (Iterator, error)
	// Close releases any backend-wide resources (admin clients, producer
	// connections) the Client holds outside of individual iterators.
	Close() error
}

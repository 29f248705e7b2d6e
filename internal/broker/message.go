// Package broker abstracts the upstream message bus (Kinesis or Kafka)
// behind one Client/Iterator pair so the consumer read task engine can pull
// records without knowing which backend is underneath it.
package broker

import "time"

// Message is a single record pulled from the upstream backend, already
// normalized away from the Kinesis/Kafka wire shapes.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

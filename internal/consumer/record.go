package consumer

import (
	"time"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/format"
)

// ConsumerRecord is the client-facing shape of one message, decoded per the
// instance's embedded format.
type ConsumerRecord struct {
	Partition int32
	Offset    int64
	Key       any
	Value     any
	Timestamp time.Time
}

// recordFactory turns a raw broker.Message into a ConsumerRecord plus its
// rough size, per the instance's declared embedded format. Keys and values
// are summed; framing overhead is omitted, which only ever makes the
// estimate undershoot, never overshoot by more than the decoder's own
// re-encoding slack (bounded to one record per spec.md's accounting rule).
type recordFactory struct {
	decoder format.Decoder
}

func newRecordFactory(decoder format.Decoder) *recordFactory {
	return &recordFactory{decoder: decoder}
}

func (f *recordFactory) createConsumerRecord(raw broker.Message) (ConsumerRecord, int, error) {
	value, valueSize, err := f.decoder.Decode(raw.Value)
	if err != nil {
		return ConsumerRecord{}, 0, err
	}

	var key any
	keySize := 0
	if len(raw.Key) > 0 {
		key, keySize, err = f.decoder.Decode(raw.Key)
		if err != nil {
			return ConsumerRecord{}, 0, err
		}
	}

	record := ConsumerRecord{
		Partition: raw.Partition,
		Offset:    raw.Offset,
		Key:       key,
		Value:     value,
		Timestamp: raw.Timestamp,
	}
	return record, keySize + valueSize, nil
}

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"go.uber.org/zap"
)

// KinesisClient is a Client backed by AWS Kinesis. One poller goroutine per
// shard feeds a shared, bounded channel that the topic's channelIterator
// drains; GetRecords empty responses become ErrIteratorTimeout further up
// the stack rather than being retried here.
type KinesisClient struct {
	api        kinesisAPI
	pollPeriod time.Duration
	logger     *zap.Logger
}

// NewKinesisClient wraps api (a full *kinesis.Client satisfies kinesisAPI)
// with the polling cadence pollers use between GetRecords calls.
func NewKinesisClient(api kinesisAPI, pollPeriod time.Duration, logger *zap.Logger) *KinesisClient {
	if pollPeriod <= 0 {
		pollPeriod = 200 * time.Millisecond
	}
	return &KinesisClient{api: api, pollPeriod: pollPeriod, logger: logger.Named("broker.kinesis")}
}

func (c *KinesisClient) Subscribe(ctx context.Context, groupID, topic string) (Iterator, error) {
	shards, err := c.api.ListShards(ctx, &kinesis.ListShardsInput{StreamName: &topic})
	if err != nil {
		return nil, fmt.Errorf("broker: list shards for %q: %w", topic, err)
	}

	messages := make(chan Message, 256)
	errs := make(chan error, len(shards.Shards))
	done := make(chan struct{})

	for _, shard := range shards.Shards {
		shardID := *shard.ShardId
		it, err := c.api.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
			StreamName:        &topic,
			ShardId:           &shardID,
			ShardIteratorType: types.ShardIteratorTypeLatest,
		})
		if err != nil {
			return nil, fmt.Errorf("broker: get shard iterator for %q/%s: %w", topic, shardID, err)
		}
		go c.pollShard(ctx, topic, shardID, *it.ShardIterator, messages, errs, done)
	}

	closeFn := func() error {
		close(done)
		return nil
	}
	return newChannelIterator(messages, errs, done, closeFn), nil
}

func (c *KinesisClient) pollShard(ctx context.Context, topic, shardID, startIterator string, messages chan<- Message, errs chan<- error, done <-chan struct{}) {
	logger := c.logger.With(zap.String("topic", topic), zap.String("shard", shardID))
	shardIterator := startIterator
	ticker := time.NewTicker(c.pollPeriod)
	defer ticker.Stop()

	// ordinal is this shard's own running position, monotonic across every
	// poll tick — unlike the batch-local index into out.Records, which
	// resets to 0 on every GetRecords call and would make consumedOffsets
	// go backwards across reads.
	var ordinal int64

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if shardIterator == "" {
			logger.Info("shard closed, stopping poller")
			return
		}

		out, err := c.api.GetRecords(ctx, &kinesis.GetRecordsInput{ShardIterator: &shardIterator, Limit: aws32(500)})
		if err != nil {
			select {
			case errs <- fmt.Errorf("broker: get records for %q/%s: %w", topic, shardID, err):
			case <-done:
			}
			return
		}

		for _, rec := range out.Records {
			msg := Message{
				Topic:     topic,
				Partition: partitionFromShardID(shardID),
				Offset:    ordinal,
				Key:       []byte(derefStr(rec.PartitionKey)),
				Value:     rec.Data,
				Timestamp: derefTime(rec.ApproximateArrivalTimestamp),
			}
			ordinal++
			select {
			case messages <- msg:
			case <-done:
				return
			}
		}

		if out.NextShardIterator == nil {
			shardIterator = ""
		} else {
			shardIterator = *out.NextShardIterator
		}
	}
}

func (c *KinesisClient) Close() error { return nil }

func aws32(v int32) *int32 { return &v }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// partitionFromShardID maps a Kinesis shard ID to a stable int32 so
// Message.Partition can be compared the same way across backends; Kinesis
// has no native integer partition index, so this is a deterministic hash
// of the shard ID rather than a value Kinesis itself assigns.
func partitionFromShardID(shardID string) int32 {
	var h int32
	for _, r := range shardID {
		h = h*31 + int32(r)
	}
	if h < 0 {
		h = -h
	}
	return h
}

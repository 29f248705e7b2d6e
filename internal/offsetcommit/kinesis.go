package offsetcommit

import (
	"context"
	"fmt"
	"strconv"
)

// KinesisCheckpointer persists each partition's consumed offset through a
// KVS (for the Kinesis backend that offset is the shard's running record
// ordinal assigned by the poller, not a Kinesis sequence number), using
// the same Put/Get shape the teacher's manager_service.go checkpoint
// handler uses against its etcd-backed store — narrowed to an interface
// so the default is in-memory and an etcd-backed KVS can be substituted
// without this type knowing the difference.
type KinesisCheckpointer struct {
	kvs KVS
}

// NewKinesisCheckpointer builds a Committer over kvs. A nil kvs uses the
// in-memory default.
func NewKinesisCheckpointer(kvs KVS) *KinesisCheckpointer {
	if kvs == nil {
		kvs = NewMemoryKVS()
	}
	return &KinesisCheckpointer{kvs: kvs}
}

func (c *KinesisCheckpointer) Commit(ctx context.Context, group, topic string, offsets Offsets) error {
	for partition, offset := range offsets {
		key := checkpointKey(group, topic, partition)
		if err := c.kvs.Put(ctx, key, strconv.FormatInt(offset, 10)); err != nil {
			return fmt.Errorf("offsetcommit: put checkpoint %s: %w", key, err)
		}
	}
	return nil
}

func (c *KinesisCheckpointer) Close() error { return nil }

func checkpointKey(group, topic string, partition int32) string {
	return fmt.Sprintf("/checkpoint/%s/%s/%d", group, topic, partition)
}

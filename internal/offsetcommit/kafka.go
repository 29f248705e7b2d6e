package offsetcommit

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
)

// KafkaOffsetManager wraps sarama.OffsetManager, caching one
// PartitionOffsetManager per (topic, partition) the same way sarama
// itself expects callers to, and marking offsets through it instead of
// issuing raw OffsetCommit requests.
type KafkaOffsetManager struct {
	mgr sarama.OffsetManager

	mu   sync.Mutex
	poms map[string]sarama.PartitionOffsetManager
}

// NewKafkaOffsetManager builds a Committer from a sarama.Client and
// consumer group already in use for reads.
func NewKafkaOffsetManager(client sarama.Client, group string) (*KafkaOffsetManager, error) {
	mgr, err := sarama.NewOffsetManagerFromClient(group, client)
	if err != nil {
		return nil, fmt.Errorf("offsetcommit: new offset manager for group %q: %w", group, err)
	}
	return &KafkaOffsetManager{mgr: mgr, poms: make(map[string]sarama.PartitionOffsetManager)}, nil
}

// Commit ignores group: the underlying sarama.OffsetManager is already
// bound to one consumer group at construction.
func (k *KafkaOffsetManager) Commit(_ context.Context, _ string, topic string, offsets Offsets) error {
	for partition, offset := range offsets {
		pom, err := k.partitionOffsetManager(topic, partition)
		if err != nil {
			return err
		}
		// sarama marks the offset of the NEXT message to consume.
		pom.MarkOffset(offset+1, "")
	}
	return nil
}

func (k *KafkaOffsetManager) partitionOffsetManager(topic string, partition int32) (sarama.PartitionOffsetManager, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := fmt.Sprintf("%s/%d", topic, partition)
	if pom, ok := k.poms[key]; ok {
		return pom, nil
	}
	pom, err := k.mgr.ManagePartition(topic, partition)
	if err != nil {
		return nil, fmt.Errorf("offsetcommit: manage partition %s: %w", key, err)
	}
	k.poms[key] = pom
	return pom, nil
}

func (k *KafkaOffsetManager) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, pom := range k.poms {
		_ = pom.Close()
	}
	return k.mgr.Close()
}

// Package offsetcommit is the offset-commit transport collaborator
// spec.md §1 names as out of scope for the read task engine itself:
// Manager.commitOffsets snapshots consumed offsets under the instance
// lock and hands them to a Committer outside that lock, per spec.md §5.
package offsetcommit

import "context"

// Offsets is a snapshot of one topic's per-partition consumed offsets,
// the shape topicState.consumedOffsets() returns.
type Offsets map[int32]int64

// Committer persists a consumer group's consumed offsets to whatever
// transport the backend uses for that purpose.
type Committer interface {
	Commit(ctx context.Context, group, topic string, offsets Offsets) error
	Close() error
}

package store

import (
	"sync"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// offsetTable is a durable per-queue consume-offset table, adapted from the
// teacher exercise's Consumer offset bookkeeping (subscribe/seek/commit
// against a map guarded by a single RWMutex) but repurposed here to back
// ReadConsumeOffset/WriteConsumeOffset for both the HALF and OP topics
// instead of tracking a business consumer group's read position.
type offsetTable struct {
	mu      sync.RWMutex
	offsets map[common.TopicPartition]common.Offset
}

func newOffsetTable() *offsetTable {
	return &offsetTable{offsets: make(map[common.TopicPartition]common.Offset)}
}

// read returns the stored offset for queue, defaulting to 0 for a queue
// that has never been written to (a fresh queue starts at the beginning).
func (t *offsetTable) read(queue common.TopicPartition) common.Offset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offsets[queue]
}

// write persists a new offset for queue.
func (t *offsetTable) write(queue common.TopicPartition, offset common.Offset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offsets[queue] = offset
}

package store

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// opQueueShards is the shard count for the opQueueMap memoization table.
// Entries are never invalidated (spec.md §9), so a fixed, small shard count
// trades a little hash-collision contention for zero rebalancing logic.
const opQueueShards = 16

// opQueueMap memoizes half-queue -> op-queue pairing for the process
// lifetime. It is sharded by a blake2b hash of the half queue's identity so
// that concurrent scans across independent queues (spec.md §5: "no
// per-queue parallelism in the core" today, but dispatch is async and may
// one day scan queues concurrently) don't serialize on one mutex.
type opQueueMap struct {
	shards [opQueueShards]struct {
		mu sync.RWMutex
		m  map[common.TopicPartition]common.TopicPartition
	}
}

func newOpQueueMap() *opQueueMap {
	oqm := &opQueueMap{}
	for i := range oqm.shards {
		oqm.shards[i].m = make(map[common.TopicPartition]common.TopicPartition)
	}
	return oqm
}

func (oqm *opQueueMap) shardFor(half common.TopicPartition) *struct {
	mu sync.RWMutex
	m  map[common.TopicPartition]common.TopicPartition
} {
	key := []byte(fmt.Sprintf("%s-%d", half.Topic, half.Partition))
	sum := blake2b.Sum256(key)
	idx := int(sum[0]) % opQueueShards
	return &oqm.shards[idx]
}

// get returns the memoized op queue for half, and whether it was present.
func (oqm *opQueueMap) get(half common.TopicPartition) (common.TopicPartition, bool) {
	shard := oqm.shardFor(half)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	op, ok := shard.m[half]
	return op, ok
}

// put stores the derived op queue for half. The derivation is pure (same
// broker, same queue id, OP topic instead of HALF), so concurrent writers
// racing to populate the same key is harmless last-writer-wins (spec.md §5).
func (oqm *opQueueMap) put(half, op common.TopicPartition) {
	shard := oqm.shardFor(half)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.m[half] = op
}

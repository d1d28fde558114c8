package common

import (
	"errors"
	"sync"
	"time"
)

// ErrPartitionNotFound is returned when a partition has never been
// delivered to.
var ErrPartitionNotFound = errors.New("partition not found")

// DestinationLogEntry is one committed message as delivered to its real
// topic. Unlike the HALF/OP logs the check engine reconciles, a
// destination log only ever holds messages that already cleared
// CheckEngine.CommitMessage — there is nothing here for a consumer to
// filter by transaction state.
type DestinationLogEntry struct {
	Message   *Message
	Timestamp time.Time
	Offset    Offset
}

// DestinationLog is the in-memory stand-in for the real topic a committed
// transactional message is delivered to once the check engine resolves its
// half message (spec.md §1 keeps that delivery transport out of scope).
type DestinationLog struct {
	partitions map[TopicPartition][]*DestinationLogEntry
	offsets    map[TopicPartition]Offset
	mu         sync.RWMutex
}

// NewDestinationLog creates an empty destination log.
func NewDestinationLog() *DestinationLog {
	return &DestinationLog{
		partitions: make(map[TopicPartition][]*DestinationLogEntry),
		offsets:    make(map[TopicPartition]Offset),
	}
}

// Append delivers msg to its topic/partition, only ever called once a
// transaction has actually committed.
func (l *DestinationLog) Append(topic Topic, partition Partition, msg *Message) (Offset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tp := TopicPartition{Topic: topic, Partition: partition}
	offset := l.offsets[tp]
	l.partitions[tp] = append(l.partitions[tp], &DestinationLogEntry{
		Message:   msg,
		Timestamp: time.Now(),
		Offset:    offset,
	})
	l.offsets[tp] = offset + 1
	return offset, nil
}

// GetMessages returns up to maxMessages committed messages from the given
// partition, starting at offset.
func (l *DestinationLog) GetMessages(topic Topic, partition Partition, offset Offset, maxMessages int) ([]*DestinationLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tp := TopicPartition{Topic: topic, Partition: partition}
	entries, exists := l.partitions[tp]
	if !exists {
		return nil, ErrPartitionNotFound
	}

	if offset >= Offset(len(entries)) {
		return []*DestinationLogEntry{}, nil
	}

	end := int(offset) + maxMessages
	if end > len(entries) {
		end = len(entries)
	}

	result := make([]*DestinationLogEntry, end-int(offset))
	copy(result, entries[offset:end])
	return result, nil
}

// GetLatestOffset returns the next offset to be assigned for a partition.
func (l *DestinationLog) GetLatestOffset(topic Topic, partition Partition) (Offset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tp := TopicPartition{Topic: topic, Partition: partition}
	offset, exists := l.offsets[tp]
	if !exists {
		return 0, ErrPartitionNotFound
	}
	return offset, nil
}

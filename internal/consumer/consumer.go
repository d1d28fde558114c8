package consumer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// Consumer reads committed messages from a destination log. Unlike the
// teacher exercise's consumer, it no longer needs to track transaction
// markers or pending-by-transaction state: Coordinator only ever delivers
// a message to the destination log after CheckEngine.CommitMessage has
// resolved its half (spec.md §1, §4.D), so everything here is already
// visible.
type Consumer struct {
	groupID    string
	dest       *common.DestinationLog
	offsets    map[common.TopicPartition]common.Offset
	offsetsMux sync.RWMutex
}

// NewConsumer creates a new transactional consumer reading from dest.
func NewConsumer(groupID string, dest *common.DestinationLog) *Consumer {
	return &Consumer{
		groupID: groupID,
		dest:    dest,
		offsets: make(map[common.TopicPartition]common.Offset),
	}
}

// Subscribe sets the consumer to read from the specified topic and partition
func (c *Consumer) Subscribe(topic common.Topic, partition common.Partition) error {
	tp := common.TopicPartition{Topic: topic, Partition: partition}
	c.offsetsMux.Lock()
	defer c.offsetsMux.Unlock()

	if _, exists := c.offsets[tp]; !exists {
		c.offsets[tp] = 0
	}

	return nil
}

// Poll fetches messages from the subscribed partitions
func (c *Consumer) Poll(maxMessages int) ([]*common.Message, error) {
	c.offsetsMux.Lock()
	defer c.offsetsMux.Unlock()

	var messages []*common.Message

	for tp, offset := range c.offsets {
		entries, err := c.dest.GetMessages(tp.Topic, tp.Partition, offset, maxMessages-len(messages))
		if err != nil {
			if errors.Is(err, common.ErrPartitionNotFound) {
				continue
			}
			return nil, fmt.Errorf("error fetching messages from %s: %w", tp, err)
		}
		if len(entries) == 0 {
			continue
		}

		for _, entry := range entries {
			messages = append(messages, entry.Message)
		}
		c.offsets[tp] = entries[len(entries)-1].Offset + 1

		if len(messages) >= maxMessages {
			break
		}
	}

	return messages, nil
}

// CommitOffsets commits the current offsets for all subscribed partitions
func (c *Consumer) CommitOffsets() (map[common.TopicPartition]common.Offset, error) {
	c.offsetsMux.RLock()
	defer c.offsetsMux.RUnlock()

	offsets := make(map[common.TopicPartition]common.Offset, len(c.offsets))
	for tp, offset := range c.offsets {
		offsets[tp] = offset
	}

	return offsets, nil
}

// Seek sets the offset for a specific partition
func (c *Consumer) Seek(topic common.Topic, partition common.Partition, offset common.Offset) error {
	tp := common.TopicPartition{Topic: topic, Partition: partition}

	latestOffset, err := c.dest.GetLatestOffset(topic, partition)
	if err != nil {
		return fmt.Errorf("failed to get latest offset: %w", err)
	}

	if offset < 0 || offset > latestOffset {
		return fmt.Errorf("offset %d is out of range [0, %d]", offset, latestOffset)
	}

	c.offsetsMux.Lock()
	defer c.offsetsMux.Unlock()

	c.offsets[tp] = offset
	return nil
}

// GetCommittedOffset returns the current committed offset for a partition
func (c *Consumer) GetCommittedOffset(topic common.Topic, partition common.Partition) (common.Offset, error) {
	tp := common.TopicPartition{Topic: topic, Partition: partition}

	c.offsetsMux.RLock()
	defer c.offsetsMux.RUnlock()

	offset, exists := c.offsets[tp]
	if !exists {
		return 0, errors.New("partition not subscribed")
	}

	return offset, nil
}

// Close releases any resources used by the consumer
func (c *Consumer) Close() error {
	return nil
}

package producer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/coordinator"
)

// Package-level error variables
var (
	ErrTransactionInProgress = errors.New("transaction already in progress")
	ErrNoActiveTransaction   = errors.New("no active transaction")
	ErrPartitionAddFailed    = errors.New("failed to add partition to transaction")
)

// Producer is the thin client spec.md §1 assumes sits in front of the
// check engine: it holds nothing but the current transaction handle and
// forwards every prepare/commit/rollback call straight to Coordinator,
// which is what actually drives CheckEngine's HALF/OP lifecycle.
type Producer struct {
	producerID   string
	coordinator  *coordinator.Coordinator
	currentTx    *common.Transaction
	currentTxMux sync.Mutex
}

// NewProducer creates a new transactional producer whose prepare/commit/
// rollback calls are all routed through coord.
func NewProducer(producerID string, coord *coordinator.Coordinator) *Producer {
	return &Producer{
		producerID:  producerID,
		coordinator: coord,
	}
}

// BeginTransaction starts a new transaction
func (p *Producer) BeginTransaction(timeout time.Duration) error {
	p.currentTxMux.Lock()
	defer p.currentTxMux.Unlock()

	if p.currentTx != nil {
		return ErrTransactionInProgress
	}

	tx, err := p.coordinator.BeginTransaction(p.producerID, timeout)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	p.currentTx = tx
	return nil
}

// Send prepares a half message within the current transaction via
// Coordinator.PrepareMessage: it is appended to the check engine's HALF
// log but stays invisible to consumers until CommitTransaction resolves
// it.
func (p *Producer) Send(ctx context.Context, topic common.Topic, partition common.Partition, key, value []byte) (common.Offset, error) {
	p.currentTxMux.Lock()
	defer p.currentTxMux.Unlock()

	if p.currentTx == nil {
		return 0, ErrNoActiveTransaction
	}

	tp := common.TopicPartition{Topic: topic, Partition: partition}
	if !slices.Contains(p.currentTx.Partitions, tp) {
		if _, err := p.coordinator.AddPartitionsToTransaction(p.currentTx.ID, []common.TopicPartition{tp}); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrPartitionAddFailed, err)
		}
	}

	offset, err := p.coordinator.PrepareMessage(ctx, p.currentTx.ID, topic, partition, key, value)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// CommitTransaction commits the current transaction: Coordinator resolves
// every prepared half message via CheckEngine.CommitMessage and delivers
// each committed body to the destination log for consumers to see.
func (p *Producer) CommitTransaction(ctx context.Context) error {
	p.currentTxMux.Lock()
	defer p.currentTxMux.Unlock()

	if p.currentTx == nil {
		return errors.New("no transaction in progress")
	}

	tx, err := p.coordinator.PrepareTransaction(p.currentTx.ID)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction: %w", err)
	}

	if _, err := p.coordinator.CommitTransaction(ctx, tx.ID); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.currentTx = nil
	return nil
}

// AbortTransaction aborts the current transaction: Coordinator resolves
// every prepared half message via CheckEngine.RollbackMessage, discarding
// their bodies rather than delivering them.
func (p *Producer) AbortTransaction(ctx context.Context) error {
	p.currentTxMux.Lock()
	defer p.currentTxMux.Unlock()

	if p.currentTx == nil {
		return errors.New("no transaction in progress")
	}

	if _, err := p.coordinator.AbortTransaction(ctx, p.currentTx.ID); err != nil {
		return fmt.Errorf("failed to abort transaction: %w", err)
	}

	p.currentTx = nil
	return nil
}

// CurrentTransaction returns the current transaction or nil if none is in progress
func (p *Producer) CurrentTransaction() *common.Transaction {
	p.currentTxMux.Lock()
	defer p.currentTxMux.Unlock()
	return p.currentTx
}

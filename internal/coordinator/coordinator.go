package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kumarlokesh/halfcheck/internal/checkengine"
	"github.com/kumarlokesh/halfcheck/internal/common"
)

var (
	// ErrTransactionNotFound is returned when a transaction is not found
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidTransactionState is returned for invalid state transitions
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	// ErrTransactionAlreadyExists is returned when creating a duplicate transaction
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
	// ErrInvalidTimeout is returned for invalid timeout values
	ErrInvalidTimeout = errors.New("invalid timeout value")
	// ErrNoPartitions is returned when no partitions are provided
	ErrNoPartitions = errors.New("no partitions provided")
	// ErrPrepareFailed is returned when CheckEngine.PrepareMessage rejects a half.
	ErrPrepareFailed = errors.New("failed to prepare half message")
	// ErrResolveFailed is returned when CheckEngine.CommitMessage/RollbackMessage
	// fails to resolve a pending half.
	ErrResolveFailed = errors.New("failed to resolve half message")
)

// pendingHalf tracks one message prepared within a transaction: its half
// message sits in CheckEngine's HALF log, invisible until the transaction
// resolves, at which point CommitTransaction delivers its body to dest.
type pendingHalf struct {
	topic           common.Topic
	partition       common.Partition
	key, value      []byte
	commitLogOffset int64
}

// Coordinator manages the lifecycle of transactions. Unlike a plain
// in-memory transaction log, it drives every prepare/commit/rollback
// through CheckEngine (spec.md §4.D): PrepareMessage appends a half
// message to the HALF log, and CommitTransaction/AbortTransaction resolve
// every half prepared under a transaction via CommitMessage/
// RollbackMessage before the transaction itself is marked settled.
type Coordinator struct {
	engine *checkengine.CheckEngine
	dest   *common.DestinationLog

	mu           sync.Mutex
	transactions map[common.TransactionID]*common.Transaction
	pending      map[common.TransactionID][]pendingHalf
}

// NewCoordinator creates a transaction coordinator that prepares and
// resolves half messages through engine, delivering committed bodies to
// dest.
func NewCoordinator(engine *checkengine.CheckEngine, dest *common.DestinationLog) *Coordinator {
	return &Coordinator{
		engine:       engine,
		dest:         dest,
		transactions: make(map[common.TransactionID]*common.Transaction),
		pending:      make(map[common.TransactionID][]pendingHalf),
	}
}

// BeginTransaction starts a new transaction
func (c *Coordinator) BeginTransaction(producerID string, timeout time.Duration) (*common.Transaction, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	txID := common.TransactionID(fmt.Sprintf("tx-%d", time.Now().UnixNano()))
	tx := common.NewTransaction(txID, producerID, timeout)

	// Check for duplicate transaction ID (should be extremely rare with
	// nanosecond-timestamp IDs)
	if _, exists := c.transactions[tx.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTransactionAlreadyExists, tx.ID)
	}

	c.transactions[tx.ID] = tx
	c.pending[tx.ID] = nil
	return tx, nil
}

// AddPartitionsToTransaction adds partitions to a transaction
func (c *Coordinator) AddPartitionsToTransaction(txID common.TransactionID, partitions []common.TopicPartition) ([]common.TopicPartition, error) {
	if len(partitions) == 0 {
		return nil, ErrNoPartitions
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, exists := c.transactions[txID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}

	if tx.State != common.TransactionStateBegin {
		return nil, fmt.Errorf("%w: cannot add partitions to transaction in state %s",
			ErrInvalidTransactionState, tx.State)
	}

	// Track newly added partitions
	var added []common.TopicPartition

	// Add each partition to the transaction if not already present
	for _, p := range partitions {
		// Check if partition already exists
		found := false
		for _, existing := range tx.Partitions {
			if existing == p {
				found = true
				break
			}
		}
		if !found {
			tx.AddPartition(p.Topic, p.Partition)
			added = append(added, p)
		}
	}

	// Return only the newly added partitions
	return added, nil
}

// PrepareMessage appends value to engine's HALF log on behalf of txID,
// tracking it as pending until the transaction commits or aborts (spec.md
// §4.D, "prepareMessage"). The half stays invisible to consumers until
// CommitTransaction resolves it.
func (c *Coordinator) PrepareMessage(ctx context.Context, txID common.TransactionID, topic common.Topic, partition common.Partition, key, value []byte) (common.Offset, error) {
	c.mu.Lock()
	tx, exists := c.transactions[txID]
	c.mu.Unlock()
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}

	putResult, err := c.engine.PrepareMessage(ctx, partition, value, map[string]string{"PRODUCER_GROUP": tx.ProducerID})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPrepareFailed, err)
	}

	c.mu.Lock()
	c.pending[txID] = append(c.pending[txID], pendingHalf{
		topic:           topic,
		partition:       partition,
		key:             key,
		value:           value,
		commitLogOffset: putResult.CommitLogOffset,
	})
	c.mu.Unlock()

	return putResult.QueueOffset, nil
}

// PrepareTransaction prepares a transaction for commit
func (c *Coordinator) PrepareTransaction(txID common.TransactionID) (*common.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, exists := c.transactions[txID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}

	if tx.State != common.TransactionStateBegin {
		return nil, fmt.Errorf("%w: cannot prepare transaction in state %s",
			ErrInvalidTransactionState, tx.State)
	}

	tx.UpdateState(common.TransactionStatePrepared)
	return tx, nil
}

// CommitTransaction resolves every half message prepared under txID via
// CheckEngine.CommitMessage, delivering each committed body to dest, then
// marks the transaction committed (spec.md §4.D, "commitMessage").
func (c *Coordinator) CommitTransaction(ctx context.Context, txID common.TransactionID) (*common.Transaction, error) {
	c.mu.Lock()
	tx, exists := c.transactions[txID]
	if !exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	if tx.State != common.TransactionStatePrepared {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot commit transaction in state %s",
			ErrInvalidTransactionState, tx.State)
	}
	halves := c.pending[txID]
	c.mu.Unlock()

	for _, held := range halves {
		header := common.TransactionHeader{CommitLogOffset: held.commitLogOffset, ProducerGroup: tx.ProducerID}
		res, err := c.engine.CommitMessage(ctx, header)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolveFailed, err)
		}
		if res.Status != common.OperationSuccess {
			return nil, fmt.Errorf("%w: commit log offset %d", ErrResolveFailed, held.commitLogOffset)
		}

		msg := &common.Message{Key: held.key, Value: held.value, Topic: held.topic, Partition: held.partition}
		if _, err := c.dest.Append(held.topic, held.partition, msg); err != nil {
			return nil, fmt.Errorf("failed to deliver committed message: %w", err)
		}
	}

	c.mu.Lock()
	tx.UpdateState(common.TransactionStateCommitted)
	delete(c.pending, txID)
	c.mu.Unlock()

	return tx, nil
}

// AbortTransaction resolves every half message prepared under txID via
// CheckEngine.RollbackMessage, discarding their bodies rather than
// delivering them, then marks the transaction aborted (spec.md §4.D,
// "rollbackMessage").
func (c *Coordinator) AbortTransaction(ctx context.Context, txID common.TransactionID) (*common.Transaction, error) {
	c.mu.Lock()
	tx, exists := c.transactions[txID]
	if !exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	// Allow aborting in any state except already completed states
	if tx.State == common.TransactionStateCommitted || tx.State == common.TransactionStateAborted {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot abort transaction in state %s",
			ErrInvalidTransactionState, tx.State)
	}
	halves := c.pending[txID]
	c.mu.Unlock()

	for _, held := range halves {
		header := common.TransactionHeader{CommitLogOffset: held.commitLogOffset, ProducerGroup: tx.ProducerID}
		res, err := c.engine.RollbackMessage(ctx, header)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolveFailed, err)
		}
		if res.Status != common.OperationSuccess {
			return nil, fmt.Errorf("%w: commit log offset %d", ErrResolveFailed, held.commitLogOffset)
		}
	}

	c.mu.Lock()
	tx.UpdateState(common.TransactionStateAborted)
	delete(c.pending, txID)
	c.mu.Unlock()

	return tx, nil
}

// GetTransaction returns a transaction by ID
func (c *Coordinator) GetTransaction(txID common.TransactionID) (*common.Transaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: empty transaction ID", ErrTransactionNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, exists := c.transactions[txID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}

	// Check if transaction has expired
	if tx.IsExpired() {
		// Clean up the expired transaction
		delete(c.transactions, txID)
		delete(c.pending, txID)
		return nil, fmt.Errorf("%w: transaction %s has expired", ErrTransactionNotFound, txID)
	}

	return tx, nil
}

// CleanupExpiredTransactions removes transactions that have timed out
func (c *Coordinator) CleanupExpiredTransactions() []common.TransactionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []common.TransactionID
	now := time.Now()

	for id, tx := range c.transactions {
		if tx.State != common.TransactionStateCommitted &&
			tx.State != common.TransactionStateAborted &&
			now.Sub(tx.StartTimestamp) > tx.Timeout {
			tx.UpdateState(common.TransactionStateAborted)
			expired = append(expired, id)
			delete(c.pending, id)
		}
	}

	return expired
}

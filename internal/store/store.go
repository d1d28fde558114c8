// Package store adapts the underlying log-structured message store that
// the check engine treats as an external collaborator (spec.md §1, §4.A).
package store

import (
	"context"
	"errors"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// ErrQueueNotFound names the "queue has never been appended to" condition.
// Memory does not return it: it reports such queues with PullNoMatchedMsg.
var ErrQueueNotFound = errors.New("store: queue not found")

// Bridge is the StoreBridge contract of spec.md §4.A. Everything here is,
// per spec.md §1, backed by a log store the engine does not own; Memory
// below is the in-repo stand-in used for tests and the demo daemon.
type Bridge interface {
	// PullHalf pulls up to n half messages from queue starting at offset.
	PullHalf(ctx context.Context, queue common.TopicPartition, offset common.Offset, n int) (common.PullResult[*common.HalfMessage], error)

	// PullOp pulls up to n op messages from queue starting at offset.
	PullOp(ctx context.Context, queue common.TopicPartition, offset common.Offset, n int) (common.PullResult[*common.OpMessage], error)

	// AppendHalf appends (or re-appends) a half message to its queue.
	AppendHalf(ctx context.Context, msg *common.HalfMessage) (common.PutResult, error)

	// AppendOp writes a tombstone for half against its paired op queue.
	AppendOp(ctx context.Context, half *common.HalfMessage, tag string) (bool, error)

	// ReadConsumeOffset returns the durable consume offset for queue.
	ReadConsumeOffset(ctx context.Context, queue common.TopicPartition) (common.Offset, error)

	// WriteConsumeOffset persists a new consume offset for queue.
	WriteConsumeOffset(ctx context.Context, queue common.TopicPartition, offset common.Offset) error

	// LookupByCommitLogOffset resolves a half message by its physical
	// commit-log position, used by commitMessage/rollbackMessage.
	LookupByCommitLogOffset(ctx context.Context, commitLogOffset int64) (*common.HalfMessage, bool, error)

	// RenewHalf copies msg with a fresh MsgID and cleared transient fields,
	// ready for re-append (spec.md §4.A).
	RenewHalf(msg *common.HalfMessage) *common.HalfMessage

	// RenewImmunityHalf is RenewHalf plus stamping PreparedQueueOffset at
	// msg's own current offset (spec.md §4.A, §9).
	RenewImmunityHalf(msg *common.HalfMessage) *common.HalfMessage

	// OpQueueFor returns the op queue paired with a half queue, memoizing
	// the pairing for the process lifetime (spec.md §3, opQueueMap).
	OpQueueFor(half common.TopicPartition) common.TopicPartition

	// HalfQueues enumerates every physical half queue currently known to
	// the HALF topic.
	HalfQueues(ctx context.Context) ([]common.TopicPartition, error)

	// FileReservedHours is the store's file-retention window. The scanner's
	// skip/expiry screening (spec.md §4.C step 4) reads
	// ScannerConfig.FileReservedHours, not this method.
	FileReservedHours() int
}

package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// Memory is an in-process stand-in for the log-structured store spec.md §1
// keeps out of scope. Its shape is grown from the teacher exercise's
// MessageLog (internal/common/message_log.go): partition-keyed slices
// behind a mutex, generalized into two parallel logs (HALF, OP) per queue
// plus the durable consume-offset tables spec.md §3 requires. It exists so
// the engine, its tests, and the demo daemon have something concrete to
// pull from; it is not meant to be the production store.
type Memory struct {
	mu    sync.RWMutex
	half  map[common.TopicPartition][]*common.HalfMessage
	op    map[common.TopicPartition][]*common.OpMessage
	order []common.TopicPartition // insertion order of half queues, for HalfQueues

	byCommitLogOffset map[int64]*common.HalfMessage

	halfOffsets *offsetTable
	opOffsets   *offsetTable
	opQueues    *opQueueMap

	nextCommitLogOffset int64 // atomic

	fileReservedHours int
}

// NewMemory constructs an empty in-memory store. fileReservedHours mirrors
// the broker's file-retention window (spec.md §6), default 72 per spec.md §3.
func NewMemory(fileReservedHours int) *Memory {
	if fileReservedHours <= 0 {
		fileReservedHours = 72
	}
	return &Memory{
		half:              make(map[common.TopicPartition][]*common.HalfMessage),
		op:                make(map[common.TopicPartition][]*common.OpMessage),
		byCommitLogOffset: make(map[int64]*common.HalfMessage),
		halfOffsets:       newOffsetTable(),
		opOffsets:         newOffsetTable(),
		opQueues:          newOpQueueMap(),
		fileReservedHours: fileReservedHours,
	}
}

func (m *Memory) FileReservedHours() int { return m.fileReservedHours }

func (m *Memory) OpQueueFor(half common.TopicPartition) common.TopicPartition {
	if op, ok := m.opQueues.get(half); ok {
		return op
	}
	op := common.TopicPartition{Topic: common.OpTopic, Partition: half.Partition}
	m.opQueues.put(half, op)
	return op
}

func (m *Memory) HalfQueues(_ context.Context) ([]common.TopicPartition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	queues := make([]common.TopicPartition, len(m.order))
	copy(queues, m.order)
	return queues, nil
}

func (m *Memory) PullHalf(_ context.Context, queue common.TopicPartition, offset common.Offset, n int) (common.PullResult[*common.HalfMessage], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, exists := m.half[queue]
	if !exists {
		return common.PullResult[*common.HalfMessage]{Status: common.PullNoMatchedMsg, NextBeginOffset: 0}, nil
	}
	result, err := pullSlice(entries, offset, n, func(e *common.HalfMessage) common.Offset { return e.QueueOffset })
	if err != nil || result.Status != common.PullFound {
		return result, err
	}
	// Decode into copies: the stored entries keep their wire-compressed
	// body so repeated pulls re-exercise the same codec path.
	decoded := make([]*common.HalfMessage, len(result.Messages))
	for i, msg := range result.Messages {
		body, derr := decodeBody(msg.Body)
		if derr != nil {
			return common.PullResult[*common.HalfMessage]{}, fmt.Errorf("decode half message %d: %w", msg.QueueOffset, derr)
		}
		copyMsg := *msg
		copyMsg.Body = body
		decoded[i] = &copyMsg
	}
	result.Messages = decoded
	return result, nil
}

func (m *Memory) PullOp(_ context.Context, queue common.TopicPartition, offset common.Offset, n int) (common.PullResult[*common.OpMessage], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, exists := m.op[queue]
	if !exists {
		return common.PullResult[*common.OpMessage]{Status: common.PullNoMatchedMsg, NextBeginOffset: 0}, nil
	}
	return pullSlice(entries, offset, n, func(e *common.OpMessage) common.Offset { return e.QueueOffset })
}

// pullSlice implements the FOUND/NO_NEW_MSG/OFFSET_ILLEGAL status
// vocabulary of spec.md §4.A against an append-only, offset-indexed slice.
func pullSlice[T any](entries []T, offset common.Offset, n int, offsetOf func(T) common.Offset) (common.PullResult[T], error) {
	if len(entries) == 0 {
		return common.PullResult[T]{Status: common.PullNoNewMsg, NextBeginOffset: offset}, nil
	}

	first, last := offsetOf(entries[0]), offsetOf(entries[len(entries)-1])
	if offset < first {
		// The requested offset predates everything we retain: illegal,
		// forward the caller to the oldest offset we still have.
		return common.PullResult[T]{Status: common.PullOffsetIllegal, NextBeginOffset: first}, nil
	}
	if offset > last {
		// Caller has consumed everything available so far; nothing new yet.
		return common.PullResult[T]{Status: common.PullNoNewMsg, NextBeginOffset: offset}, nil
	}

	start := int(offset - first)
	end := start + n
	if end > len(entries) {
		end = len(entries)
	}

	out := make([]T, end-start)
	copy(out, entries[start:end])
	return common.PullResult[T]{Status: common.PullFound, Messages: out, NextBeginOffset: offsetOf(entries[end-1]) + 1}, nil
}

func (m *Memory) AppendHalf(_ context.Context, msg *common.HalfMessage) (common.PutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := msg.Queue()
	entries, exists := m.half[queue]
	if !exists {
		m.order = append(m.order, queue)
	}

	msg.QueueOffset = common.Offset(len(entries))
	msg.CommitLogOffset = atomic.AddInt64(&m.nextCommitLogOffset, 1)
	msg.StoreTimestamp = time.Now()
	if msg.MsgID == "" {
		msg.MsgID = uuid.NewString()
	}
	// Round-trip the body through the wire codec the way a real store
	// would, to exercise the same path pull will decode from. Only the
	// stored copy carries the encoded body; the caller's msg keeps its own.
	stored := *msg
	stored.Body = encodeBody(msg.Body)

	m.half[queue] = append(entries, &stored)
	m.byCommitLogOffset[stored.CommitLogOffset] = &stored

	log.Debug().
		Str("queue", queue.String()).
		Int64("queue_offset", int64(msg.QueueOffset)).
		Int64("commit_log_offset", msg.CommitLogOffset).
		Msg("appended half message")

	return common.PutResult{
		Success:         true,
		QueueOffset:     msg.QueueOffset,
		CommitLogOffset: msg.CommitLogOffset,
		MsgID:           msg.MsgID,
	}, nil
}

func (m *Memory) AppendOp(_ context.Context, half *common.HalfMessage, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opQueue := m.OpQueueFor(half.Queue())
	entries := m.op[opQueue]

	// Op bodies are tiny ASCII decimals (spec.md §6); stored uncompressed
	// since ResolvedHalfOffset parses them directly and snappy would cost
	// more than it saves at this size.
	body := []byte(strconv.FormatInt(int64(half.QueueOffset), 10))
	entry := &common.OpMessage{
		QueueOffset:   common.Offset(len(entries)),
		Tag:           tag,
		Body:          body,
		BornTimestamp: time.Now(),
	}

	m.op[opQueue] = append(entries, entry)

	log.Debug().
		Str("op_queue", opQueue.String()).
		Int64("half_offset", int64(half.QueueOffset)).
		Str("tag", tag).
		Msg("appended op record")

	return true, nil
}

func (m *Memory) ReadConsumeOffset(_ context.Context, queue common.TopicPartition) (common.Offset, error) {
	return m.halfOrOpOffsets(queue).read(queue), nil
}

func (m *Memory) WriteConsumeOffset(_ context.Context, queue common.TopicPartition, offset common.Offset) error {
	m.halfOrOpOffsets(queue).write(queue, offset)
	return nil
}

func (m *Memory) halfOrOpOffsets(queue common.TopicPartition) *offsetTable {
	if queue.Topic == common.OpTopic {
		return m.opOffsets
	}
	return m.halfOffsets
}

func (m *Memory) LookupByCommitLogOffset(_ context.Context, commitLogOffset int64) (*common.HalfMessage, bool, error) {
	m.mu.RLock()
	msg, ok := m.byCommitLogOffset[commitLogOffset]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	body, err := decodeBody(msg.Body)
	if err != nil {
		return nil, false, fmt.Errorf("decode half message %d: %w", msg.QueueOffset, err)
	}
	copyMsg := *msg
	copyMsg.Body = body
	return &copyMsg, true, nil
}

func (m *Memory) RenewHalf(msg *common.HalfMessage) *common.HalfMessage {
	clone := cloneHalf(msg)
	clone.MsgID = uuid.NewString()
	clone.QueueOffset = 0
	clone.CommitLogOffset = 0
	clone.StoreTimestamp = time.Time{}
	return clone
}

func (m *Memory) RenewImmunityHalf(msg *common.HalfMessage) *common.HalfMessage {
	clone := m.RenewHalf(msg)
	clone.SetPreparedQueueOffset(msg.QueueOffset)
	return clone
}

func cloneHalf(msg *common.HalfMessage) *common.HalfMessage {
	props := make(map[string]string, len(msg.Properties))
	for k, v := range msg.Properties {
		props[k] = v
	}
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	return &common.HalfMessage{
		Topic:         msg.Topic,
		QueueID:       msg.QueueID,
		Body:          body,
		BornTimestamp: msg.BornTimestamp,
		Properties:    props,
	}
}

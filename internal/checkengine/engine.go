package checkengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/config"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/metrics"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

// CheckEngine is the top-level periodic driver of spec.md §4.D: it
// enumerates half queues, runs OpIndex and HalfScanner against each, and
// exposes the producer-facing prepare/commit/rollback operations that feed
// the HALF and OP logs the scanner reconciles.
type CheckEngine struct {
	bridge   store.Bridge
	listener dispatch.Listener
	metrics  *metrics.Collectors
	cfg      config.EngineConfig
}

// New constructs a CheckEngine over bridge, dispatching unresolved halves
// through listener.
func New(bridge store.Bridge, listener dispatch.Listener, collectors *metrics.Collectors, cfg config.EngineConfig) *CheckEngine {
	return &CheckEngine{bridge: bridge, listener: listener, metrics: collectors, cfg: cfg}
}

func (e *CheckEngine) scannerConfig() ScannerConfig {
	return ScannerConfig{
		TransactionTimeout:  e.cfg.TransactionTimeout,
		TransactionCheckMax: e.cfg.TransactionCheckMax,
		FileReservedHours:   e.cfg.FileReservedHours,
		PerQueueBudget:      e.cfg.PerQueueBudget,
		OpBatchSize:         e.cfg.OpBatchSize,
		EmptyPullRetryLimit: e.cfg.EmptyPullRetryLimit,
		Metrics:             e.metrics,
	}
}

// Check runs one full tick: every half queue gets scanned once. A failure
// scanning one queue is logged and counted, never aborts the remaining
// queues (spec.md §4.D, §7).
func (e *CheckEngine) Check(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}
	}()

	queues, err := e.bridge.HalfQueues(ctx)
	if err != nil {
		return fmt.Errorf("enumerate half queues: %w", err)
	}

	for _, half := range queues {
		if err := e.checkQueue(ctx, half); err != nil {
			if e.metrics != nil {
				e.metrics.ScanErrors.Inc()
			}
			log.Error().Err(err).Str("half_queue", half.String()).Msg("half queue scan failed, will retry next tick")
			continue
		}
		if e.metrics != nil {
			e.metrics.QueuesScanned.Inc()
		}
	}
	return nil
}

func (e *CheckEngine) checkQueue(ctx context.Context, half common.TopicPartition) error {
	op := e.bridge.OpQueueFor(half)

	h0, err := e.bridge.ReadConsumeOffset(ctx, half)
	if err != nil {
		return fmt.Errorf("read half consume offset: %w", err)
	}
	o0, err := e.bridge.ReadConsumeOffset(ctx, op)
	if err != nil {
		return fmt.Errorf("read op consume offset: %w", err)
	}

	res, err := ScanQueue(ctx, e.bridge, e.listener, half, op, h0, o0, e.scannerConfig())
	if err != nil {
		return err
	}

	if res.NewHalfOffset != h0 {
		if err := e.bridge.WriteConsumeOffset(ctx, half, res.NewHalfOffset); err != nil {
			return fmt.Errorf("persist half consume offset: %w", err)
		}
	}
	if res.NewOpOffset != o0 {
		if err := e.bridge.WriteConsumeOffset(ctx, op, res.NewOpOffset); err != nil {
			return fmt.Errorf("persist op consume offset: %w", err)
		}
	}

	if e.metrics != nil {
		e.metrics.HalfOffsetLag.WithLabelValues(half.String()).Set(float64(res.NewHalfOffset))
		e.metrics.OpOffsetLag.WithLabelValues(op.String()).Set(float64(res.NewOpOffset))
	}

	log.Debug().
		Str("half_queue", half.String()).
		Int64("half_offset", int64(res.NewHalfOffset)).
		Int64("op_offset", int64(res.NewOpOffset)).
		Msg("scan tick complete")

	return nil
}

// PrepareMessage stores a half message on behalf of a producer beginning a
// two-phase commit, stamping a fresh MsgID and the born timestamp (spec.md
// §4.D, "prepareMessage").
func (e *CheckEngine) PrepareMessage(ctx context.Context, partition common.Partition, body []byte, properties map[string]string) (common.PutResult, error) {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}

	half := &common.HalfMessage{
		Topic:         common.HalfTopic,
		QueueID:       partition,
		MsgID:         uuid.NewString(),
		Body:          body,
		BornTimestamp: time.Now(),
		Properties:    props,
	}
	return e.bridge.AppendHalf(ctx, half)
}

// CommitMessage resolves a prepared half message as committed: it looks the
// half up by its physical commit-log position and writes the REMOVE
// tombstone that tells the scanner this transaction is settled (spec.md
// §4.D, "commitMessage"). The caller is responsible for delivering Half's
// body to its destination topic; that transport lives outside this core
// (spec.md §1 Non-goals).
func (e *CheckEngine) CommitMessage(ctx context.Context, header common.TransactionHeader) (common.OperationResult, error) {
	return e.resolve(ctx, header)
}

// RollbackMessage resolves a prepared half message as aborted: same
// tombstone write as CommitMessage, but the caller discards Half's body
// instead of delivering it (spec.md §4.D, "rollbackMessage").
func (e *CheckEngine) RollbackMessage(ctx context.Context, header common.TransactionHeader) (common.OperationResult, error) {
	return e.resolve(ctx, header)
}

func (e *CheckEngine) resolve(ctx context.Context, header common.TransactionHeader) (common.OperationResult, error) {
	half, found, err := e.bridge.LookupByCommitLogOffset(ctx, header.CommitLogOffset)
	if err != nil {
		return common.OperationResult{Status: common.OperationSystemError}, fmt.Errorf("lookup half by commit log offset %d: %w", header.CommitLogOffset, err)
	}
	if !found {
		// Already resolved by a previous attempt, or never prepared: either
		// way there is nothing left for this core to do.
		return common.OperationResult{Status: common.OperationSuccess}, nil
	}

	ok, err := e.DeletePrepareMessage(ctx, half)
	if err != nil {
		return common.OperationResult{Status: common.OperationSystemError}, err
	}
	if !ok {
		return common.OperationResult{Status: common.OperationSystemError}, fmt.Errorf("append op record for half %s: rejected", half.MsgID)
	}

	return common.OperationResult{Status: common.OperationSuccess, Half: half}, nil
}

// QueueStatus reports the last persisted consume offsets for one half
// queue and its paired op queue, for the status endpoint.
type QueueStatus struct {
	Half       common.TopicPartition
	Op         common.TopicPartition
	HalfOffset common.Offset
	OpOffset   common.Offset
}

// Status snapshots every half queue's current consume offsets.
func (e *CheckEngine) Status(ctx context.Context) ([]QueueStatus, error) {
	queues, err := e.bridge.HalfQueues(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate half queues: %w", err)
	}

	report := make([]QueueStatus, 0, len(queues))
	for _, half := range queues {
		op := e.bridge.OpQueueFor(half)
		h0, err := e.bridge.ReadConsumeOffset(ctx, half)
		if err != nil {
			return nil, fmt.Errorf("read half consume offset: %w", err)
		}
		o0, err := e.bridge.ReadConsumeOffset(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("read op consume offset: %w", err)
		}
		report = append(report, QueueStatus{Half: half, Op: op, HalfOffset: h0, OpOffset: o0})
	}
	return report, nil
}

// DeletePrepareMessage writes the REMOVE tombstone against half's paired op
// queue, marking it resolved for the next scan (spec.md §4.D,
// "deletePrepareMessage"). Despite the name, the half record itself is
// never erased: reconciliation learns of the resolution through the op log,
// exactly as HalfScanner's RemoveMap expects.
func (e *CheckEngine) DeletePrepareMessage(ctx context.Context, half *common.HalfMessage) (bool, error) {
	return e.bridge.AppendOp(ctx, half, common.TagRemove)
}

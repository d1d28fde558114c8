package checkengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/metrics"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

// DefaultPerQueueBudget is the 60-second wall-clock cap of spec.md §4.C/§6.
const DefaultPerQueueBudget = 60 * time.Second

// DefaultEmptyPullRetryLimit is MAX_RETRY_COUNT_WHEN_HALF_NULL (spec.md §4.C).
const DefaultEmptyPullRetryLimit = 1

// ScannerConfig bundles the HalfScanner inputs configured externally
// (spec.md §6).
type ScannerConfig struct {
	TransactionTimeout  time.Duration
	TransactionCheckMax int
	FileReservedHours   int
	PerQueueBudget      time.Duration
	OpBatchSize         int
	EmptyPullRetryLimit int
	// Metrics is optional; when set, the scanner reports discards, skips,
	// and dispatched checks as they happen.
	Metrics *metrics.Collectors
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.PerQueueBudget <= 0 {
		c.PerQueueBudget = DefaultPerQueueBudget
	}
	if c.OpBatchSize <= 0 {
		c.OpBatchSize = DefaultOpBatchSize
	}
	if c.EmptyPullRetryLimit <= 0 {
		c.EmptyPullRetryLimit = DefaultEmptyPullRetryLimit
	}
	if c.TransactionCheckMax <= 0 {
		c.TransactionCheckMax = 5
	}
	return c
}

// ScanResult is the epilogue of a single queue's scan: the new consume
// offsets to persist, if they changed (spec.md §4.C epilogue).
type ScanResult struct {
	NewHalfOffset common.Offset
	NewOpOffset   common.Offset
}

// ScanQueue walks half queue from h0, correlating against op queue from
// o0, until the per-queue budget is exhausted or a terminal condition
// fires (spec.md §4.C). A returned error means the scan hit a transient
// store failure and the caller must not persist any offsets for this
// queue (the "Broken" outcome of spec.md §9's sum type); a nil error means
// the scan ran to a natural stopping point and res carries whatever offset
// progress (possibly none) was made.
func ScanQueue(
	ctx context.Context,
	bridge store.Bridge,
	listener dispatch.Listener,
	half, op common.TopicPartition,
	h0, o0 common.Offset,
	cfg ScannerConfig,
) (ScanResult, error) {
	cfg = cfg.withDefaults()
	startTime := time.Now()

	state := NewScanState()
	opPull, err := FillOpRemoveMap(ctx, bridge, op, o0, h0, cfg.OpBatchSize, state)
	if err != nil {
		return ScanResult{}, fmt.Errorf("initial op index fill for %s: %w", op, err)
	}

	i := h0
	newHalfOffset := h0
	emptyPullCount := 0

	for {
		if time.Since(startTime) > cfg.PerQueueBudget {
			break
		}

		if opOff, ok := state.RemoveMap[i]; ok {
			delete(state.RemoveMap, i)
			state.DoneOpOffset = append(state.DoneOpOffset, opOff)
			i++
			newHalfOffset = i
			emptyPullCount = 0
			continue
		}

		pullResult, perr := bridge.PullHalf(ctx, half, i, 1)
		if perr != nil {
			return ScanResult{}, fmt.Errorf("pull half for %s at %d: %w", half, i, perr)
		}

		if len(pullResult.Messages) == 0 {
			if pullResult.Status == common.PullNoNewMsg {
				break
			}
			emptyPullCount++
			if emptyPullCount > cfg.EmptyPullRetryLimit {
				break
			}
			i = pullResult.NextBeginOffset
			newHalfOffset = i
			continue
		}
		emptyPullCount = 0

		msg := pullResult.Messages[0]
		now := time.Now()

		// Discard: too many checks already recorded.
		if msg.CheckTimes() >= cfg.TransactionCheckMax {
			listener.ResolveDiscard(msg)
			if cfg.Metrics != nil {
				cfg.Metrics.Discards.Inc()
			}
			i++
			newHalfOffset = i
			continue
		}

		// Skip: older than the store's file-retention window.
		retention := time.Duration(cfg.FileReservedHours) * time.Hour
		if now.Sub(msg.BornTimestamp) > retention {
			listener.ResolveDiscard(msg)
			if cfg.Metrics != nil {
				cfg.Metrics.Skips.Inc()
			}
			i++
			newHalfOffset = i
			continue
		}

		// Freshly stored guard: never back-check something we just wrote.
		if !msg.StoreTimestamp.Before(startTime) {
			break
		}

		valueOfCurrentMinusBorn := now.Sub(msg.BornTimestamp)
		checkImmunityTime := cfg.TransactionTimeout
		immunitySeconds, hasImmunityProp := msg.CheckImmunitySeconds()
		if hasImmunityProp && immunitySeconds != common.ImmunitySentinel {
			checkImmunityTime = time.Duration(immunitySeconds) * time.Second
		}

		if hasImmunityProp {
			if valueOfCurrentMinusBorn < checkImmunityTime {
				advanced, cerr := checkPrepareQueueOffset(ctx, bridge, msg, checkImmunityTime, now, state)
				if cerr != nil {
					return ScanResult{}, fmt.Errorf("checkPrepareQueueOffset for %s at %d: %w", half, i, cerr)
				}
				if !advanced {
					break
				}
				i++
				newHalfOffset = i
				continue
			}
		} else if valueOfCurrentMinusBorn >= 0 && valueOfCurrentMinusBorn < checkImmunityTime {
			break
		}

		opMsgs := opPull.Messages
		needCheck := false
		switch {
		case len(opMsgs) == 0 && valueOfCurrentMinusBorn > checkImmunityTime:
			needCheck = true
		case len(opMsgs) != 0:
			lastOp := opMsgs[len(opMsgs)-1]
			if lastOp.BornTimestamp.Sub(startTime) > cfg.TransactionTimeout {
				needCheck = true
			}
		}
		if valueOfCurrentMinusBorn < 0 {
			// Clock anomaly: born in the future.
			needCheck = true
		}

		if needCheck {
			renewed := bridge.RenewHalf(msg)
			renewed.SetCheckTimes(msg.CheckTimes() + 1)
			putResult, aerr := bridge.AppendHalf(ctx, renewed)
			if aerr != nil || !putResult.Success {
				if aerr != nil {
					log.Warn().Err(aerr).Str("half_queue", half.String()).Msg("failed to re-append half for back-check, retrying next tick")
				}
				break
			}
			listener.ResolveHalf(renewed)
			if cfg.Metrics != nil {
				cfg.Metrics.ChecksDispatched.Inc()
			}
			i++
			newHalfOffset = i
			continue
		}

		// Not required and undecided: pull more op evidence, don't advance i.
		opPull, err = FillOpRemoveMap(ctx, bridge, op, opPull.NextBeginOffset, h0, cfg.OpBatchSize, state)
		if err != nil {
			return ScanResult{}, fmt.Errorf("op index fill for %s: %w", op, err)
		}
	}

	return ScanResult{
		NewHalfOffset: newHalfOffset,
		NewOpOffset:   calculateOpOffset(state.DoneOpOffset, o0),
	}, nil
}

// checkPrepareQueueOffset is spec.md §4.C.a: the immunity-window path for a
// half carrying CHECK_IMMUNITY_TIME_IN_SECONDS. It re-appends the half with
// PreparedQueueOffset stamped, or, when the earlier copy that
// PreparedQueueOffset names is already in RemoveMap, consumes that entry.
func checkPrepareQueueOffset(
	ctx context.Context,
	bridge store.Bridge,
	msg *common.HalfMessage,
	checkImmunityTime time.Duration,
	now time.Time,
	state *ScanState,
) (advance bool, err error) {
	if now.Sub(msg.BornTimestamp) >= checkImmunityTime {
		return true, nil
	}

	prevOffset, prepState := msg.PreparedQueueOffset()
	switch prepState {
	case common.PreparedOffsetAbsent:
		renewed := bridge.RenewImmunityHalf(msg)
		putResult, aerr := bridge.AppendHalf(ctx, renewed)
		if aerr != nil {
			return false, aerr
		}
		return putResult.Success, nil
	case common.PreparedOffsetSentinel:
		return false, nil
	default: // PreparedOffsetValue
		if opOff, ok := state.RemoveMap[prevOffset]; ok {
			delete(state.RemoveMap, prevOffset)
			state.DoneOpOffset = append(state.DoneOpOffset, opOff)
			return true, nil
		}
		renewed := bridge.RenewImmunityHalf(msg)
		putResult, aerr := bridge.AppendHalf(ctx, renewed)
		if aerr != nil {
			return false, aerr
		}
		return putResult.Success, nil
	}
}

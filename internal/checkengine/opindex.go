package checkengine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

// DefaultOpBatchSize is the batch size spec.md §4.B and §6 fix at 32:
// bounded work per call, bounded memory, empirically sufficient coverage
// for typical commit/rollback cadence.
const DefaultOpBatchSize = 32

// FillOpRemoveMap is OpIndex's fillOpRemoveMap (spec.md §4.B). It pulls up
// to batchSize op messages from opQueue at pullOffsetOfOp and folds
// REMOVE-tagged records into state, relative to miniHalfOffset (the half
// queue's consume offset at the start of this scan).
func FillOpRemoveMap(
	ctx context.Context,
	bridge store.Bridge,
	opQueue common.TopicPartition,
	pullOffsetOfOp common.Offset,
	miniHalfOffset common.Offset,
	batchSize int,
	state *ScanState,
) (common.PullResult[*common.OpMessage], error) {
	if batchSize <= 0 {
		batchSize = DefaultOpBatchSize
	}

	result, err := bridge.PullOp(ctx, opQueue, pullOffsetOfOp, batchSize)
	if err != nil {
		return result, err
	}

	switch result.Status {
	case common.PullOffsetIllegal, common.PullNoMatchedMsg:
		// Forward the op consume offset past the gap; nothing to index.
		if werr := bridge.WriteConsumeOffset(ctx, opQueue, result.NextBeginOffset); werr != nil {
			log.Warn().Err(werr).Str("op_queue", opQueue.String()).Msg("failed to forward op consume offset past gap")
		}
		return result, nil
	case common.PullNoNewMsg:
		return result, nil
	}

	if len(result.Messages) == 0 {
		return result, nil
	}

	for _, opMsg := range result.Messages {
		if opMsg.Tag != common.TagRemove {
			log.Debug().
				Str("op_queue", opQueue.String()).
				Str("tag", opMsg.Tag).
				Int64("op_offset", int64(opMsg.QueueOffset)).
				Msg("ignoring op record with non-REMOVE tag")
			continue
		}

		qOff, perr := opMsg.ResolvedHalfOffset()
		if perr != nil {
			log.Warn().Err(perr).Int64("op_offset", int64(opMsg.QueueOffset)).Msg("unparsable op record body")
			continue
		}

		if qOff < miniHalfOffset {
			state.DoneOpOffset = append(state.DoneOpOffset, opMsg.QueueOffset)
		} else {
			state.RemoveMap[qOff] = opMsg.QueueOffset
		}
	}

	return result, nil
}

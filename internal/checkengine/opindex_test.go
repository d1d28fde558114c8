package checkengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

func TestFillOpRemoveMap_SplitsByMiniHalfOffset(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)

	half := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("a")}
	putResult, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)
	op := bridge.OpQueueFor(half.Queue())

	// One op record resolves an offset below the half scan window (stale,
	// folds straight into DoneOpOffset); one resolves an offset at/above it
	// (goes into RemoveMap for the scanner to consume).
	staleHalf := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, QueueOffset: 0, CommitLogOffset: putResult.CommitLogOffset}
	ok, err := bridge.AppendOp(ctx, staleHalf, common.TagRemove)
	require.NoError(t, err)
	require.True(t, ok)

	freshHalf := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, QueueOffset: 3}
	ok, err = bridge.AppendOp(ctx, freshHalf, common.TagRemove)
	require.NoError(t, err)
	require.True(t, ok)

	state := NewScanState()
	_, err = FillOpRemoveMap(ctx, bridge, op, 0, 2, DefaultOpBatchSize, state)
	require.NoError(t, err)

	require.Len(t, state.DoneOpOffset, 1)
	require.Equal(t, common.Offset(0), state.DoneOpOffset[0])
	require.Len(t, state.RemoveMap, 1)
	opOff, ok := state.RemoveMap[3]
	require.True(t, ok)
	require.Equal(t, common.Offset(1), opOff)
}

func TestFillOpRemoveMap_IgnoresNonRemoveTags(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)

	half := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("a")}
	_, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)
	op := bridge.OpQueueFor(half.Queue())

	ok, err := bridge.AppendOp(ctx, half, "OTHER")
	require.NoError(t, err)
	require.True(t, ok)

	state := NewScanState()
	_, err = FillOpRemoveMap(ctx, bridge, op, 0, 0, DefaultOpBatchSize, state)
	require.NoError(t, err)
	require.Empty(t, state.RemoveMap)
	require.Empty(t, state.DoneOpOffset)
}

func TestFillOpRemoveMap_NoNewOpMessages(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	op := common.TopicPartition{Topic: common.OpTopic, Partition: 0}

	state := NewScanState()
	result, err := FillOpRemoveMap(ctx, bridge, op, 0, 0, DefaultOpBatchSize, state)
	require.NoError(t, err)
	require.Equal(t, common.PullNoMatchedMsg, result.Status)
	require.Empty(t, state.RemoveMap)
}

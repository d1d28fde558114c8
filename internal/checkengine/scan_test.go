package checkengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

func testScannerConfig() ScannerConfig {
	return ScannerConfig{
		TransactionTimeout:  50 * time.Millisecond,
		TransactionCheckMax: 3,
		FileReservedHours:   72,
		PerQueueBudget:      time.Second,
		OpBatchSize:         DefaultOpBatchSize,
		EmptyPullRetryLimit: 1,
	}
}

// S1: a half message resolved by a REMOVE op record before the scanner ever
// reaches it must advance the half consume offset and never trigger a
// back-check.
func TestScanQueue_ResolvesHalfViaOpLog(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()

	half := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("payload"), BornTimestamp: time.Now()}
	_, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)

	op := bridge.OpQueueFor(half.Queue())
	ok, err := bridge.AppendOp(ctx, half, common.TagRemove)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := ScanQueue(ctx, bridge, listener, half.Queue(), op, 0, 0, testScannerConfig())
	require.NoError(t, err)

	require.Equal(t, common.Offset(1), res.NewHalfOffset)
	require.Equal(t, common.Offset(1), res.NewOpOffset)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Zero(t, resolveHalf)
	require.Zero(t, resolveDiscard)
}

// S2: an unresolved half message older than TransactionTimeout triggers
// exactly one back-check dispatch and re-appends with an incremented
// check-times counter. The consume offset advances past the original half
// but stops at the re-appended copy (it lands at the tail and was stored
// during this scan, so it is picked up on a later tick).
func TestScanQueue_DispatchesBackCheckForUnresolvedHalf(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()

	cfg := testScannerConfig()
	half := &common.HalfMessage{
		Topic:         common.HalfTopic,
		QueueID:       0,
		Body:          []byte("payload"),
		BornTimestamp: time.Now().Add(-2 * cfg.TransactionTimeout),
	}
	putResult, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)
	half.QueueOffset = putResult.QueueOffset
	half.StoreTimestamp = time.Now().Add(-2 * cfg.TransactionTimeout)

	op := bridge.OpQueueFor(half.Queue())

	res, err := ScanQueue(ctx, bridge, listener, half.Queue(), op, 0, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, common.Offset(1), res.NewHalfOffset)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Equal(t, 1, resolveHalf)
	require.Zero(t, resolveDiscard)

	pulled, err := bridge.PullHalf(ctx, half.Queue(), 1, 1)
	require.NoError(t, err)
	require.Len(t, pulled.Messages, 1)
	require.Equal(t, 1, pulled.Messages[0].CheckTimes())
}

// S3: a half message that has already hit TransactionCheckMax is discarded
// on sight, never dispatched for another back-check.
func TestScanQueue_DiscardsAfterMaxChecks(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	cfg := testScannerConfig()

	half := &common.HalfMessage{
		Topic:         common.HalfTopic,
		QueueID:       0,
		Body:          []byte("payload"),
		BornTimestamp: time.Now().Add(-2 * cfg.TransactionTimeout),
		Properties:    map[string]string{},
	}
	half.SetCheckTimes(cfg.TransactionCheckMax)
	_, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)

	op := bridge.OpQueueFor(half.Queue())
	res, err := ScanQueue(ctx, bridge, listener, half.Queue(), op, 0, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, common.Offset(1), res.NewHalfOffset)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Zero(t, resolveHalf)
	require.Equal(t, 1, resolveDiscard)
}

// S4: a half message older than the store's file-retention window is
// skipped (discarded) rather than checked, even with check-times at zero.
func TestScanQueue_SkipsMessagesPastRetentionWindow(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72) // 72-hour retention (spec.md §8 S4)
	listener := dispatch.NewDemo()
	cfg := testScannerConfig()
	cfg.FileReservedHours = 72

	half := &common.HalfMessage{
		Topic:         common.HalfTopic,
		QueueID:       0,
		Body:          []byte("payload"),
		BornTimestamp: time.Now().Add(-73 * time.Hour),
	}
	_, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)

	op := bridge.OpQueueFor(half.Queue())
	res, err := ScanQueue(ctx, bridge, listener, half.Queue(), op, 0, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, common.Offset(1), res.NewHalfOffset)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Zero(t, resolveHalf)
	require.Equal(t, 1, resolveDiscard)
}

// A half message without an immunity property that is still within
// TransactionTimeout is left alone; the scan stops without advancing past
// it or dispatching anything.
func TestScanQueue_LeavesFreshHalfUntouched(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	cfg := testScannerConfig()
	cfg.TransactionTimeout = time.Hour

	half := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("payload"), BornTimestamp: time.Now()}
	_, err := bridge.AppendHalf(ctx, half)
	require.NoError(t, err)

	op := bridge.OpQueueFor(half.Queue())
	res, err := ScanQueue(ctx, bridge, listener, half.Queue(), op, 0, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, common.Offset(0), res.NewHalfOffset)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Zero(t, resolveHalf)
	require.Zero(t, resolveDiscard)
}

// An empty half queue is a no-op scan.
func TestScanQueue_EmptyQueueNoOp(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()

	half := common.TopicPartition{Topic: common.HalfTopic, Partition: 0}
	op := common.TopicPartition{Topic: common.OpTopic, Partition: 0}

	res, err := ScanQueue(ctx, bridge, listener, half, op, 0, 0, testScannerConfig())
	require.NoError(t, err)
	require.Equal(t, common.Offset(0), res.NewHalfOffset)
	require.Equal(t, common.Offset(0), res.NewOpOffset)
}

package checkengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/halfcheck/internal/checkengine"
	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/config"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TransactionTimeout:  20 * time.Millisecond,
		TransactionCheckMax: 3,
		FileReservedHours:   72,
		ScanInterval:        10 * time.Millisecond,
		PerQueueBudget:      time.Second,
		OpBatchSize:         checkengine.DefaultOpBatchSize,
		EmptyPullRetryLimit: 1,
	}
}

func TestCheckEngine_PrepareCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	engine := checkengine.New(bridge, listener, nil, testEngineConfig())

	putResult, err := engine.PrepareMessage(ctx, 0, []byte("hello"), map[string]string{"PRODUCER_GROUP": "g1"})
	require.NoError(t, err)
	require.True(t, putResult.Success)

	opResult, err := engine.CommitMessage(ctx, common.TransactionHeader{CommitLogOffset: putResult.CommitLogOffset, ProducerGroup: "g1"})
	require.NoError(t, err)
	require.Equal(t, common.OperationSuccess, opResult.Status)
	require.Equal(t, putResult.MsgID, opResult.Half.MsgID)

	half := common.TopicPartition{Topic: common.HalfTopic, Partition: 0}
	op := bridge.OpQueueFor(half)
	require.NoError(t, engine.Check(ctx))

	offset, err := bridge.ReadConsumeOffset(ctx, half)
	require.NoError(t, err)
	require.Equal(t, common.Offset(1), offset)

	opOffset, err := bridge.ReadConsumeOffset(ctx, op)
	require.NoError(t, err)
	require.Equal(t, common.Offset(1), opOffset)
}

func TestCheckEngine_PrepareRollback(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	engine := checkengine.New(bridge, listener, nil, testEngineConfig())

	putResult, err := engine.PrepareMessage(ctx, 0, []byte("hello"), map[string]string{"PRODUCER_GROUP": "g1"})
	require.NoError(t, err)

	opResult, err := engine.RollbackMessage(ctx, common.TransactionHeader{CommitLogOffset: putResult.CommitLogOffset, ProducerGroup: "g1"})
	require.NoError(t, err)
	require.Equal(t, common.OperationSuccess, opResult.Status)

	resolveHalf, resolveDiscard := listener.Counts()
	require.Zero(t, resolveHalf)
	require.Zero(t, resolveDiscard)
}

func TestCheckEngine_ResolveUnknownCommitLogOffsetIsANoOp(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	engine := checkengine.New(bridge, listener, nil, testEngineConfig())

	opResult, err := engine.CommitMessage(ctx, common.TransactionHeader{CommitLogOffset: 9999, ProducerGroup: "g1"})
	require.NoError(t, err)
	require.Equal(t, common.OperationSuccess, opResult.Status)
	require.Nil(t, opResult.Half)
}

func TestCheckEngine_CheckDispatchesBackCheckForStaleHalf(t *testing.T) {
	ctx := context.Background()
	bridge := store.NewMemory(72)
	listener := dispatch.NewDemo()
	cfg := testEngineConfig()
	engine := checkengine.New(bridge, listener, nil, cfg)

	_, err := engine.PrepareMessage(ctx, 0, []byte("hello"), map[string]string{"PRODUCER_GROUP": "g1"})
	require.NoError(t, err)

	time.Sleep(2 * cfg.TransactionTimeout)
	require.NoError(t, engine.Check(ctx))

	resolveHalf, _ := listener.Counts()
	require.Equal(t, 1, resolveHalf)
}

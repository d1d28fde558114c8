package checkengine_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kumarlokesh/halfcheck/internal/checkengine"
	"github.com/kumarlokesh/halfcheck/internal/common"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

var _ = Describe("ScanQueue epilogue", func() {
	var (
		ctx      context.Context
		bridge   *store.Memory
		listener *dispatch.Demo
		cfg      checkengine.ScannerConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		bridge = store.NewMemory(72)
		listener = dispatch.NewDemo()
		cfg = checkengine.ScannerConfig{
			TransactionTimeout:  time.Hour,
			TransactionCheckMax: 5,
			FileReservedHours:   72,
			PerQueueBudget:      time.Second,
			OpBatchSize:         checkengine.DefaultOpBatchSize,
			EmptyPullRetryLimit: 1,
		}
	})

	When("every half in the window has a matching REMOVE op record", func() {
		It("advances both the half and op consume offsets past the resolved run", func() {
			half := common.TopicPartition{Topic: common.HalfTopic, Partition: 0}

			var halves []*common.HalfMessage
			for i := 0; i < 3; i++ {
				h := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("x"), BornTimestamp: time.Now()}
				_, err := bridge.AppendHalf(ctx, h)
				Expect(err).NotTo(HaveOccurred())
				halves = append(halves, h)
			}
			for _, h := range halves {
				ok, err := bridge.AppendOp(ctx, h, common.TagRemove)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			}

			op := bridge.OpQueueFor(half)
			res, err := checkengine.ScanQueue(ctx, bridge, listener, half, op, 0, 0, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NewHalfOffset).To(Equal(common.Offset(3)))
			Expect(res.NewOpOffset).To(Equal(common.Offset(3)))
		})
	})

	When("an earlier half is still unresolved and within TransactionTimeout", func() {
		It("advances neither offset, even though a later half has a REMOVE op record", func() {
			half := common.TopicPartition{Topic: common.HalfTopic, Partition: 0}

			h0 := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("x"), BornTimestamp: time.Now()}
			_, err := bridge.AppendHalf(ctx, h0)
			Expect(err).NotTo(HaveOccurred())
			h1 := &common.HalfMessage{Topic: common.HalfTopic, QueueID: 0, Body: []byte("x"), BornTimestamp: time.Now()}
			_, err = bridge.AppendHalf(ctx, h1)
			Expect(err).NotTo(HaveOccurred())

			// Only resolve h1, leaving h0 (an older half, still fresh within
			// TransactionTimeout) unresolved: the scan stops at h0, so it
			// never reaches h1 and neither consume offset moves.
			ok, err := bridge.AppendOp(ctx, h1, common.TagRemove)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			op := bridge.OpQueueFor(half)
			res, err := checkengine.ScanQueue(ctx, bridge, listener, half, op, 0, 0, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NewHalfOffset).To(Equal(common.Offset(0)))
			Expect(res.NewOpOffset).To(Equal(common.Offset(0)))
		})
	})
})

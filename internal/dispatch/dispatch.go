// Package dispatch defines the BackCheckDispatcher capability the check
// engine requires (spec.md §4.E) and a demo implementation standing in for
// the real producer-facing RPC, which stays out of scope per spec.md §1.
package dispatch

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// Listener is the BackCheckDispatcher capability required by the core.
// Both methods must not block the scanner (spec.md §4.E, §5).
type Listener interface {
	// ResolveHalf asynchronously issues a back-check RPC to the producer
	// group that originated msg.
	ResolveHalf(msg *common.HalfMessage)
	// ResolveDiscard records msg as permanently abandoned.
	ResolveDiscard(msg *common.HalfMessage)
}

// LocalTransactionChecker answers "what did this producer group decide for
// this half message?" — the producer-side half of the real
// checkLocalTransaction callback spec.md §1 keeps external. The Demo
// dispatcher uses it to close the loop end to end without a network hop.
type LocalTransactionChecker interface {
	CheckLocalTransaction(msg *common.HalfMessage) (committed bool, known bool)
}

// Outcome records what a demo back-check produced. Demo keeps these
// internally; it has no accessor that returns them.
type Outcome struct {
	MsgID     string
	Committed bool
	Known     bool
}

// Demo is a BackCheckDispatcher that asks a registered
// LocalTransactionChecker per producer group instead of making a network
// call, logging and counting every invocation (spec.md §4.E).
type Demo struct {
	mu       sync.Mutex
	checkers map[string]LocalTransactionChecker
	outcomes []Outcome

	resolveHalfCalls    int
	resolveDiscardCalls int
}

// NewDemo constructs an empty demo dispatcher.
func NewDemo() *Demo {
	return &Demo{checkers: make(map[string]LocalTransactionChecker)}
}

// Register associates a producer group with the checker that answers its
// local-transaction outcome queries.
func (d *Demo) Register(producerGroup string, checker LocalTransactionChecker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkers[producerGroup] = checker
}

// ResolveHalf implements Listener.
func (d *Demo) ResolveHalf(msg *common.HalfMessage) {
	group, ok := msg.Properties["PRODUCER_GROUP"]

	d.mu.Lock()
	d.resolveHalfCalls++
	var checker LocalTransactionChecker
	if ok {
		checker = d.checkers[group]
	}
	d.mu.Unlock()

	log.Debug().
		Str("msg_id", msg.MsgID).
		Str("producer_group", group).
		Int("check_times", msg.CheckTimes()).
		Msg("back-check dispatched")

	if checker == nil {
		return
	}

	// Real dispatch is async over the network; the demo runs the callback
	// on its own goroutine so ResolveHalf itself never blocks.
	go func() {
		committed, known := checker.CheckLocalTransaction(msg)
		d.mu.Lock()
		d.outcomes = append(d.outcomes, Outcome{MsgID: msg.MsgID, Committed: committed, Known: known})
		d.mu.Unlock()
	}()
}

// ResolveDiscard implements Listener.
func (d *Demo) ResolveDiscard(msg *common.HalfMessage) {
	d.mu.Lock()
	d.resolveDiscardCalls++
	d.mu.Unlock()

	log.Warn().
		Str("msg_id", msg.MsgID).
		Int("check_times", msg.CheckTimes()).
		Msg("half message discarded: exhausted back-checks or past retention window")
}

// Counts returns the number of ResolveHalf/ResolveDiscard invocations so
// far, for tests.
func (d *Demo) Counts() (resolveHalf, resolveDiscard int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveHalfCalls, d.resolveDiscardCalls
}

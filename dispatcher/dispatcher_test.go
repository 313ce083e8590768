package dispatcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndbkernel/ndbkernel/block"
	"github.com/ndbkernel/ndbkernel/signal"
)

// recordingBlock appends every signal it receives to received, and
// optionally replies with one signal back to the sender or fails.
type recordingBlock struct {
	number   uint16
	received []*signal.Signal
	reply    func(s *signal.Signal) ([]*signal.Signal, error)
}

func (b *recordingBlock) Number() uint16 { return b.number }

func (b *recordingBlock) Handle(s *signal.Signal) ([]*signal.Signal, error) {
	b.received = append(b.received, s)
	if b.reply != nil {
		return b.reply(s)
	}
	return nil, nil
}

func newRegistry(blocks ...*block.Instance) *block.Registry {
	reg := block.NewRegistry()
	for _, b := range blocks {
		reg.Register(b.Block, b.Instance)
	}
	return reg
}

func TestDispatcherDeliversToCanonicalInstance(t *testing.T) {
	tc := &recordingBlock{number: 245}
	reg := newRegistry(&block.Instance{Block: tc, Instance: 0})
	d := New(reg, nil)

	sender := signal.MakeBlockRef(1, 0)
	s := signal.NewSignal(1, sender, signal.MakeBlockRef(245, 0))
	d.Post(s)
	d.RunUntilIdle()

	require.Len(t, tc.received, 1)
	assert.Equal(t, s, tc.received[0])
}

func TestDispatcherPreservesFIFOOrderPerPair(t *testing.T) {
	tc := &recordingBlock{number: 245}
	reg := newRegistry(&block.Instance{Block: tc, Instance: 0})
	d := New(reg, nil)

	sender := signal.MakeBlockRef(1, 0)
	receiver := signal.MakeBlockRef(245, 0)
	for i := 0; i < 5; i++ {
		d.Post(signal.NewSignal(signal.ID(i), sender, receiver, uint32(i)))
	}
	d.RunUntilIdle()

	require.Len(t, tc.received, 5)
	for i, s := range tc.received {
		assert.Equal(t, uint32(i), s.Word(0))
	}
}

func TestDispatcherContinuationIsDrainedInSameRun(t *testing.T) {
	var selfRef signal.BlockRef
	count := 0
	tc := &recordingBlock{number: 245}
	tc.reply = func(s *signal.Signal) ([]*signal.Signal, error) {
		count++
		if count < 3 {
			return []*signal.Signal{signal.NewSignal(99, selfRef, selfRef)}, nil
		}
		return nil, nil
	}
	reg := newRegistry(&block.Instance{Block: tc, Instance: 0})
	selfRef = signal.MakeBlockRef(245, 0)
	d := New(reg, nil)

	d.Post(signal.NewSignal(1, selfRef, selfRef))
	d.RunUntilIdle()

	assert.Equal(t, 3, count)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherHandlerErrorMarksInstanceErrored(t *testing.T) {
	tc := &recordingBlock{number: 245}
	tc.reply = func(s *signal.Signal) ([]*signal.Signal, error) {
		return nil, fmt.Errorf("boom")
	}
	reg := newRegistry(&block.Instance{Block: tc, Instance: 0})
	d := New(reg, nil)

	receiver := signal.MakeBlockRef(245, 0)
	sender := signal.MakeBlockRef(1, 0)
	d.Post(signal.NewSignal(1, sender, receiver))
	d.RunUntilIdle()
	require.Len(t, tc.received, 1)

	// second delivery should be dropped: the instance is errored
	d.Post(signal.NewSignal(2, sender, receiver))
	d.RunUntilIdle()
	assert.Len(t, tc.received, 1)

	d.ClearError(receiver)
	d.Post(signal.NewSignal(3, sender, receiver))
	d.RunUntilIdle()
	assert.Len(t, tc.received, 2)
}

func TestDispatcherUnresolvedReceiverDoesNotPanic(t *testing.T) {
	reg := block.NewRegistry()
	d := New(reg, nil)
	d.Post(signal.NewSignal(1, signal.MakeBlockRef(1, 0), signal.MakeBlockRef(999, 0)))
	assert.NotPanics(t, func() { d.RunUntilIdle() })
	assert.Equal(t, 0, d.Pending())
}

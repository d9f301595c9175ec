package peephole

import (
	"peephole/internal/ir"

	"github.com/oleiade/lane"
)

// entry is a worklist item; it is stale once its instruction is removed or
// was created after the push.
type entry struct {
	id    ir.ID
	epoch uint64
}

// Worklist is a LIFO of instructions awaiting a visit
type Worklist struct {
	fn    *ir.Function
	stack *lane.Stack
}

// NewWorklist creates an empty worklist over fn
func NewWorklist(fn *ir.Function) *Worklist {
	return &Worklist{fn: fn, stack: lane.NewStack()}
}

// Seed pushes every instruction in program order
func (w *Worklist) Seed() {
	w.fn.Walk(func(_ *ir.Block, i *ir.Instruction) {
		w.Push(i.ID())
	})
}

// Push enqueues id stamped with the current epoch
func (w *Worklist) Push(id ir.ID) {
	w.stack.Push(entry{id: id, epoch: w.fn.Epoch()})
}

// Pop returns the most recently pushed live entry, skipping stale ones
func (w *Worklist) Pop() (ir.ID, bool) {
	for !w.stack.Empty() {
		e := w.stack.Pop().(entry)
		if w.fn.LiveAt(e.id, e.epoch) {
			return e.id, true
		}
	}
	return ir.NoID, false
}

// Len returns the number of queued entries, stale ones included
func (w *Worklist) Len() int { return w.stack.Size() }

package peephole

import (
	"fmt"

	"peephole/internal/ir"

	"github.com/tliron/commonlog"
)

// State is the phase of one engine run
type State uint8

const (
	StateSeeding State = iota
	StateDraining
	StateEliminating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSeeding:
		return "seeding"
	case StateDraining:
		return "draining"
	case StateEliminating:
		return "eliminating"
	}
	return "done"
}

// Rewrite records one committed rewrite
type Rewrite struct {
	Rule      string
	Window    bool
	Original  ir.ID
	Before    string
	After     string
	CostDelta int
	Pos       ir.Position
}

func (r Rewrite) String() string {
	return fmt.Sprintf("%s: %s => %s (%+d)", r.Rule, r.Before, r.After, r.CostDelta)
}

// Rejection records a candidate the verifier refused
type Rejection struct {
	Rule     string
	Original ir.ID
	Check    Check
	Reason   string
	Pos      ir.Position
}

// Result summarizes one run over a function
type Result struct {
	Function   string
	Changed    bool
	Rewrites   int
	CostDelta  int
	Eliminated int
	Rejected   int
	Steps      int
	Log        []Rewrite
	Rejections []Rejection
}

// Engine applies the pattern table and window idioms to a fixpoint
type Engine struct {
	options Options
	table   *Table
	window  *Window
	log     commonlog.Logger
}

// New creates an engine; unknown rule names are an error
func New(opts ...Option) (*Engine, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	table, err := NewTable(o.Disabled...)
	if err != nil {
		return nil, err
	}
	return &Engine{
		options: o,
		table:   table,
		window:  NewWindow(o.Disabled...),
		log:     commonlog.GetLogger("peephole.engine"),
	}, nil
}

// Table returns the engine's pattern table
func (e *Engine) Table() *Table { return e.table }

// Run rewrites fn in place. Missing analyses are computed from fn. An input
// that does not validate is rejected with an error wrapping ir.ErrInvalid.
func (e *Engine) Run(fn *ir.Function, an Analyses) (*Result, error) {
	if err := ir.Validate(fn); err != nil {
		return nil, err
	}
	if !an.complete() {
		computed := ComputeAnalyses(fn)
		if an.Dominance == nil {
			an.Dominance = computed.Dominance
		}
		if an.Memory == nil {
			an.Memory = computed.Memory
		}
		if an.Symbolic == nil {
			an.Symbolic = computed.Symbolic
		}
	}

	r := &run{
		engine:   e,
		fn:       fn,
		verifier: NewVerifier(an),
		work:     NewWorklist(fn),
		result:   &Result{Function: fn.Name},
	}
	r.seed()
	for {
		r.drain()
		if r.eliminate() == 0 || r.work.Len() == 0 || r.exhausted() {
			break
		}
	}
	r.enter(StateDone)

	if err := ir.Validate(fn); err != nil {
		return r.result, fmt.Errorf("after rewriting: %w", err)
	}
	res := r.result
	res.Changed = res.Rewrites > 0 || res.Eliminated > 0
	e.log.Infof("@%s: %d rewrites, %d eliminated, %d rejected, cost %+d",
		fn.Name, res.Rewrites, res.Eliminated, res.Rejected, res.CostDelta)
	return res, nil
}

// RunAll processes functions one by one, each with its own analyses
func (e *Engine) RunAll(fns []*ir.Function) ([]*Result, error) {
	results := make([]*Result, 0, len(fns))
	for _, fn := range fns {
		res, err := e.Run(fn, ComputeAnalyses(fn))
		if err != nil {
			return results, fmt.Errorf("@%s: %w", fn.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

type run struct {
	engine   *Engine
	fn       *ir.Function
	verifier *Verifier
	work     *Worklist
	result   *Result
	state    State
}

func (r *run) enter(s State) {
	r.state = s
	r.engine.log.Debugf("@%s: %s", r.fn.Name, s)
}

func (r *run) seed() {
	r.enter(StateSeeding)
	r.work.Seed()
}

func (r *run) exhausted() bool {
	max := r.engine.options.MaxSteps
	return max > 0 && r.result.Steps >= max
}

func (r *run) drain() {
	r.enter(StateDraining)
	for !r.exhausted() {
		id, ok := r.work.Pop()
		if !ok {
			return
		}
		r.result.Steps++
		if r.single(id) {
			continue
		}
		if r.engine.options.Window {
			r.pair(id)
		}
	}
	if r.work.Len() > 0 {
		r.engine.log.Warningf("@%s: stopped after %d steps", r.fn.Name, r.result.Steps)
	}
}

// single tries the pattern table on id
func (r *run) single(id ir.ID) bool {
	cand, ok := r.engine.table.Match(r.fn, id)
	if !ok {
		return false
	}
	deps := NewDependencyInfo()
	if rej := r.verifier.Verify(r.fn, id, cand.Value, deps); rej != nil {
		r.reject(cand.Rule.Name, id, rej)
		return false
	}

	orig := r.fn.Inst(id)
	rw := Rewrite{Rule: cand.Rule.Name, Original: id, Before: ir.FormatInstruction(r.fn, id), Pos: orig.Pos}
	rw.CostDelta = -Cost(orig.Op)

	prev, _ := r.fn.Prev(id)
	start := r.fn.NextID()
	value := r.fn.Materialize(cand.Value, id)
	r.fn.ReplaceAllUsesWith(id, value)
	r.fn.Remove(id)

	r.commit(rw, orig, value, start, append(deps.Set(HazardRAW), prev))
	return true
}

// pair tries the window idioms on id and its successor
func (r *run) pair(id ir.ID) {
	cand, ok := r.engine.window.Match(r.fn, id)
	if !ok {
		return
	}
	deps := NewDependencyInfo()
	if rej := r.verifier.Verify(r.fn, cand.Second, cand.Value, deps); rej != nil {
		r.reject(cand.Rule.Name, cand.Second, rej)
		return
	}

	second := r.fn.Inst(cand.Second)
	prev, _ := r.fn.Prev(cand.First)
	rw := Rewrite{
		Rule:     cand.Rule.Name,
		Window:   true,
		Original: cand.Second,
		Before:   ir.FormatInstruction(r.fn, cand.First) + "; " + ir.FormatInstruction(r.fn, cand.Second),
		Pos:      second.Pos,
	}
	rw.CostDelta = -Cost(second.Op)

	start := r.fn.NextID()
	value := r.fn.Materialize(cand.Value, cand.Second)
	r.fn.ReplaceAllUsesWith(cand.Second, value)
	r.fn.Remove(cand.Second)

	if first := r.fn.Inst(cand.First); first.NumUses() == 0 && removable(first) {
		rw.CostDelta -= Cost(first.Op)
		r.fn.Remove(cand.First)
	}
	r.commit(rw, second, value, start, append(deps.Set(HazardRAW), prev))
}

// commit logs a rewrite and re-enqueues what it may have enabled: the RAW
// set of the verification (the original, its users and its operands), the new
// instructions, and the instruction before each of them, whose structural
// successor may have changed. New instructions take the position
// of the one they replace and the value takes its name.
func (r *run) commit(rw Rewrite, orig *ir.Instruction, value ir.Ref, start ir.ID, touched []ir.ID) {
	for id := start; id < r.fn.NextID(); id++ {
		i, ok := r.fn.Live(id)
		if !ok {
			continue
		}
		rw.CostDelta += Cost(i.Op)
		if i.Pos == (ir.Position{}) {
			i.Pos = orig.Pos
		}
	}
	if id, ok := value.Inst(); ok && id >= start {
		if i := r.fn.Inst(id); i.Name == "" {
			i.Name = orig.Name
		}
		rw.After = ir.FormatInstruction(r.fn, id)
	} else {
		rw.After = ir.FormatRef(r.fn, value)
	}

	for _, id := range touched {
		r.revisit(id)
	}
	for id := start; id < r.fn.NextID(); id++ {
		r.revisit(id)
	}

	r.result.Rewrites++
	r.result.CostDelta += rw.CostDelta
	r.result.Log = append(r.result.Log, rw)
	r.engine.log.Debugf("@%s: %s", r.fn.Name, rw)
}

// revisit pushes the instruction before id, then id itself
func (r *run) revisit(id ir.ID) {
	if _, ok := r.fn.Live(id); !ok {
		return
	}
	if prev, ok := r.fn.Prev(id); ok {
		r.work.Push(prev)
	}
	r.work.Push(id)
}

func (r *run) reject(rule string, id ir.ID, rej *Reject) {
	r.result.Rejected++
	r.result.Rejections = append(r.result.Rejections, Rejection{
		Rule:     rule,
		Original: id,
		Check:    rej.Check,
		Reason:   rej.Reason,
		Pos:      r.fn.Inst(id).Pos,
	})
	r.engine.log.Debugf("@%s: %s rejected on %%%d: %s", r.fn.Name, rule, id, rej)
}

// eliminate removes unused removable instructions, repeating reverse passes
// until none is left, and queues the neighbours of removed instructions whose
// successor changed. It returns the number of instructions removed.
func (r *run) eliminate() int {
	r.enter(StateEliminating)
	total := 0
	for {
		var exposed []ir.ID
		removed := 0
		for bi := len(r.fn.Blocks) - 1; bi >= 0; bi-- {
			ids := append([]ir.ID(nil), r.fn.Blocks[bi].Instructions()...)
			for n := len(ids) - 1; n >= 0; n-- {
				i := r.fn.Inst(ids[n])
				if i.Removed() || i.NumUses() != 0 || !removable(i) {
					continue
				}
				if prev, ok := r.fn.Prev(i.ID()); ok {
					exposed = append(exposed, prev)
				}
				r.fn.Remove(i.ID())
				removed++
				r.result.CostDelta -= Cost(i.Op)
			}
		}
		for _, id := range exposed {
			if _, ok := r.fn.Live(id); ok {
				r.work.Push(id)
			}
		}
		if removed == 0 {
			break
		}
		total += removed
	}
	r.result.Eliminated += total
	return total
}

// removable instructions have no effect beyond their value
func removable(i *ir.Instruction) bool {
	return i.IsPure() && !i.MayTrap()
}

// Cost is the relative execution cost of an opcode
func Cost(op ir.Opcode) int {
	switch op {
	case ir.OpMul:
		return 3
	case ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem:
		return 20
	case ir.OpLoad, ir.OpStore:
		return 4
	case ir.OpCall:
		return 10
	}
	return 1
}

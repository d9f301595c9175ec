package peephole

import (
	"fmt"
	"sort"

	"peephole/internal/analysis"
	"peephole/internal/ir"

	"github.com/tliron/commonlog"
)

// DominanceOracle orders instructions
type DominanceOracle interface {
	Dominates(a, b ir.ID) bool
}

// MemoryOracle resolves memory accesses and orders them
type MemoryOracle interface {
	Access(id ir.ID) (int, bool)
	Dominates(a, b int) bool
}

// SymbolicOracle computes closed forms; equal closed forms are the same pointer
type SymbolicOracle interface {
	Expression(r ir.Ref) (*analysis.Expr, bool)
}

// Analyses are the read-only facts the verifier consults
type Analyses struct {
	Dominance DominanceOracle
	Memory    MemoryOracle
	Symbolic  SymbolicOracle
}

// ComputeAnalyses builds the concrete analyses for fn
func ComputeAnalyses(fn *ir.Function) Analyses {
	info := analysis.Compute(fn)
	return Analyses{Dominance: info.Dominance, Memory: info.Memory, Symbolic: info.Evolution}
}

func (a Analyses) complete() bool {
	return a.Dominance != nil && a.Memory != nil && a.Symbolic != nil
}

// Check names one verifier check
type Check uint8

const (
	CheckType Check = iota
	CheckControl
	CheckMemory
	CheckDependency
	CheckArithmetic
	CheckTrap
)

func (c Check) String() string {
	switch c {
	case CheckType:
		return "type"
	case CheckControl:
		return "control-flow"
	case CheckMemory:
		return "memory"
	case CheckDependency:
		return "data-dependency"
	case CheckArithmetic:
		return "arithmetic"
	case CheckTrap:
		return "trap"
	}
	return fmt.Sprintf("check(%d)", uint8(c))
}

// Reject explains why a rewrite was refused
type Reject struct {
	Check  Check
	Reason string
}

func (r *Reject) String() string {
	return fmt.Sprintf("%s: %s", r.Check, r.Reason)
}

func reject(c Check, format string, args ...interface{}) *Reject {
	return &Reject{Check: c, Reason: fmt.Sprintf(format, args...)}
}

// Hazard classifies a recorded dependency
type Hazard uint8

const (
	HazardRAW Hazard = iota
	HazardWAW
	HazardWAR
)

func (h Hazard) String() string {
	switch h {
	case HazardRAW:
		return "RAW"
	case HazardWAW:
		return "WAW"
	}
	return "WAR"
}

// DependencyInfo holds the instructions involved in the hazards of one
// verification. Every instruction belongs to at most one hazard set.
type DependencyInfo struct {
	hazards map[ir.ID]Hazard
}

// NewDependencyInfo creates empty hazard sets for one verification call
func NewDependencyInfo() *DependencyInfo {
	return &DependencyInfo{hazards: make(map[ir.ID]Hazard)}
}

// Record moves id into the set of hazard h
func (d *DependencyInfo) Record(id ir.ID, h Hazard) {
	d.hazards[id] = h
}

// Has reports whether id is recorded under h
func (d *DependencyInfo) Has(id ir.ID, h Hazard) bool {
	got, ok := d.hazards[id]
	return ok && got == h
}

// Set returns the sorted members of the hazard set h
func (d *DependencyInfo) Set(h Hazard) []ir.ID {
	var ids []ir.ID
	for id, got := range d.hazards {
		if got == h {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Verifier checks that a replacement preserves the behaviour of an instruction
type Verifier struct {
	an  Analyses
	log commonlog.Logger
}

// NewVerifier creates a verifier over the given analyses
func NewVerifier(an Analyses) *Verifier {
	return &Verifier{an: an, log: commonlog.GetLogger("peephole.verify")}
}

// facts describe the operation a replacement adds at the rewrite point. A
// value that already exists adds no operation, so it has no effects of its own.
type facts struct {
	terminator bool
	sideEffect bool
	reads      bool
	writes     bool
	trap       bool
	inst       *ir.Instruction
	detached   bool
}

func replacementFacts(fn *ir.Function, r ir.Ref) facts {
	if d, ok := r.Detached(); ok {
		return facts{
			terminator: d.IsTerminator(),
			sideEffect: d.HasSideEffects(),
			reads:      d.MayReadMemory(),
			writes:     d.MayWriteMemory(),
			trap:       d.MayTrap(),
			inst:       d,
			detached:   true,
		}
	}
	if i, ok := fn.Def(r); ok {
		return facts{inst: i}
	}
	return facts{}
}

// Verify runs the six checks on replacing orig by repl and returns nil when
// all of them pass. deps must be fresh for each call.
func (v *Verifier) Verify(fn *ir.Function, orig ir.ID, repl ir.Ref, deps *DependencyInfo) *Reject {
	o, ok := fn.Live(orig)
	if !ok {
		return reject(CheckDependency, "instruction %d is not live", orig)
	}
	f := replacementFacts(fn, repl)

	for _, check := range []func() *Reject{
		func() *Reject { return v.checkType(fn, o, repl) },
		func() *Reject { return v.checkControl(o, f) },
		func() *Reject { return v.checkMemory(o, f) },
		func() *Reject { return v.checkDependencies(fn, o, repl, deps) },
		func() *Reject { return v.checkArithmetic(o, repl, f) },
		func() *Reject { return v.checkTrap(o, f) },
	} {
		if rej := check(); rej != nil {
			v.log.Debugf("reject %%%d -> %s: %s", orig, repl, rej)
			return rej
		}
	}
	return nil
}

func (v *Verifier) checkType(fn *ir.Function, o *ir.Instruction, repl ir.Ref) *Reject {
	if got := fn.TypeOf(repl); got != o.Type {
		return reject(CheckType, "replacement has type %s, original %s", got, o.Type)
	}
	return nil
}

func (v *Verifier) checkControl(o *ir.Instruction, f facts) *Reject {
	if o.IsTerminator() != f.terminator {
		return reject(CheckControl, "terminator mismatch")
	}
	if o.HasSideEffects() != f.sideEffect {
		return reject(CheckControl, "side effect mismatch")
	}
	return nil
}

func (v *Verifier) checkMemory(o *ir.Instruction, f facts) *Reject {
	reads, writes := o.MayReadMemory(), o.MayWriteMemory()
	if !reads && !writes && !f.reads && !f.writes {
		return nil
	}
	if reads != f.reads || writes != f.writes {
		return reject(CheckMemory, "memory capability differs")
	}
	if v.an.Memory == nil {
		return reject(CheckMemory, "no memory analysis")
	}
	oa, ok := v.an.Memory.Access(o.ID())
	if !ok {
		return reject(CheckMemory, "original has no memory access")
	}
	if f.detached {
		return reject(CheckMemory, "replacement has no memory access")
	}
	ra, ok := v.an.Memory.Access(f.inst.ID())
	if !ok {
		return reject(CheckMemory, "replacement has no memory access")
	}
	if !v.an.Memory.Dominates(oa, ra) {
		return reject(CheckMemory, "original access %d does not dominate %d", oa, ra)
	}
	return nil
}

// checkDependencies rejects replacements that read the value being replaced
// or any of its users, directly or through new instructions, and operands
// that are not available at the original.
func (v *Verifier) checkDependencies(fn *ir.Function, o *ir.Instruction, repl ir.Ref, deps *DependencyInfo) *Reject {
	deps.Record(o.ID(), HazardRAW)
	queue := fn.Users(o.ID())
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if deps.Has(id, HazardRAW) {
			continue
		}
		deps.Record(id, HazardRAW)
		queue = append(queue, fn.Users(id)...)
	}

	var visit func(r ir.Ref) *Reject
	visit = func(r ir.Ref) *Reject {
		if d, ok := r.Detached(); ok {
			for _, op := range d.Operands() {
				if rej := visit(op); rej != nil {
					return rej
				}
			}
			return nil
		}
		id, ok := r.Inst()
		if !ok {
			return nil
		}
		if deps.Has(id, HazardRAW) || deps.Has(id, HazardWAW) {
			return reject(CheckDependency, "%%%d depends on the replaced value", id)
		}
		if v.an.Dominance == nil || !v.an.Dominance.Dominates(id, o.ID()) {
			deps.Record(id, HazardWAW)
			return reject(CheckDependency, "%%%d does not dominate %%%d", id, o.ID())
		}
		return nil
	}
	if rej := visit(repl); rej != nil {
		return rej
	}

	for _, op := range o.Operands() {
		if id, ok := op.Inst(); ok {
			deps.Record(id, HazardRAW)
		}
	}
	return nil
}

func isOperator(i *ir.Instruction) bool {
	return i != nil && i.Type.IsIntegral() && (i.Op.IsBinary() || i.Op.IsUnary())
}

func (v *Verifier) checkArithmetic(o *ir.Instruction, repl ir.Ref, f facts) *Reject {
	if !isOperator(o) || !isOperator(f.inst) {
		return nil
	}
	if v.an.Symbolic == nil {
		return reject(CheckArithmetic, "no symbolic analysis")
	}
	a, ok := v.an.Symbolic.Expression(ir.InstRef(o.ID()))
	if !ok {
		return reject(CheckArithmetic, "original has no closed form")
	}
	b, ok := v.an.Symbolic.Expression(repl)
	if !ok {
		return reject(CheckArithmetic, "replacement has no closed form")
	}
	if a != b {
		return reject(CheckArithmetic, "closed forms differ: %s vs %s", a, b)
	}
	return nil
}

func (v *Verifier) checkTrap(o *ir.Instruction, f facts) *Reject {
	if o.MayTrap() != f.trap {
		return reject(CheckTrap, "may-trap differs")
	}
	return nil
}

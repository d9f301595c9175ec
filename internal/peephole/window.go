package peephole

import (
	"fmt"
	"math/big"

	"peephole/internal/ir"
)

// WindowKind selects the idiom a window rule recognizes
type WindowKind uint8

const (
	WindowShiftMaskLow WindowKind = iota
	WindowShiftMaskHigh
	WindowAddSub
	WindowSubAdd
	WindowMulMul
	WindowAndAnd
	WindowOrOr
	WindowDeMorgan
	WindowShlShl
	WindowAddAdd
)

// WindowRule recognizes a pair (first, second) where second is the next
// instruction of the same block and consumes first
type WindowRule struct {
	Kind        WindowKind
	Name        string
	Description string
}

func (r *WindowRule) String() string { return r.Name }

// DefaultWindowRules returns the window idioms in matching order
func DefaultWindowRules() []*WindowRule {
	return []*WindowRule{
		{WindowShiftMaskLow, "window-shl-lshr", "(x shl c) lshr c -> x & (-1 lshr c)"},
		{WindowShiftMaskHigh, "window-shr-shl", "(x lshr|ashr c) shl c -> x & (-1 shl c)"},
		{WindowAddSub, "window-add-sub", "(x + c1) - c2 -> x + (c1 - c2)"},
		{WindowSubAdd, "window-sub-add", "(x - c1) + c2 -> x + (c2 - c1)"},
		{WindowMulMul, "window-mul-mul", "(x * c1) * c2 -> x * (c1 * c2)"},
		{WindowAndAnd, "window-and-and", "(x & c1) & c2 -> x & (c1 & c2)"},
		{WindowOrOr, "window-or-or", "(x | c1) | c2 -> x | (c1 | c2)"},
		{WindowDeMorgan, "window-demorgan", "(not x) & (not y) -> not (x | y)"},
		{WindowShlShl, "window-shl-shl", "(x shl c1) shl c2 -> x shl (c1 + c2) when c1 + c2 < width"},
		{WindowAddAdd, "window-add-add", "(x + c1) + c2 -> x + (c1 + c2)"},
	}
}

func isWindowRule(name string) bool {
	for _, r := range DefaultWindowRules() {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Window matches instruction pairs
type Window struct {
	rules []*WindowRule
}

// NewWindow builds the window matcher without the named idioms
func NewWindow(disabled ...string) *Window {
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		off[name] = true
	}
	w := &Window{}
	for _, r := range DefaultWindowRules() {
		if !off[r.Name] {
			w.rules = append(w.rules, r)
		}
	}
	return w
}

// Rules returns the enabled idioms
func (w *Window) Rules() []*WindowRule { return w.rules }

// WindowCandidate is a proposed replacement of the second instruction of a pair
type WindowCandidate struct {
	Rule   *WindowRule
	First  ir.ID
	Second ir.ID
	Value  ir.Ref
}

// pair is the matching context of one window
type pair struct {
	fn     *ir.Function
	first  *ir.Instruction
	second *ir.Instruction
	width  int
}

// Match looks at first and the instruction structurally after it. The
// function is not modified.
func (w *Window) Match(fn *ir.Function, first ir.ID) (WindowCandidate, bool) {
	f, ok := fn.Live(first)
	if !ok || !f.Type.IsInt() {
		return WindowCandidate{}, false
	}
	next, ok := fn.Next(first)
	if !ok {
		return WindowCandidate{}, false
	}
	s := fn.Inst(next)
	if s.Block() != f.Block() || !s.Type.IsInt() || !consumes(s, first) {
		return WindowCandidate{}, false
	}

	p := &pair{fn: fn, first: f, second: s, width: s.Type.Bits}
	for _, r := range w.rules {
		if v, ok := p.apply(r); ok {
			return WindowCandidate{Rule: r, First: first, Second: next, Value: v}, true
		}
	}
	return WindowCandidate{}, false
}

func consumes(s *ir.Instruction, id ir.ID) bool {
	for _, op := range s.Operands() {
		if def, ok := op.Inst(); ok && def == id {
			return true
		}
	}
	return false
}

// inner matches first as x op C, with the constant on the right or, for a
// commutative op, on the left.
func (p *pair) inner(op ir.Opcode) (ir.Ref, *ir.Constant, bool) {
	return binaryWithConstant(p.first, op)
}

// outer matches second as first op C
func (p *pair) outer(op ir.Opcode) (*ir.Constant, bool) {
	if p.second.Op != op {
		return nil, false
	}
	me := ir.InstRef(p.first.ID())
	if p.second.Operand(0) == me {
		if c, ok := p.second.Operand(1).Const(); ok {
			return c, true
		}
	}
	if op.IsCommutative() && p.second.Operand(1) == me {
		if c, ok := p.second.Operand(0).Const(); ok {
			return c, true
		}
	}
	return nil, false
}

func binaryWithConstant(i *ir.Instruction, op ir.Opcode) (ir.Ref, *ir.Constant, bool) {
	if i.Op != op {
		return ir.Ref{}, nil, false
	}
	if c, ok := i.Operand(1).Const(); ok {
		return i.Operand(0), c, true
	}
	if op.IsCommutative() {
		if c, ok := i.Operand(0).Const(); ok {
			return i.Operand(1), c, true
		}
	}
	return ir.Ref{}, nil, false
}

// shiftAmount returns c when 1 <= c < width
func (p *pair) shiftAmount(c *ir.Constant) (int, bool) {
	v := c.Value()
	if !v.IsInt64() || v.Int64() < 1 || v.Int64() >= int64(p.width) {
		return 0, false
	}
	return int(v.Int64()), true
}

func (p *pair) constant(v *big.Int) ir.Ref {
	return ir.ConstRef(ir.NewConstant(p.second.Type, v))
}

func (p *pair) binary(op ir.Opcode, x ir.Ref, v *big.Int) ir.Ref {
	return ir.DetachedRef(ir.Binary(op, p.second.Type, x, p.constant(v)))
}

func (p *pair) apply(r *WindowRule) (ir.Ref, bool) {
	switch r.Kind {
	case WindowShiftMaskLow:
		x, c1, ok := p.inner(ir.OpShl)
		if !ok {
			break
		}
		c2, ok := p.outer(ir.OpLShr)
		if !ok || !c1.Equal(c2) {
			break
		}
		n, ok := p.shiftAmount(c1)
		if !ok {
			break
		}
		return p.binary(ir.OpAnd, x, ir.Mask(p.width-n)), true

	case WindowShiftMaskHigh:
		x, c1, ok := p.inner(ir.OpLShr)
		if !ok {
			x, c1, ok = p.inner(ir.OpAShr)
		}
		if !ok {
			break
		}
		c2, ok := p.outer(ir.OpShl)
		if !ok || !c1.Equal(c2) {
			break
		}
		n, ok := p.shiftAmount(c1)
		if !ok {
			break
		}
		mask := new(big.Int).Lsh(ir.Mask(p.width-n), uint(n))
		return p.binary(ir.OpAnd, x, mask), true

	case WindowAddSub:
		x, c1, ok := p.inner(ir.OpAdd)
		if !ok {
			break
		}
		c2, ok := p.outer(ir.OpSub)
		if !ok {
			break
		}
		return p.binary(ir.OpAdd, x, new(big.Int).Sub(c1.Value(), c2.Value())), true

	case WindowSubAdd:
		x, c1, ok := p.inner(ir.OpSub)
		if !ok {
			break
		}
		c2, ok := p.outer(ir.OpAdd)
		if !ok {
			break
		}
		return p.binary(ir.OpAdd, x, new(big.Int).Sub(c2.Value(), c1.Value())), true

	case WindowMulMul:
		return p.combine(ir.OpMul, func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) })
	case WindowAndAnd:
		return p.combine(ir.OpAnd, func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) })
	case WindowOrOr:
		return p.combine(ir.OpOr, func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) })
	case WindowAddAdd:
		return p.combine(ir.OpAdd, func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) })

	case WindowDeMorgan:
		return p.deMorgan()

	case WindowShlShl:
		x, c1, ok := p.inner(ir.OpShl)
		if !ok {
			break
		}
		c2, ok := p.outer(ir.OpShl)
		if !ok {
			break
		}
		a, ok1 := p.shiftAmount(c1)
		b, ok2 := p.shiftAmount(c2)
		if !ok1 || !ok2 || a+b >= p.width {
			break
		}
		return p.binary(ir.OpShl, x, big.NewInt(int64(a+b))), true
	}
	return ir.Ref{}, false
}

func (p *pair) combine(op ir.Opcode, f func(a, b *big.Int) *big.Int) (ir.Ref, bool) {
	x, c1, ok := p.inner(op)
	if !ok {
		return ir.Ref{}, false
	}
	c2, ok := p.outer(op)
	if !ok {
		return ir.Ref{}, false
	}
	return p.binary(op, x, f(c1.Value(), c2.Value())), true
}

// deMorgan: first is not x and second ands it with another not
func (p *pair) deMorgan() (ir.Ref, bool) {
	if p.first.Op != ir.OpNot || p.second.Op != ir.OpAnd {
		return ir.Ref{}, false
	}
	me := ir.InstRef(p.first.ID())
	other := p.second.Operand(1)
	if other == me {
		other = p.second.Operand(0)
	}
	if other == me {
		return ir.Ref{}, false
	}
	not, ok := p.fn.Def(other)
	if !ok || not.Op != ir.OpNot {
		return ir.Ref{}, false
	}
	t := p.second.Type
	or := ir.Binary(ir.OpOr, t, p.first.Operand(0), not.Operand(0))
	return ir.DetachedRef(ir.Unary(ir.OpNot, t, ir.DetachedRef(or))), true
}

func (c WindowCandidate) String() string {
	return fmt.Sprintf("%s on %%%d, %%%d", c.Rule.Name, c.First, c.Second)
}

package peephole

import (
	"math/big"

	"peephole/internal/ir"
)

// apply runs the rule's predicate and builder against i. A builder that
// cannot produce a value reports no match.
func (r *Rule) apply(fn *ir.Function, i *ir.Instruction) (ir.Ref, bool) {
	switch r.Kind {
	case RuleFold:
		if c, ok := Fold(i); ok {
			return ir.ConstRef(c), true
		}
	case RuleCompareSelf:
		if i.Operand(0) == i.Operand(1) {
			return ir.ConstRef(ir.ConstBool(i.Pred.Reflexive())), true
		}
	case RuleCompareNotZero:
		return compareNotZero(fn, i)
	case RuleSelectConst:
		if c, ok := i.Operand(0).Const(); ok {
			if c.IsZero() {
				return i.Operand(2), true
			}
			return i.Operand(1), true
		}
	case RuleSelectSame:
		if i.Operand(1) == i.Operand(2) {
			return i.Operand(1), true
		}
	case RuleSelf:
		if i.Operand(0) == i.Operand(1) {
			if r.Zero {
				return ir.ConstRef(ir.ConstInt(i.Type, 0)), true
			}
			return i.Operand(0), true
		}
	case RuleIdentity:
		if x, ok := r.constantOperand(i); ok {
			return x, true
		}
	case RuleAnnihilate:
		if _, ok := r.constantOperand(i); ok {
			return ir.ConstRef(ir.ConstInt(i.Type, r.Constant)), true
		}
	case RuleDoubleComplement:
		if inner, ok := fn.Def(i.Operand(0)); ok && inner.Op == i.Op {
			return inner.Operand(0), true
		}
	case RuleStrength:
		return r.strengthReduce(i)
	}
	return ir.Ref{}, false
}

// constantOperand matches x op C (or C op x for commutative rules) where C
// is the rule's constant, returning x.
func (r *Rule) constantOperand(i *ir.Instruction) (ir.Ref, bool) {
	want := ir.ConstInt(i.Type, r.Constant)
	if c, ok := i.Operand(1).Const(); ok && c.Equal(want) {
		return i.Operand(0), true
	}
	if r.Commutative {
		if c, ok := i.Operand(0).Const(); ok && c.Equal(want) {
			return i.Operand(1), true
		}
	}
	return ir.Ref{}, false
}

// strengthReduce turns multiplication and division by 2^k, k >= 1, into a shift
func (r *Rule) strengthReduce(i *ir.Instruction) (ir.Ref, bool) {
	x, c, ok := powerOfTwoOperand(i, r.Commutative)
	if !ok {
		return ir.Ref{}, false
	}
	k := c.Log2()
	if k == 0 {
		return ir.Ref{}, false
	}
	if r.Op == ir.OpSDiv && c.Signed().Sign() < 0 {
		return ir.Ref{}, false
	}
	amount := ir.ConstRef(ir.ConstInt(i.Type, int64(k)))
	return ir.DetachedRef(ir.Binary(r.To, i.Type, x, amount)), true
}

func powerOfTwoOperand(i *ir.Instruction, commutative bool) (ir.Ref, *ir.Constant, bool) {
	if c, ok := i.Operand(1).Const(); ok && c.IsPowerOfTwo() {
		return i.Operand(0), c, true
	}
	if commutative {
		if c, ok := i.Operand(0).Const(); ok && c.IsPowerOfTwo() {
			return i.Operand(1), c, true
		}
	}
	return ir.Ref{}, nil, false
}

// compareNotZero: icmp eq|ne (not b), false -> icmp ne|eq b, false for a
// boolean b. For wider integers not y == 0 means y == -1, so they are left alone.
func compareNotZero(fn *ir.Function, i *ir.Instruction) (ir.Ref, bool) {
	if i.Pred != ir.PredEQ && i.Pred != ir.PredNE {
		return ir.Ref{}, false
	}
	c, ok := i.Operand(1).Const()
	if !ok || !c.IsZero() {
		return ir.Ref{}, false
	}
	not, ok := fn.Def(i.Operand(0))
	if !ok || not.Op != ir.OpNot || !not.Type.IsBool() {
		return ir.Ref{}, false
	}
	cmp := ir.ICmp(i.Pred.Inverse(), not.Operand(0), ir.ConstRef(ir.ConstBool(false)))
	return ir.DetachedRef(cmp), true
}

// Fold evaluates an instruction whose operands are all constants. Division by
// zero, signed division overflow and out-of-range shifts do not fold.
func Fold(i *ir.Instruction) (*ir.Constant, bool) {
	if i.NumOperands() == 0 {
		return nil, false
	}
	args := make([]*ir.Constant, i.NumOperands())
	for n := range args {
		c, ok := i.Operand(n).Const()
		if !ok {
			return nil, false
		}
		args[n] = c
	}

	switch {
	case i.Op.IsBinary():
		return foldBinary(i.Op, i.Type, args[0], args[1])
	case i.Op.IsUnary():
		v := args[0].Value()
		if i.Op == ir.OpNot {
			v.Not(v)
		} else {
			v.Neg(v)
		}
		return ir.NewConstant(i.Type, v), true
	case i.Op == ir.OpICmp:
		return ir.ConstBool(compare(i.Pred, args[0], args[1])), true
	}
	return nil, false
}

func foldBinary(op ir.Opcode, t ir.Type, x, y *ir.Constant) (*ir.Constant, bool) {
	w := t.Bits
	a, b := x.Value(), y.Value()
	r := new(big.Int)

	switch op {
	case ir.OpAdd:
		r.Add(a, b)
	case ir.OpSub:
		r.Sub(a, b)
	case ir.OpMul:
		r.Mul(a, b)
	case ir.OpUDiv, ir.OpURem:
		if b.Sign() == 0 {
			return nil, false
		}
		if op == ir.OpUDiv {
			r.Quo(a, b)
		} else {
			r.Rem(a, b)
		}
	case ir.OpSDiv, ir.OpSRem:
		if b.Sign() == 0 {
			return nil, false
		}
		sa, sb := x.Signed(), y.Signed()
		if y.IsAllOnes() && sa.Cmp(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(w-1)))) == 0 {
			return nil, false
		}
		if op == ir.OpSDiv {
			r.Quo(sa, sb)
		} else {
			r.Rem(sa, sb)
		}
	case ir.OpAnd:
		r.And(a, b)
	case ir.OpOr:
		r.Or(a, b)
	case ir.OpXor:
		r.Xor(a, b)
	case ir.OpShl, ir.OpLShr, ir.OpAShr:
		if !b.IsInt64() || b.Int64() >= int64(w) {
			return nil, false
		}
		n := uint(b.Int64())
		switch op {
		case ir.OpShl:
			r.Lsh(a, n)
		case ir.OpLShr:
			r.Rsh(a, n)
		default:
			r.Rsh(x.Signed(), n)
		}
	default:
		return nil, false
	}
	return ir.NewConstant(t, r), true
}

func compare(p ir.Predicate, x, y *ir.Constant) bool {
	var c int
	if p.IsSigned() {
		c = x.Signed().Cmp(y.Signed())
	} else {
		c = x.Value().Cmp(y.Value())
	}
	switch p {
	case ir.PredEQ:
		return c == 0
	case ir.PredNE:
		return c != 0
	case ir.PredULT, ir.PredSLT:
		return c < 0
	case ir.PredULE, ir.PredSLE:
		return c <= 0
	case ir.PredUGT, ir.PredSGT:
		return c > 0
	default:
		return c >= 0
	}
}

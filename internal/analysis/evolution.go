package analysis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"peephole/internal/ir"
)

// Closed forms are polynomials modulo 2^w whose variables are atoms: leaves
// (parameters, memory reads, calls) and the operators a polynomial cannot
// express (udiv by a constant, and/or/xor, opaque pure operators). Every
// polynomial and atom is hash-consed, so two values with the same closed form
// get the same *Expr.

const (
	maxDepth = 32
	maxTerms = 64
)

type atomKind uint8

const (
	atomLeaf atomKind = iota
	atomUDiv
	atomAnd
	atomOr
	atomXor
	atomOpaque
)

// Atom is a variable of a closed-form polynomial
type Atom struct {
	kind  atomKind
	key   string
	width int
	name  string
	args  []*Expr
	k     *big.Int // divisor of udiv, constant operand of and/or/xor
}

func (a *Atom) String() string { return a.key }

type term struct {
	coeff *big.Int
	mono  []*Atom
	mkey  string
}

// Expr is an interned closed form
type Expr struct {
	width int
	terms []term
	key   string
}

func (e *Expr) String() string { return e.key }

// Width returns the bit width the expression is reduced modulo
func (e *Expr) Width() int { return e.width }

// Constant returns the value of a constant expression
func (e *Expr) Constant() (*big.Int, bool) {
	switch len(e.terms) {
	case 0:
		return new(big.Int), true
	case 1:
		if len(e.terms[0].mono) == 0 {
			return new(big.Int).Set(e.terms[0].coeff), true
		}
	}
	return nil, false
}

// atom returns the atom when e is exactly 1*atom
func (e *Expr) atom() (*Atom, bool) {
	if len(e.terms) == 1 && len(e.terms[0].mono) == 1 && e.terms[0].coeff.Cmp(one) == 0 {
		return e.terms[0].mono[0], true
	}
	return nil, false
}

func (e *Expr) constantTerm() *big.Int {
	if len(e.terms) > 0 && len(e.terms[0].mono) == 0 {
		return e.terms[0].coeff
	}
	return zero
}

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

func pow2(n int) *big.Int { return new(big.Int).Lsh(one, uint(n)) }

// Evolution computes closed forms of values of one function
type Evolution struct {
	fn    *ir.Function
	exprs map[string]*Expr
	atoms map[string]*Atom
}

// NewEvolution creates an empty expression cache for fn
func NewEvolution(fn *ir.Function) *Evolution {
	return &Evolution{
		fn:    fn,
		exprs: make(map[string]*Expr),
		atoms: make(map[string]*Atom),
	}
}

// Expression returns the closed form of an integer or boolean value. The ref
// may name a detached instruction.
func (e *Evolution) Expression(r ir.Ref) (*Expr, bool) {
	if !e.fn.TypeOf(r).IsIntegral() {
		return nil, false
	}
	return e.eval(r, 0, make(map[*ir.Instruction]*Expr)), true
}

func (e *Evolution) eval(r ir.Ref, depth int, memo map[*ir.Instruction]*Expr) *Expr {
	w := e.fn.TypeOf(r).Bits
	if c, ok := r.Const(); ok {
		return e.constant(w, c.Value())
	}
	if p, ok := r.Param(); ok {
		return e.leaf(w, fmt.Sprintf("arg%d", p))
	}
	def, ok := e.fn.Def(r)
	if !ok {
		return e.leaf(w, r.String())
	}
	if x, ok := memo[def]; ok {
		return x
	}
	var x *Expr
	if depth >= maxDepth {
		x = e.identity(w, r, def)
	} else {
		x = e.instruction(w, r, def, depth+1, memo)
		if len(x.terms) > maxTerms {
			x = e.identity(w, r, def)
		}
	}
	memo[def] = x
	return x
}

// identity is the leaf naming one particular instruction
func (e *Evolution) identity(w int, r ir.Ref, def *ir.Instruction) *Expr {
	if def.IsDetached() {
		return e.leaf(w, fmt.Sprintf("%p", def))
	}
	return e.leaf(w, fmt.Sprintf("%%%d", def.ID()))
}

func (e *Evolution) instruction(w int, r ir.Ref, i *ir.Instruction, depth int, memo map[*ir.Instruction]*Expr) *Expr {
	operand := func(n int) *Expr { return e.eval(i.Operand(n), depth, memo) }
	amount := func() (int, bool) {
		c, ok := i.Operand(1).Const()
		if !ok || !c.Value().IsInt64() || c.Value().Int64() >= int64(w) {
			return 0, false
		}
		return int(c.Value().Int64()), true
	}
	opaque := func() *Expr {
		args := make([]*Expr, i.NumOperands())
		for n := range args {
			args[n] = operand(n)
		}
		name := i.Op.String()
		if i.Op == ir.OpICmp {
			name += "." + i.Pred.String()
		}
		return e.atomExpr(e.intern(&Atom{kind: atomOpaque, width: w, name: name, args: args}))
	}

	switch i.Op {
	case ir.OpAdd:
		return e.Add(operand(0), operand(1))
	case ir.OpSub:
		return e.Sub(operand(0), operand(1))
	case ir.OpMul:
		return e.Mul(operand(0), operand(1))
	case ir.OpNeg:
		return e.Neg(operand(0))
	case ir.OpNot:
		return e.Complement(operand(0))
	case ir.OpShl:
		if c, ok := amount(); ok {
			return e.Scale(operand(0), pow2(c))
		}
		return opaque()
	case ir.OpLShr:
		if c, ok := amount(); ok {
			return e.UDiv(operand(0), pow2(c))
		}
		return opaque()
	case ir.OpAShr:
		if c, ok := amount(); ok {
			return e.ashr(operand(0), c)
		}
		return opaque()
	case ir.OpUDiv:
		if d, ok := i.Operand(1).Const(); ok && !d.IsZero() {
			return e.UDiv(operand(0), d.Value())
		}
		return opaque()
	case ir.OpURem:
		if d, ok := i.Operand(1).Const(); ok && !d.IsZero() {
			x := operand(0)
			if d.IsPowerOfTwo() {
				return e.And(x, e.constant(w, new(big.Int).Sub(d.Value(), one)))
			}
			return e.Sub(x, e.Scale(e.UDiv(x, d.Value()), d.Value()))
		}
		return opaque()
	case ir.OpSDiv:
		if d, ok := i.Operand(1).Const(); ok && d.Signed().Sign() > 0 {
			x := operand(0)
			if d.IsOne() {
				return x
			}
			if e.bound(x).Cmp(pow2(w-1)) < 0 {
				return e.UDiv(x, d.Value())
			}
		}
		return opaque()
	case ir.OpAnd:
		return e.And(operand(0), operand(1))
	case ir.OpOr:
		return e.Or(operand(0), operand(1))
	case ir.OpXor:
		return e.Xor(operand(0), operand(1))
	case ir.OpSRem, ir.OpICmp, ir.OpSelect:
		return opaque()
	}
	return e.identity(w, r, i)
}

// ashr(x, c) = lshr(x, c) - 2^(w-c) * signbit(x)
func (e *Evolution) ashr(x *Expr, c int) *Expr {
	if c == 0 {
		return x
	}
	w := x.width
	sign := e.UDiv(x, pow2(w-1))
	return e.Sub(e.UDiv(x, pow2(c)), e.Scale(sign, pow2(w-c)))
}

// interning

func (e *Evolution) intern(a *Atom) *Atom {
	var b strings.Builder
	fmt.Fprintf(&b, "i%d:%s", a.width, a.kindName())
	if a.kind != atomLeaf {
		b.WriteString("(")
		for n, x := range a.args {
			if n > 0 {
				b.WriteString(", ")
			}
			b.WriteString(x.key)
		}
		if a.k != nil {
			if len(a.args) > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.k.String())
		}
		b.WriteString(")")
	}
	a.key = b.String()
	if old, ok := e.atoms[a.key]; ok {
		return old
	}
	e.atoms[a.key] = a
	return a
}

func (a *Atom) kindName() string {
	switch a.kind {
	case atomLeaf:
		return a.name
	case atomUDiv:
		return "udiv"
	case atomAnd:
		return "and"
	case atomOr:
		return "or"
	case atomXor:
		return "xor"
	}
	return a.name
}

func (e *Evolution) leaf(w int, name string) *Expr {
	return e.atomExpr(e.intern(&Atom{kind: atomLeaf, width: w, name: name}))
}

func (e *Evolution) atomExpr(a *Atom) *Expr {
	return e.poly(a.width, map[string]term{a.key: {coeff: big.NewInt(1), mono: []*Atom{a}, mkey: a.key}})
}

func (e *Evolution) constant(w int, v *big.Int) *Expr {
	return e.poly(w, map[string]term{"": {coeff: new(big.Int).Set(v), mkey: ""}})
}

// poly reduces coefficients, drops zero terms and interns the result
func (e *Evolution) poly(w int, terms map[string]term) *Expr {
	mask := ir.Mask(w)
	keys := make([]string, 0, len(terms))
	for k, t := range terms {
		t.coeff = new(big.Int).And(t.coeff, mask)
		if t.coeff.Sign() == 0 {
			continue
		}
		terms[k] = t
		keys = append(keys, k)
	}
	sort.Strings(keys)

	x := &Expr{width: w, terms: make([]term, 0, len(keys))}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		t := terms[k]
		x.terms = append(x.terms, t)
		if k == "" {
			parts = append(parts, t.coeff.String())
		} else {
			parts = append(parts, t.coeff.String()+"*"+k)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "0")
	}
	x.key = fmt.Sprintf("i%d[%s]", w, strings.Join(parts, " + "))
	if old, ok := e.exprs[x.key]; ok {
		return old
	}
	e.exprs[x.key] = x
	return x
}

func collect(terms map[string]term, t term, factor *big.Int) {
	c := new(big.Int).Mul(t.coeff, factor)
	if old, ok := terms[t.mkey]; ok {
		c.Add(c, old.coeff)
	}
	terms[t.mkey] = term{coeff: c, mono: t.mono, mkey: t.mkey}
}

// polynomial arithmetic

func (e *Evolution) Add(x, y *Expr) *Expr {
	terms := make(map[string]term)
	for _, t := range x.terms {
		collect(terms, t, one)
	}
	for _, t := range y.terms {
		collect(terms, t, one)
	}
	return e.poly(x.width, terms)
}

func (e *Evolution) Sub(x, y *Expr) *Expr {
	return e.Add(x, e.Neg(y))
}

func (e *Evolution) Neg(x *Expr) *Expr {
	return e.Scale(x, big.NewInt(-1))
}

// Complement returns ~x = -x - 1
func (e *Evolution) Complement(x *Expr) *Expr {
	return e.Sub(e.Neg(x), e.constant(x.width, one))
}

func (e *Evolution) Scale(x *Expr, c *big.Int) *Expr {
	terms := make(map[string]term)
	for _, t := range x.terms {
		collect(terms, t, c)
	}
	return e.poly(x.width, terms)
}

func (e *Evolution) Mul(x, y *Expr) *Expr {
	terms := make(map[string]term)
	for _, a := range x.terms {
		for _, b := range y.terms {
			mono := make([]*Atom, 0, len(a.mono)+len(b.mono))
			mono = append(mono, a.mono...)
			mono = append(mono, b.mono...)
			sort.Slice(mono, func(i, j int) bool { return mono[i].key < mono[j].key })
			keys := make([]string, len(mono))
			for n, m := range mono {
				keys[n] = m.key
			}
			t := term{coeff: new(big.Int).Mul(a.coeff, b.coeff), mono: mono, mkey: strings.Join(keys, "*")}
			collect(terms, t, one)
		}
	}
	return e.poly(x.width, terms)
}

// bound returns an upper bound of the unsigned value of x
func (e *Evolution) bound(x *Expr) *big.Int {
	if v, ok := x.Constant(); ok {
		return v
	}
	mask := ir.Mask(x.width)
	a, ok := x.atom()
	if !ok {
		return mask
	}
	switch a.kind {
	case atomAnd:
		if a.k != nil {
			return a.k
		}
	case atomUDiv:
		return new(big.Int).Quo(mask, a.k)
	}
	return mask
}

// UDiv returns floor(x / d) for a constant 1 <= d
func (e *Evolution) UDiv(x *Expr, d *big.Int) *Expr {
	w := x.width
	if d.Cmp(one) == 0 {
		return x
	}
	if d.Cmp(ir.Mask(w)) > 0 {
		return e.constant(w, zero)
	}
	if v, ok := x.Constant(); ok {
		return e.constant(w, v.Quo(v, d))
	}
	if e.bound(x).Cmp(d) < 0 {
		return e.constant(w, zero)
	}

	if isPow2(d) {
		c := d.BitLen() - 1
		if q, ok := e.exactShift(x, c); ok {
			return e.And(q, e.constant(w, ir.Mask(w-c)))
		}
	}

	if a, ok := x.atom(); ok && a.kind == atomUDiv {
		prod := new(big.Int).Mul(a.k, d)
		if prod.Cmp(pow2(w)) >= 0 {
			return e.constant(w, zero)
		}
		return e.UDiv(a.args[0], prod)
	}

	return e.atomExpr(e.intern(&Atom{kind: atomUDiv, width: w, args: []*Expr{x}, k: new(big.Int).Set(d)}))
}

// exactShift divides every coefficient of x by 2^c when all are multiples of
// it; the quotient is only meaningful modulo 2^(w-c).
func (e *Evolution) exactShift(x *Expr, c int) (*Expr, bool) {
	low := ir.Mask(c)
	mod := ir.Mask(x.width - c)
	terms := make(map[string]term)
	for _, t := range x.terms {
		if new(big.Int).And(t.coeff, low).Sign() != 0 {
			return nil, false
		}
		q := new(big.Int).Rsh(t.coeff, uint(c))
		terms[t.mkey] = term{coeff: q.And(q, mod), mono: t.mono, mkey: t.mkey}
	}
	return e.poly(x.width, terms), true
}

func isPow2(v *big.Int) bool {
	return v.Sign() > 0 && new(big.Int).And(v, new(big.Int).Sub(v, one)).Sign() == 0
}

// isComplement reports whether x has the form ~y, that is a constant term of -1
func isComplement(x *Expr) bool {
	return x.constantTerm().Cmp(ir.Mask(x.width)) == 0
}

// bitwise canonicalization

func (e *Evolution) flatten(kind atomKind, ops []*Expr, fold func(acc, v *big.Int), acc *big.Int) []*Expr {
	var args []*Expr
	for _, op := range ops {
		if v, ok := op.Constant(); ok {
			fold(acc, v)
			continue
		}
		if a, ok := op.atom(); ok && a.kind == kind {
			args = append(args, a.args...)
			if a.k != nil {
				fold(acc, a.k)
			}
			continue
		}
		args = append(args, op)
	}
	return args
}

func sortExprs(xs []*Expr) {
	sort.Slice(xs, func(i, j int) bool { return xs[i].key < xs[j].key })
}

func dedupe(xs []*Expr) []*Expr {
	sortExprs(xs)
	out := xs[:0]
	for n, x := range xs {
		if n == 0 || x != xs[n-1] {
			out = append(out, x)
		}
	}
	return out
}

func (e *Evolution) bitwise(kind atomKind, w int, args []*Expr, k *big.Int) *Expr {
	a := &Atom{kind: kind, width: w, args: append([]*Expr(nil), args...)}
	if k != nil {
		a.k = new(big.Int).Set(k)
	}
	return e.atomExpr(e.intern(a))
}

func (e *Evolution) And(ops ...*Expr) *Expr {
	w := ops[0].width
	all := ir.Mask(w)
	mask := new(big.Int).Set(all)
	args := dedupe(e.flatten(atomAnd, ops, func(acc, v *big.Int) { acc.And(acc, v) }, mask))

	if mask.Sign() == 0 {
		return e.constant(w, zero)
	}
	if len(args) == 0 {
		return e.constant(w, mask)
	}
	if mask.Cmp(all) == 0 {
		if len(args) == 1 {
			return args[0]
		}
		if allComplements(args) {
			return e.Complement(e.Or(e.complements(args)...))
		}
		return e.bitwise(atomAnd, w, args, nil)
	}
	if len(args) == 1 {
		x := args[0]
		if isPow2(new(big.Int).Add(mask, one)) && e.bound(x).Cmp(mask) <= 0 {
			return x
		}
		if low := new(big.Int).Xor(mask, all); isPow2(new(big.Int).Add(low, one)) {
			c := low.BitLen()
			return e.Scale(e.UDiv(x, pow2(c)), pow2(c))
		}
	}
	return e.bitwise(atomAnd, w, args, mask)
}

func (e *Evolution) Or(ops ...*Expr) *Expr {
	w := ops[0].width
	all := ir.Mask(w)
	acc := new(big.Int)
	args := dedupe(e.flatten(atomOr, ops, func(acc, v *big.Int) { acc.Or(acc, v) }, acc))

	if acc.Cmp(all) == 0 {
		return e.constant(w, all)
	}
	if len(args) == 0 {
		return e.constant(w, acc)
	}
	if acc.Sign() == 0 {
		if len(args) == 1 {
			return args[0]
		}
		if allComplements(args) {
			return e.Complement(e.And(e.complements(args)...))
		}
		return e.bitwise(atomOr, w, args, nil)
	}
	return e.bitwise(atomOr, w, args, acc)
}

func (e *Evolution) Xor(ops ...*Expr) *Expr {
	w := ops[0].width
	all := ir.Mask(w)
	acc := new(big.Int)
	flat := e.flatten(atomXor, ops, func(acc, v *big.Int) { acc.Xor(acc, v) }, acc)

	sortExprs(flat)
	var args []*Expr
	for n := 0; n < len(flat); {
		m := n
		for m < len(flat) && flat[m] == flat[n] {
			m++
		}
		if (m-n)%2 == 1 {
			args = append(args, flat[n])
		}
		n = m
	}

	complement := acc.Cmp(all) == 0
	if complement {
		acc.SetInt64(0)
	}
	var x *Expr
	switch {
	case len(args) == 0:
		x = e.constant(w, acc)
	case acc.Sign() == 0 && len(args) == 1:
		x = args[0]
	case acc.Sign() == 0:
		x = e.bitwise(atomXor, w, args, nil)
	default:
		x = e.bitwise(atomXor, w, args, acc)
	}
	if complement {
		return e.Complement(x)
	}
	return x
}

func allComplements(xs []*Expr) bool {
	for _, x := range xs {
		if !isComplement(x) {
			return false
		}
	}
	return true
}

func (e *Evolution) complements(xs []*Expr) []*Expr {
	out := make([]*Expr, len(xs))
	for n, x := range xs {
		out[n] = e.Complement(x)
	}
	return out
}

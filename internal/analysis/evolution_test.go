package analysis

import (
	"testing"

	"peephole/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evoFixture struct {
	fn  *ir.Function
	b   *ir.Builder
	evo *Evolution
	x   ir.Ref
	y   ir.Ref
	w   ir.Type
}

func newEvoFixture(bits int) *evoFixture {
	fn := ir.NewFunction("f", ir.Void)
	b := ir.NewBuilder(fn)
	w := ir.Int(bits)
	f := &evoFixture{fn: fn, b: b, w: w}
	f.x = b.Param("x", w)
	f.y = b.Param("y", w)
	f.evo = NewEvolution(fn)
	return f
}

func (f *evoFixture) c(v int64) ir.Ref { return f.b.Const(f.w, v) }

func (f *evoFixture) bin(op ir.Opcode, x, y ir.Ref) ir.Ref {
	return ir.DetachedRef(ir.Binary(op, f.w, x, y))
}

func (f *evoFixture) un(op ir.Opcode, x ir.Ref) ir.Ref {
	return ir.DetachedRef(ir.Unary(op, f.w, x))
}

func (f *evoFixture) expr(t *testing.T, r ir.Ref) *Expr {
	t.Helper()
	e, ok := f.evo.Expression(r)
	require.True(t, ok)
	return e
}

func (f *evoFixture) same(t *testing.T, a, b ir.Ref) {
	t.Helper()
	ea, eb := f.expr(t, a), f.expr(t, b)
	assert.Same(t, ea, eb, "%s != %s", ea, eb)
}

func (f *evoFixture) differ(t *testing.T, a, b ir.Ref) {
	t.Helper()
	ea, eb := f.expr(t, a), f.expr(t, b)
	assert.NotSame(t, ea, eb, "%s should differ from %s", ea, eb)
}

func TestEvolutionPolynomials(t *testing.T) {
	f := newEvoFixture(32)

	// (x + 1) * (x + 1) == x*x + 2x + 1
	s := f.bin(ir.OpAdd, f.x, f.c(1))
	sq := f.bin(ir.OpMul, s, s)
	xx := f.bin(ir.OpMul, f.x, f.x)
	expanded := f.bin(ir.OpAdd, f.bin(ir.OpAdd, xx, f.bin(ir.OpShl, f.x, f.c(1))), f.c(1))
	f.same(t, sq, expanded)

	// constants fold modulo 2^32
	f.same(t, f.bin(ir.OpMul, f.c(1<<20), f.c(1<<20)), f.c(0))

	// x - x == 0, x + y == y + x
	f.same(t, f.bin(ir.OpSub, f.x, f.x), f.c(0))
	f.same(t, f.bin(ir.OpAdd, f.x, f.y), f.bin(ir.OpAdd, f.y, f.x))

	// not x == -x - 1, neg (neg x) == x
	f.same(t, f.un(ir.OpNot, f.x), f.bin(ir.OpSub, f.un(ir.OpNeg, f.x), f.c(1)))
	f.same(t, f.un(ir.OpNeg, f.un(ir.OpNeg, f.x)), f.x)

	f.differ(t, f.bin(ir.OpAdd, f.x, f.c(1)), f.bin(ir.OpAdd, f.x, f.c(2)))
}

func TestEvolutionShifts(t *testing.T) {
	f := newEvoFixture(32)

	f.same(t, f.bin(ir.OpMul, f.x, f.c(8)), f.bin(ir.OpShl, f.x, f.c(3)))
	f.same(t, f.bin(ir.OpUDiv, f.x, f.c(8)), f.bin(ir.OpLShr, f.x, f.c(3)))
	f.same(t, f.bin(ir.OpShl, f.bin(ir.OpShl, f.x, f.c(3)), f.c(4)), f.bin(ir.OpShl, f.x, f.c(7)))

	// (x shl 8) lshr 8 == x & 0x00ffffff
	f.same(t,
		f.bin(ir.OpLShr, f.bin(ir.OpShl, f.x, f.c(8)), f.c(8)),
		f.bin(ir.OpAnd, f.x, f.c(0x00ffffff)))

	// (x lshr 8) shl 8 == x & 0xffffff00, also through ashr
	high := f.bin(ir.OpAnd, f.x, f.c(-256))
	f.same(t, f.bin(ir.OpShl, f.bin(ir.OpLShr, f.x, f.c(8)), f.c(8)), high)
	f.same(t, f.bin(ir.OpShl, f.bin(ir.OpAShr, f.x, f.c(8)), f.c(8)), high)

	// nested udiv
	f.same(t, f.bin(ir.OpUDiv, f.bin(ir.OpUDiv, f.x, f.c(3)), f.c(5)), f.bin(ir.OpUDiv, f.x, f.c(15)))

	// arithmetic and logical shifts differ
	f.differ(t, f.bin(ir.OpAShr, f.x, f.c(3)), f.bin(ir.OpLShr, f.x, f.c(3)))
}

func TestEvolutionSignedDivision(t *testing.T) {
	f := newEvoFixture(32)

	// sdiv and ashr only agree for a nonnegative dividend
	f.differ(t, f.bin(ir.OpSDiv, f.x, f.c(8)), f.bin(ir.OpAShr, f.x, f.c(3)))

	half := f.bin(ir.OpLShr, f.x, f.c(1))
	f.same(t, f.bin(ir.OpSDiv, half, f.c(8)), f.bin(ir.OpAShr, half, f.c(3)))
	f.same(t, f.bin(ir.OpSDiv, f.x, f.c(1)), f.x)
}

func TestEvolutionBitwise(t *testing.T) {
	f := newEvoFixture(16)

	f.same(t, f.bin(ir.OpAnd, f.x, f.x), f.x)
	f.same(t, f.bin(ir.OpOr, f.x, f.x), f.x)
	f.same(t, f.bin(ir.OpXor, f.x, f.x), f.c(0))
	f.same(t, f.bin(ir.OpAnd, f.x, f.y), f.bin(ir.OpAnd, f.y, f.x))
	f.same(t, f.bin(ir.OpAnd, f.x, f.c(-1)), f.x)
	f.same(t, f.bin(ir.OpOr, f.x, f.c(-1)), f.c(-1))
	f.same(t, f.bin(ir.OpXor, f.x, f.c(-1)), f.un(ir.OpNot, f.x))

	// constant masks combine
	f.same(t,
		f.bin(ir.OpAnd, f.bin(ir.OpAnd, f.x, f.c(0x0ff0)), f.c(0x00ff)),
		f.bin(ir.OpAnd, f.x, f.c(0x00f0)))
	f.same(t,
		f.bin(ir.OpOr, f.bin(ir.OpOr, f.x, f.c(1)), f.c(4)),
		f.bin(ir.OpOr, f.x, f.c(5)))

	// De Morgan
	f.same(t,
		f.bin(ir.OpAnd, f.un(ir.OpNot, f.x), f.un(ir.OpNot, f.y)),
		f.un(ir.OpNot, f.bin(ir.OpOr, f.x, f.y)))
	f.same(t,
		f.bin(ir.OpOr, f.un(ir.OpNot, f.x), f.un(ir.OpNot, f.y)),
		f.un(ir.OpNot, f.bin(ir.OpAnd, f.x, f.y)))

	// urem by a power of two is a low mask
	f.same(t, f.bin(ir.OpURem, f.x, f.c(16)), f.bin(ir.OpAnd, f.x, f.c(15)))

	f.differ(t, f.bin(ir.OpAnd, f.x, f.y), f.bin(ir.OpOr, f.x, f.y))
}

func TestEvolutionOpaqueAndLeaves(t *testing.T) {
	f := newEvoFixture(8)
	p := f.b.Param("p", ir.Ptr)
	l1 := f.b.Load(f.w, p)
	l2 := f.b.Load(f.w, p)

	f.differ(t, l1, l2)
	f.same(t, l1, l1)

	c1 := ir.DetachedRef(ir.ICmp(ir.PredULT, f.x, f.y))
	c2 := ir.DetachedRef(ir.ICmp(ir.PredULT, f.x, f.y))
	f.same(t, c1, c2)

	_, ok := f.evo.Expression(p)
	assert.False(t, ok, "pointers have no closed form")

	v, ok := f.expr(t, f.bin(ir.OpAdd, f.c(100), f.c(200))).Constant()
	require.True(t, ok)
	assert.Equal(t, int64(44), v.Int64())
}

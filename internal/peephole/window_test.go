package peephole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"peephole/internal/ir"
)

func matchWindow(t *testing.T, fn *ir.Function, first string) (WindowCandidate, bool) {
	t.Helper()
	return NewWindow().Match(fn, named(t, fn, first).ID())
}

func TestWindowIdioms(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		insts string
		rule  string
		op    ir.Opcode
		want  string
	}{
		{"shl-lshr", "i8", "  %a = shl i8 %v, 3\n  %r = lshr i8 %a, 3", "window-shl-lshr", ir.OpAnd, "31"},
		{"lshr-shl", "i8", "  %a = lshr i8 %v, 3\n  %r = shl i8 %a, 3", "window-shr-shl", ir.OpAnd, "-8"},
		{"ashr-shl", "i8", "  %a = ashr i8 %v, 2\n  %r = shl i8 %a, 2", "window-shr-shl", ir.OpAnd, "-4"},
		{"add-sub", "i8", "  %a = add i8 %v, 10\n  %r = sub i8 %a, 3", "window-add-sub", ir.OpAdd, "7"},
		{"sub-add", "i8", "  %a = sub i8 %v, 10\n  %r = add i8 %a, 3", "window-sub-add", ir.OpAdd, "-7"},
		{"sub-add commuted", "i8", "  %a = sub i8 %v, 10\n  %r = add i8 3, %a", "window-sub-add", ir.OpAdd, "-7"},
		{"mul-mul", "i8", "  %a = mul i8 %v, 3\n  %r = mul i8 %a, 5", "window-mul-mul", ir.OpMul, "15"},
		{"and-and", "i8", "  %a = and i8 %v, 12\n  %r = and i8 %a, 10", "window-and-and", ir.OpAnd, "8"},
		{"or-or", "i8", "  %a = or i8 %v, 12\n  %r = or i8 %a, 10", "window-or-or", ir.OpOr, "14"},
		{"shl-shl", "i8", "  %a = shl i8 %v, 3\n  %r = shl i8 %a, 4", "window-shl-shl", ir.OpShl, "7"},
		{"add-add", "i8", "  %a = add i8 %v, 100\n  %r = add i8 %a, 100", "window-add-add", ir.OpAdd, "-56"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := parse(t, "func @w(%v: i8) -> i8 {\nentry:\n"+tt.insts+"\n  ret i8 %r\n}")
			cand, ok := matchWindow(t, fn, "a")
			require.True(t, ok)
			assert.Equal(t, tt.rule, cand.Rule.Name)
			assert.Equal(t, named(t, fn, "a").ID(), cand.First)
			assert.Equal(t, named(t, fn, "r").ID(), cand.Second)

			d, ok := cand.Value.Detached()
			require.True(t, ok)
			assert.Equal(t, tt.op, d.Op)
			assert.Equal(t, param(fn, 0), d.Operand(0))
			c, ok := d.Operand(1).Const()
			require.True(t, ok)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestWindowDeMorgan(t *testing.T) {
	fn := parse(t, `func @dm(%x: i32, %y: i32) -> i32 {
entry:
  %nx = not i32 %x
  %ny = not i32 %y
  %r = and i32 %nx, %ny
  ret i32 %r
}`)
	cand, ok := matchWindow(t, fn, "ny")
	require.True(t, ok)
	assert.Equal(t, "window-demorgan", cand.Rule.Name)

	not, ok := cand.Value.Detached()
	require.True(t, ok)
	assert.Equal(t, ir.OpNot, not.Op)
	or, ok := not.Operand(0).Detached()
	require.True(t, ok)
	assert.Equal(t, ir.OpOr, or.Op)
	assert.Equal(t, param(fn, 1), or.Operand(0))
	assert.Equal(t, param(fn, 0), or.Operand(1))

	// %nx is not followed by its user
	_, ok = matchWindow(t, fn, "nx")
	assert.False(t, ok)
}

func TestWindowShiftOverflowGuard(t *testing.T) {
	fn := parse(t, `func @w(%x: i8) -> i8 {
entry:
  %a = shl i8 %x, 5
  %r = shl i8 %a, 5
  ret i8 %r
}`)
	_, ok := matchWindow(t, fn, "a")
	assert.False(t, ok)

	fn = parse(t, `func @w(%x: i8) -> i8 {
entry:
  %a = shl i8 %x, 4
  %r = lshr i8 %a, 3
  ret i8 %r
}`)
	_, ok = matchWindow(t, fn, "a")
	assert.False(t, ok, "different shift amounts do not form a mask")
}

func TestWindowRequiresAdjacency(t *testing.T) {
	fn := parse(t, `func @w(%x: i32, %y: i32) -> i32 {
entry:
  %a = add i32 %x, 1
  %b = mul i32 %y, 3
  %r = sub i32 %a, 1
  %s = add i32 %r, %b
  ret i32 %s
}`)
	_, ok := matchWindow(t, fn, "a")
	assert.False(t, ok)
}

func TestWindowNoCrossBlock(t *testing.T) {
	fn := parse(t, `func @w(%x: i32) -> i32 {
entry:
  %a = shl i32 %x, 2
  jmp next
next:
  %r = lshr i32 %a, 2
  ret i32 %r
}`)
	_, ok := matchWindow(t, fn, "a")
	assert.False(t, ok)
}

func TestWindowSecondMustConsumeFirst(t *testing.T) {
	fn := parse(t, `func @w(%x: i32, %y: i32) -> i32 {
entry:
  %a = add i32 %x, 1
  %r = sub i32 %y, 1
  %s = add i32 %a, %r
  ret i32 %s
}`)
	_, ok := matchWindow(t, fn, "a")
	assert.False(t, ok)
}

func TestWindowDisabled(t *testing.T) {
	fn := parse(t, "func @w(%v: i8) -> i8 {\nentry:\n  %a = add i8 %v, 1\n  %r = add i8 %a, 2\n  ret i8 %r\n}")
	w := NewWindow("window-add-add")
	for _, r := range w.Rules() {
		assert.NotEqual(t, "window-add-add", r.Name)
	}
	_, ok := w.Match(fn, named(t, fn, "a").ID())
	assert.False(t, ok)
}

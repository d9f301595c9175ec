package peephole

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"peephole/internal/ir"
	"peephole/internal/parser"
)

// parse lowers a single function from .pir source
func parse(t *testing.T, src string) *ir.Function {
	t.Helper()
	res := parser.ParseSource("test.pir", src)
	require.False(t, res.HasErrors(), "%v", res.Errors)
	require.Len(t, res.Functions, 1)
	return res.Functions[0]
}

// body wraps instructions in a function with the usual parameters; the
// instructions must define %r of type typ.
func body(t *testing.T, typ, insts string) *ir.Function {
	t.Helper()
	src := fmt.Sprintf("func @t(%%x: i32, %%y: i32, %%c: bool, %%b: bool, %%p: ptr) -> %s {\nentry:\n%s\n  ret %s %%r\n}", typ, insts, typ)
	return parse(t, src)
}

// named finds the live instruction carrying a name
func named(t *testing.T, fn *ir.Function, name string) *ir.Instruction {
	t.Helper()
	var found *ir.Instruction
	fn.Walk(func(_ *ir.Block, i *ir.Instruction) {
		if i.Name == name {
			found = i
		}
	})
	require.NotNil(t, found, "no instruction named %s", name)
	return found
}

// param returns the ref of the n-th function argument
func param(fn *ir.Function, n int) ir.Ref {
	return ir.ParamRef(fn.Args()[n])
}

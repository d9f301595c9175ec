package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"peephole/grammar"
)

func TestArithExample(t *testing.T) {
	module, err := grammar.ParseFile(`../examples/arith.pir`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	require.Len(t, module.Functions, 3)

	fold := module.Functions[0]
	assert.Equal(t, "@fold", fold.Name)
	assert.Equal(t, "i32", fold.Result)
	assert.Empty(t, fold.Params)
	require.Len(t, fold.Blocks, 1)
	assert.Equal(t, "entry", fold.Blocks[0].Label)
	require.Len(t, fold.Blocks[0].Instructions, 3)

	add := fold.Blocks[0].Instructions[0]
	assert.Equal(t, "%a", add.Result)
	require.NotNil(t, add.Op)
	assert.Equal(t, "add", add.Op.Opcode)
	assert.Equal(t, "i32", add.Op.Type)
	require.Len(t, add.Op.Operands, 2)
	assert.Equal(t, "2", add.Op.Operands[0].Int)
	assert.Equal(t, "3", add.Op.Operands[1].Int)

	ret := fold.Blocks[0].Instructions[2]
	require.NotNil(t, ret.Ret)
	assert.Equal(t, "i32", ret.Ret.Type)
	assert.Equal(t, "%b", ret.Ret.Value.Local)

	strength := module.Functions[1]
	require.Len(t, strength.Params, 1)
	assert.Equal(t, "%x", strength.Params[0].Name)
	assert.Equal(t, "i32", strength.Params[0].Type)
}

func TestControlExample(t *testing.T) {
	module, err := grammar.ParseFile(`../examples/control.pir`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	require.Len(t, module.Functions, 2)
	fn := module.Functions[0]
	require.Len(t, fn.Blocks, 3)

	entry := fn.Blocks[0]
	cmp := entry.Instructions[1]
	require.NotNil(t, cmp.ICmp)
	assert.Equal(t, "ult", cmp.ICmp.Predicate)
	assert.Equal(t, "%a", cmp.ICmp.Left.Local)
	assert.Equal(t, "10", cmp.ICmp.Right.Int)

	br := entry.Instructions[2]
	require.NotNil(t, br.Br)
	assert.Equal(t, "%c", br.Br.Cond.Local)
	assert.Equal(t, "then", br.Br.Then.Label)
	require.Len(t, br.Br.Then.Args, 1)
	assert.Equal(t, "%a", br.Br.Then.Args[0].Value.Local)
	assert.Equal(t, "done", br.Br.Else.Label)

	then := fn.Blocks[1]
	assert.Equal(t, "then", then.Label)
	require.Len(t, then.Params, 1)
	assert.Equal(t, "%v", then.Params[0].Name)
	store := then.Instructions[0]
	require.NotNil(t, store.Op)
	assert.Equal(t, "store", store.Op.Opcode)
	assert.Empty(t, store.Result)
	jmp := then.Instructions[1]
	require.NotNil(t, jmp.Jmp)
	assert.Equal(t, "done", jmp.Jmp.Label)

	done := fn.Blocks[2]
	var call *grammar.Call
	for _, inst := range done.Instructions {
		if inst.Call != nil {
			call = inst.Call
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "@clamp", call.Callee)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "", call.Args[0].Type)
	assert.Equal(t, "i32", call.Args[1].Type)
	assert.Equal(t, "255", call.Args[1].Value.Int)

	effects := module.Functions[1]
	assert.Equal(t, "", effects.Result)
	last := effects.Blocks[0].Instructions[len(effects.Blocks[0].Instructions)-1]
	require.NotNil(t, last.Ret)
	assert.Nil(t, last.Ret.Value)
}

func TestConstants(t *testing.T) {
	src := `func @k() -> bool {
entry:
  %a = sub i8 -128, 1   ; wraps
  %b = icmp eq i8 %a, 127
  %c = and bool %b, true
  ret bool %c
}`
	module, err := grammar.ParseString("k.pir", src)
	require.NoError(t, err)

	insts := module.Functions[0].Blocks[0].Instructions
	assert.Equal(t, "-128", insts[0].Op.Operands[0].Int)
	assert.Equal(t, "true", insts[2].Op.Operands[1].Bool)
	assert.True(t, insts[2].Op.Operands[1].IsConstant())
	assert.False(t, insts[2].Op.Operands[0].IsConstant())
	assert.Equal(t, 3, insts[0].Pos.Line)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing brace", "func @f() -> i32 {\nentry:\n  ret i32 0\n"},
		{"missing type", "func @f() {\nentry:\n  %a = add %x, 1\n  ret\n}"},
		{"bad token", "func @f() {\nentry:\n  ret $\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grammar.ParseString("bad.pir", tt.src)
			assert.Error(t, err)
		})
	}
}

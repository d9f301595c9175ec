package ir

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewPrinter(t *testing.T) {
	printer := NewPrinter()

	if printer == nil {
		t.Fatal("NewPrinter should not return nil")
	}
	if printer.indent != 0 {
		t.Errorf("NewPrinter should have indent 0, got %d", printer.indent)
	}
	if printer.output.Len() != 0 {
		t.Error("NewPrinter should have empty output buffer")
	}
}

func TestPrintFunction(t *testing.T) {
	fn := NewFunction("f", Int(32))
	b := NewBuilder(fn)
	x := b.Param("x", Int(32))
	p := b.Param("p", Ptr)
	then := fn.NewBlock("then")
	done := fn.NewBlock("done")

	a := b.Named("a", Binary(OpAdd, Int(32), x, ConstRef(ConstInt(Int(32), 0))))
	c := b.Named("c", ICmp(PredULT, a, ConstRef(ConstInt(Int(32), 10))))
	b.Br(c, then, []Ref{a}, done, []Ref{x})

	b.SetBlock(then)
	v := b.Param("v", Int(32))
	b.Store(v, p)
	b.Jmp(done, v)

	b.SetBlock(done)
	r := b.Param("r", Int(32))
	b.Ret(r)

	output := Print(fn)
	expected := []string{
		"func @f(%x: i32, %p: ptr) -> i32 {",
		"entry:",
		"  %a = add i32 %x, 0",
		"  %c = icmp ult i32 %a, 10",
		"  br %c, then(%a), done(%x)",
		"then(%v: i32):",
		"  store i32 %v, %p",
		"  jmp done(%v)",
		"done(%r: i32):",
		"  ret i32 %r",
		"}",
	}
	for _, line := range expected {
		if !strings.Contains(output, line+"\n") {
			t.Errorf("output missing %q:\n%s", line, output)
		}
	}
}

func TestPrintUnnamedAndDuplicateNames(t *testing.T) {
	fn := NewFunction("g", Void)
	b := NewBuilder(fn)
	x := b.Param("x", Int(8))
	a := b.Binary(OpAdd, x, x)
	b.Named("x", Binary(OpMul, Int(8), a, a))
	b.Emit(Call(Void, "sink", a, ConstRef(ConstInt(Int(8), -2))))
	b.Ret()

	output := Print(fn)
	aid, _ := a.Inst()
	for _, want := range []string{
		"func @g(%x: i8) {",
		fmt.Sprintf("%%%d = add i8 %%x, %%x", aid),
		"%x.1 = mul i8",
		fmt.Sprintf("call void @sink(%%%d, i8 -2)", aid),
		"  ret\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestFormatInstruction(t *testing.T) {
	fn := NewFunction("h", Int(16))
	b := NewBuilder(fn)
	x := b.Param("x", Int(16))
	s := b.Named("s", Binary(OpShl, Int(16), x, ConstRef(ConstInt(Int(16), 3))))
	b.Ret(s)

	id, _ := s.Inst()
	if got := FormatInstruction(fn, id); got != "%s = shl i16 %x, 3" {
		t.Errorf("FormatInstruction = %q", got)
	}
}

package ir

import (
	"math/big"
	"testing"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Int(32), "i32"},
		{Int(1), "i1"},
		{Bool, "bool"},
		{Ptr, "ptr"},
		{Void, "void"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
	if Int(8) != Int(8) {
		t.Error("identical integer types should compare equal")
	}
	if Int(1) == Bool {
		t.Error("i1 and bool are distinct types")
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{Int(1), Int(8), Int(64), Int(128), Bool, Ptr, Void} {
		got, ok := ParseType(typ.String())
		if !ok || got != typ {
			t.Errorf("ParseType(%q) = %v, %v", typ.String(), got, ok)
		}
	}
	for _, bad := range []string{"i0", "i", "i08", "int", "i2048", "u32"} {
		if _, ok := ParseType(bad); ok {
			t.Errorf("ParseType(%q) should fail", bad)
		}
	}
}

func TestOpcodeRoundTrip(t *testing.T) {
	for op := OpAdd; op < numOpcodes; op++ {
		got, ok := ParseOpcode(op.String())
		if !ok || got != op {
			t.Errorf("ParseOpcode(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if _, ok := ParseOpcode("frobnicate"); ok {
		t.Error("unknown mnemonic should not parse")
	}
}

func TestOpcodeClasses(t *testing.T) {
	if !OpAdd.IsBinary() || !OpShl.IsBinary() || !OpXor.IsBinary() {
		t.Error("add, shl and xor are binary operators")
	}
	if OpICmp.IsBinary() || OpSelect.IsBinary() {
		t.Error("icmp and select are not integer binary operators")
	}
	if !OpNot.IsUnary() || !OpNeg.IsUnary() {
		t.Error("not and neg are unary")
	}
	if OpSub.IsCommutative() || !OpMul.IsCommutative() {
		t.Error("mul commutes, sub does not")
	}
	for _, op := range []Opcode{OpRet, OpBr, OpJmp} {
		if !op.IsTerminator() {
			t.Errorf("%s should be a terminator", op)
		}
	}
}

func TestPredicateInverse(t *testing.T) {
	for p := PredEQ; p <= PredSGE; p++ {
		if p.Inverse().Inverse() != p {
			t.Errorf("inverse of inverse of %s is %s", p, p.Inverse().Inverse())
		}
		if p.Reflexive() == p.Inverse().Reflexive() {
			t.Errorf("%s and its inverse agree on x op x", p)
		}
		got, ok := ParsePredicate(p.String())
		if !ok || got != p {
			t.Errorf("ParsePredicate(%q) = %v", p.String(), got)
		}
	}
}

func TestConstantNormalization(t *testing.T) {
	c := ConstInt(Int(8), -1)
	if c.Value().Cmp(big.NewInt(255)) != 0 {
		t.Errorf("i8 -1 should be stored as 255, got %s", c.Value())
	}
	if !c.IsAllOnes() {
		t.Error("i8 -1 should be all ones")
	}
	if c.String() != "-1" {
		t.Errorf("i8 -1 prints as %q", c.String())
	}
	if ConstInt(Int(8), 256).IsZero() != true {
		t.Error("256 wraps to 0 in i8")
	}
	if ConstBool(true).String() != "true" || ConstBool(false).String() != "false" {
		t.Error("booleans print as true/false")
	}
	if !ConstInt(Int(32), 64).IsPowerOfTwo() || ConstInt(Int(32), 0).IsPowerOfTwo() {
		t.Error("64 is a power of two, 0 is not")
	}
	if got := ConstInt(Int(32), 64).Log2(); got != 6 {
		t.Errorf("log2(64) = %d", got)
	}
	if !ConstInt(Int(16), 7).Equal(ConstInt(Int(16), 7)) || ConstInt(Int(16), 7).Equal(ConstInt(Int(32), 7)) {
		t.Error("constant equality compares type and value")
	}
}

func TestWideConstants(t *testing.T) {
	v, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // 2^128-1
	c := NewConstant(Int(128), v)
	if !c.IsAllOnes() {
		t.Error("2^128-1 is all ones in i128")
	}
	if c.Signed().Cmp(big.NewInt(-1)) != 0 {
		t.Errorf("signed view should be -1, got %s", c.Signed())
	}
}

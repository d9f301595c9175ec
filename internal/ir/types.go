package ir

import (
	"fmt"
	"math/big"
)

// Kind classifies a Type
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindBool
	KindPtr
)

// Type is a value type. Two types are identical iff they compare equal.
type Type struct {
	Kind Kind
	Bits int
}

var (
	Void = Type{Kind: KindVoid}
	Bool = Type{Kind: KindBool, Bits: 1}
	Ptr  = Type{Kind: KindPtr, Bits: 64}
)

// Int returns the integer type of the given width
func Int(bits int) Type {
	return Type{Kind: KindInt, Bits: bits}
}

func (t Type) IsInt() bool  { return t.Kind == KindInt }
func (t Type) IsBool() bool { return t.Kind == KindBool }
func (t Type) IsVoid() bool { return t.Kind == KindVoid }

// IsIntegral reports whether values of t are fixed-width bit vectors that
// arithmetic and bitwise opcodes accept.
func (t Type) IsIntegral() bool { return t.Kind == KindInt || t.Kind == KindBool }

func (t Type) String() string {
	switch t.Kind {
	case KindInt:
		return fmt.Sprintf("i%d", t.Bits)
	case KindBool:
		return "bool"
	case KindPtr:
		return "ptr"
	default:
		return "void"
	}
}

// ParseType accepts the textual spelling of a type. Integer widths run
// from 1 to 1024 bits.
func ParseType(name string) (Type, bool) {
	switch name {
	case "void":
		return Void, true
	case "bool":
		return Bool, true
	case "ptr":
		return Ptr, true
	}
	var bits int
	if _, err := fmt.Sscanf(name, "i%d", &bits); err != nil || name != fmt.Sprintf("i%d", bits) {
		return Type{}, false
	}
	if bits < 1 || bits > 1024 {
		return Type{}, false
	}
	return Int(bits), true
}

// Opcode identifies the operation an instruction performs
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem

	// bitwise
	OpAnd
	OpOr
	OpXor

	// shifts
	OpShl
	OpLShr
	OpAShr

	// compare, select
	OpICmp
	OpSelect

	// unary
	OpNot
	OpNeg

	// other
	OpLoad
	OpStore
	OpCall
	OpRet
	OpBr
	OpJmp

	numOpcodes
)

// Class is the coarse opcode category rewrite rules dispatch on
type Class uint8

const (
	ClassOther Class = iota
	ClassArithmetic
	ClassBitwise
	ClassShift
	ClassCompare
	ClassSelect
	ClassUnary
)

var opcodeNames = [numOpcodes]string{
	OpInvalid: "invalid",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpUDiv:    "udiv",
	OpSDiv:    "sdiv",
	OpURem:    "urem",
	OpSRem:    "srem",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpShl:     "shl",
	OpLShr:    "lshr",
	OpAShr:    "ashr",
	OpICmp:    "icmp",
	OpSelect:  "select",
	OpNot:     "not",
	OpNeg:     "neg",
	OpLoad:    "load",
	OpStore:   "store",
	OpCall:    "call",
	OpRet:     "ret",
	OpBr:      "br",
	OpJmp:     "jmp",
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseOpcode maps a mnemonic back to its opcode
func ParseOpcode(name string) (Opcode, bool) {
	for op := OpAdd; op < numOpcodes; op++ {
		if opcodeNames[op] == name {
			return op, true
		}
	}
	return OpInvalid, false
}

func (op Opcode) Class() Class {
	switch op {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem:
		return ClassArithmetic
	case OpAnd, OpOr, OpXor:
		return ClassBitwise
	case OpShl, OpLShr, OpAShr:
		return ClassShift
	case OpICmp:
		return ClassCompare
	case OpSelect:
		return ClassSelect
	case OpNot, OpNeg:
		return ClassUnary
	default:
		return ClassOther
	}
}

// IsBinary reports whether op is a two-operand integer operator
func (op Opcode) IsBinary() bool {
	switch op.Class() {
	case ClassArithmetic, ClassBitwise, ClassShift:
		return true
	}
	return false
}

func (op Opcode) IsUnary() bool { return op.Class() == ClassUnary }

// IsCommutative reports whether the operands of op may be swapped
func (op Opcode) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor:
		return true
	}
	return false
}

func (op Opcode) IsTerminator() bool {
	return op == OpRet || op == OpBr || op == OpJmp
}

// Predicate is the condition of an icmp instruction
type Predicate uint8

const (
	PredNone Predicate = iota
	PredEQ
	PredNE
	PredULT
	PredULE
	PredUGT
	PredUGE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
)

var predicateNames = [...]string{
	PredNone: "",
	PredEQ:   "eq",
	PredNE:   "ne",
	PredULT:  "ult",
	PredULE:  "ule",
	PredUGT:  "ugt",
	PredUGE:  "uge",
	PredSLT:  "slt",
	PredSLE:  "sle",
	PredSGT:  "sgt",
	PredSGE:  "sge",
}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("pred(%d)", uint8(p))
}

// ParsePredicate maps a predicate mnemonic back to its value
func ParsePredicate(name string) (Predicate, bool) {
	for p := PredEQ; int(p) < len(predicateNames); p++ {
		if predicateNames[p] == name {
			return p, true
		}
	}
	return PredNone, false
}

// IsSigned reports whether p interprets its operands as two's complement
func (p Predicate) IsSigned() bool {
	return p >= PredSLT && p <= PredSGE
}

// Reflexive reports the result of comparing a value with itself
func (p Predicate) Reflexive() bool {
	switch p {
	case PredEQ, PredULE, PredUGE, PredSLE, PredSGE:
		return true
	}
	return false
}

// Inverse returns the predicate that holds exactly when p does not
func (p Predicate) Inverse() Predicate {
	switch p {
	case PredEQ:
		return PredNE
	case PredNE:
		return PredEQ
	case PredULT:
		return PredUGE
	case PredUGE:
		return PredULT
	case PredULE:
		return PredUGT
	case PredUGT:
		return PredULE
	case PredSLT:
		return PredSGE
	case PredSGE:
		return PredSLT
	case PredSLE:
		return PredSGT
	case PredSGT:
		return PredSLE
	}
	return PredNone
}

// Constant is an immutable integer or boolean literal. Its value is kept
// normalized to the unsigned range [0, 2^bits) of its type.
type Constant struct {
	typ Type
	val *big.Int
}

// NewConstant creates a constant of type t holding v reduced modulo 2^bits
func NewConstant(t Type, v *big.Int) *Constant {
	return &Constant{typ: t, val: Truncate(v, t.Bits)}
}

// ConstInt creates an integer constant from a machine integer
func ConstInt(t Type, v int64) *Constant {
	return NewConstant(t, big.NewInt(v))
}

// ConstBool creates a boolean constant
func ConstBool(v bool) *Constant {
	if v {
		return ConstInt(Bool, 1)
	}
	return ConstInt(Bool, 0)
}

// AllOnes returns the constant with every bit of t set
func AllOnes(t Type) *Constant {
	return &Constant{typ: t, val: Mask(t.Bits)}
}

func (c *Constant) Type() Type { return c.typ }

// Value returns a copy of the unsigned value
func (c *Constant) Value() *big.Int { return new(big.Int).Set(c.val) }

// Signed returns the two's complement interpretation of the value
func (c *Constant) Signed() *big.Int { return ToSigned(c.val, c.typ.Bits) }

func (c *Constant) IsZero() bool { return c.val.Sign() == 0 }
func (c *Constant) IsOne() bool  { return c.val.Cmp(big.NewInt(1)) == 0 }

func (c *Constant) IsAllOnes() bool { return c.val.Cmp(Mask(c.typ.Bits)) == 0 }

// IsPowerOfTwo reports whether the unsigned value has exactly one bit set
func (c *Constant) IsPowerOfTwo() bool {
	if c.val.Sign() <= 0 {
		return false
	}
	return new(big.Int).And(c.val, new(big.Int).Sub(c.val, big.NewInt(1))).Sign() == 0
}

// Log2 returns the index of the highest set bit
func (c *Constant) Log2() int { return c.val.BitLen() - 1 }

// Equal reports value equality; constant identity is pointer equality
func (c *Constant) Equal(o *Constant) bool {
	return c.typ == o.typ && c.val.Cmp(o.val) == 0
}

func (c *Constant) String() string {
	if c.typ.IsBool() {
		if c.val.Sign() == 0 {
			return "false"
		}
		return "true"
	}
	return c.Signed().String()
}

// Mask returns 2^bits - 1
func Mask(bits int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return m.Sub(m, big.NewInt(1))
}

// Truncate reduces v modulo 2^bits into [0, 2^bits)
func Truncate(v *big.Int, bits int) *big.Int {
	return new(big.Int).And(v, Mask(bits))
}

// ToSigned reinterprets an unsigned bits-wide value as two's complement
func ToSigned(v *big.Int, bits int) *big.Int {
	r := new(big.Int).Set(v)
	if bits > 0 && r.Bit(bits-1) == 1 {
		r.Sub(r, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
	}
	return r
}

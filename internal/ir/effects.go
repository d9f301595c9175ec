package ir

import "math/big"

// Effects describe what an instruction does besides producing its value

// Effect is a set of effect flags
type Effect uint8

const (
	EffectRead Effect = 1 << iota
	EffectWrite
	EffectTrap
	EffectTerminate
)

// EffectPure is the empty effect set
const EffectPure Effect = 0

func (e Effect) Has(f Effect) bool { return e&f != 0 }

func (e Effect) String() string {
	if e == EffectPure {
		return "pure"
	}
	s := ""
	for _, f := range []struct {
		flag Effect
		name string
	}{{EffectRead, "read"}, {EffectWrite, "write"}, {EffectTrap, "trap"}, {EffectTerminate, "terminate"}} {
		if e.Has(f.flag) {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	return s
}

// Effects returns the effect set of the instruction
func (i *Instruction) Effects() Effect {
	var e Effect
	switch i.Op {
	case OpLoad:
		e = EffectRead | EffectTrap
	case OpStore:
		e = EffectWrite | EffectTrap
	case OpCall:
		e = EffectRead | EffectWrite | EffectTrap
	case OpRet, OpBr, OpJmp:
		e = EffectTerminate
	case OpUDiv, OpURem, OpSDiv, OpSRem:
		if i.divisionMayTrap() {
			e = EffectTrap
		}
	}
	return e
}

// IsTerminator reports whether the instruction ends its block
func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// HasSideEffects reports whether removing the instruction is observable
// beyond its value.
func (i *Instruction) HasSideEffects() bool {
	return i.Op == OpStore || i.Op == OpCall
}

func (i *Instruction) MayReadMemory() bool  { return i.Effects().Has(EffectRead) }
func (i *Instruction) MayWriteMemory() bool { return i.Effects().Has(EffectWrite) }

// MayTouchMemory reports whether the instruction reads or writes memory
func (i *Instruction) MayTouchMemory() bool {
	return i.Effects().Has(EffectRead | EffectWrite)
}

func (i *Instruction) MayTrap() bool { return i.Effects().Has(EffectTrap) }

// IsPure reports whether the instruction can be deleted once unused
func (i *Instruction) IsPure() bool {
	return !i.IsTerminator() && !i.HasSideEffects()
}

// divisionMayTrap: a zero divisor traps, and so does signed overflow of
// INT_MIN / -1 unless the dividend is a constant other than INT_MIN.
func (i *Instruction) divisionMayTrap() bool {
	if len(i.operands) != 2 {
		return true
	}
	d, ok := i.operands[1].Const()
	if !ok || d.IsZero() {
		return true
	}
	if (i.Op == OpSDiv || i.Op == OpSRem) && d.IsAllOnes() {
		n, ok := i.operands[0].Const()
		if !ok {
			return true
		}
		minInt := new(big.Int).Lsh(big.NewInt(1), uint(n.Type().Bits-1))
		return n.val.Cmp(minInt) == 0
	}
	return false
}

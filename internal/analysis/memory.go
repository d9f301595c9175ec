package analysis

import (
	"fmt"

	"peephole/internal/ir"
)

// AccessKind distinguishes memory uses from memory definitions
type AccessKind uint8

const (
	AccessUse AccessKind = iota
	AccessDef
)

func (k AccessKind) String() string {
	if k == AccessDef {
		return "def"
	}
	return "use"
}

// Special defining accesses
const (
	LiveOnEntry = 0
	MergedState = -1
)

// Access is one numbered memory access
type Access struct {
	Index int
	Inst  ir.ID
	Kind  AccessKind
	// Defining is the access producing the memory state this one observes:
	// a previous def, LiveOnEntry, or MergedState after a join.
	Defining int
}

func (a Access) String() string {
	return fmt.Sprintf("%d = Memory%s(%d) at %%%d", a.Index, a.Kind, a.Defining, a.Inst)
}

// MemorySSA numbers the memory accesses of a function in program order.
// Loads are uses; stores and calls are defs.
type MemorySSA struct {
	dom      *Dominance
	accesses []Access // index 0 is LiveOnEntry
	byInst   map[ir.ID]int
}

// NewMemorySSA numbers accesses in block order. A block with a single
// predecessor inherits the memory state its predecessor exits with.
func NewMemorySSA(fn *ir.Function, dom *Dominance) *MemorySSA {
	m := &MemorySSA{
		dom:      dom,
		accesses: []Access{{Index: LiveOnEntry, Inst: ir.NoID, Kind: AccessDef, Defining: LiveOnEntry}},
		byInst:   make(map[ir.ID]int),
	}

	preds := make(map[ir.BlockID]int)
	for _, b := range fn.Blocks {
		for _, s := range fn.Successors(b) {
			preds[s]++
		}
	}

	exit := make(map[ir.BlockID]int)
	for _, b := range fn.Blocks {
		state := MergedState
		switch {
		case b.ID == fn.Entry().ID && preds[b.ID] == 0:
			state = LiveOnEntry
		case preds[b.ID] == 1:
			if p, ok := dom.IDom(b.ID); ok {
				if s, done := exit[p]; done {
					state = s
				}
			}
		}
		for _, id := range b.Instructions() {
			i := fn.Inst(id)
			switch {
			case i.MayWriteMemory():
				state = m.add(id, AccessDef, state)
			case i.MayReadMemory():
				m.add(id, AccessUse, state)
			}
		}
		exit[b.ID] = state
	}
	return m
}

func (m *MemorySSA) add(id ir.ID, kind AccessKind, defining int) int {
	a := Access{Index: len(m.accesses), Inst: id, Kind: kind, Defining: defining}
	m.accesses = append(m.accesses, a)
	m.byInst[id] = a.Index
	return a.Index
}

// Access returns the access number of a memory instruction
func (m *MemorySSA) Access(id ir.ID) (int, bool) {
	n, ok := m.byInst[id]
	return n, ok
}

// Lookup returns the access with the given number
func (m *MemorySSA) Lookup(n int) (Access, bool) {
	if n <= 0 || n >= len(m.accesses) {
		return Access{}, false
	}
	return m.accesses[n], true
}

// Accesses returns all numbered accesses in program order
func (m *MemorySSA) Accesses() []Access {
	return m.accesses[1:]
}

// Dominates reports whether access a dominates access b
func (m *MemorySSA) Dominates(a, b int) bool {
	if a == LiveOnEntry {
		return true
	}
	x, ok := m.Lookup(a)
	if !ok {
		return false
	}
	y, ok := m.Lookup(b)
	if !ok {
		return false
	}
	return m.dom.Dominates(x.Inst, y.Inst)
}

package ir

// The IR is an SSA instruction graph kept in a per-function arena. Instructions
// are addressed by stable IDs that are never reused, operands are Refs and every
// instruction carries its use-list as IDs, so deleting an instruction never
// leaves a dangling pointer behind. Each instruction remembers the function
// epoch at which it was created and removed.

import "fmt"

// ID identifies an instruction within its function
type ID int32

// NoID is the ID of an instruction that has not been inserted yet
const NoID ID = -1

// BlockID identifies a basic block within its function
type BlockID int32

// ParamID identifies a block parameter within its function
type ParamID int32

// Position is a source location, 1-based
type Position struct {
	Line   int
	Column int
}

// RefKind tells what an operand refers to
type RefKind uint8

const (
	RefNone RefKind = iota
	RefInst
	RefParam
	RefConst
	RefDetached
)

// Ref is an operand reference. Refs compare with == by identity: two refs are
// equal only when they name the same instruction, parameter or constant object.
type Ref struct {
	kind RefKind
	id   int32
	c    *Constant
	inst *Instruction
}

func InstRef(id ID) Ref              { return Ref{kind: RefInst, id: int32(id)} }
func ParamRef(id ParamID) Ref        { return Ref{kind: RefParam, id: int32(id)} }
func ConstRef(c *Constant) Ref       { return Ref{kind: RefConst, c: c} }
func DetachedRef(i *Instruction) Ref { return Ref{kind: RefDetached, inst: i} }

func (r Ref) Kind() RefKind { return r.kind }
func (r Ref) IsValid() bool { return r.kind != RefNone }

func (r Ref) Inst() (ID, bool) {
	return ID(r.id), r.kind == RefInst
}

func (r Ref) Param() (ParamID, bool) {
	return ParamID(r.id), r.kind == RefParam
}

func (r Ref) Const() (*Constant, bool) {
	return r.c, r.kind == RefConst
}

func (r Ref) Detached() (*Instruction, bool) {
	return r.inst, r.kind == RefDetached
}

// IsComputed reports whether the ref names an instruction, inserted or not
func (r Ref) IsComputed() bool {
	return r.kind == RefInst || r.kind == RefDetached
}

func (r Ref) String() string {
	switch r.kind {
	case RefInst:
		return fmt.Sprintf("%%%d", r.id)
	case RefParam:
		return fmt.Sprintf("%%arg%d", r.id)
	case RefConst:
		return r.c.String()
	case RefDetached:
		return fmt.Sprintf("<%s>", r.inst.Op)
	}
	return "<none>"
}

// Target is a branch destination; its arguments are stored among the operands
type Target struct {
	Block BlockID
	NArgs int
}

// Instruction is a single computation node
type Instruction struct {
	Op      Opcode
	Pred    Predicate
	Type    Type
	Callee  string
	Targets []Target
	Name    string
	Pos     Position

	id       ID
	block    BlockID
	operands []Ref
	users    []ID
	born     uint64
	died     uint64
}

// NewInstruction creates a detached instruction
func NewInstruction(op Opcode, typ Type, operands ...Ref) *Instruction {
	return &Instruction{
		Op:       op,
		Type:     typ,
		id:       NoID,
		block:    -1,
		operands: append([]Ref(nil), operands...),
	}
}

func Binary(op Opcode, typ Type, x, y Ref) *Instruction {
	return NewInstruction(op, typ, x, y)
}

func Unary(op Opcode, typ Type, x Ref) *Instruction {
	return NewInstruction(op, typ, x)
}

func ICmp(pred Predicate, x, y Ref) *Instruction {
	i := NewInstruction(OpICmp, Bool, x, y)
	i.Pred = pred
	return i
}

func Select(typ Type, cond, t, f Ref) *Instruction {
	return NewInstruction(OpSelect, typ, cond, t, f)
}

func Load(typ Type, ptr Ref) *Instruction {
	return NewInstruction(OpLoad, typ, ptr)
}

func Store(v, ptr Ref) *Instruction {
	return NewInstruction(OpStore, Void, v, ptr)
}

func Call(typ Type, callee string, args ...Ref) *Instruction {
	i := NewInstruction(OpCall, typ, args...)
	i.Callee = callee
	return i
}

// Ret creates a return; pass no value for a void return
func Ret(v ...Ref) *Instruction {
	return NewInstruction(OpRet, Void, v...)
}

func Jmp(dest BlockID, args ...Ref) *Instruction {
	i := NewInstruction(OpJmp, Void, args...)
	i.Targets = []Target{{Block: dest, NArgs: len(args)}}
	return i
}

func Br(cond Ref, then BlockID, thenArgs []Ref, els BlockID, elseArgs []Ref) *Instruction {
	ops := append([]Ref{cond}, thenArgs...)
	ops = append(ops, elseArgs...)
	i := NewInstruction(OpBr, Void, ops...)
	i.Targets = []Target{{Block: then, NArgs: len(thenArgs)}, {Block: els, NArgs: len(elseArgs)}}
	return i
}

func (i *Instruction) ID() ID            { return i.id }
func (i *Instruction) Block() BlockID    { return i.block }
func (i *Instruction) NumOperands() int  { return len(i.operands) }
func (i *Instruction) Operand(n int) Ref { return i.operands[n] }

// Operands returns the operand list; callers must not modify it
func (i *Instruction) Operands() []Ref { return i.operands }

// IsDetached reports whether the instruction has not been inserted yet
func (i *Instruction) IsDetached() bool { return i.id == NoID }

// Removed reports whether the instruction was deleted from its block
func (i *Instruction) Removed() bool { return i.died != 0 }

func (i *Instruction) Born() uint64 { return i.born }
func (i *Instruction) Died() uint64 { return i.died }

// NumUses returns the number of operand slots referring to the instruction
func (i *Instruction) NumUses() int { return len(i.users) }

// TargetArgs returns the block arguments passed to the n-th branch target
func (i *Instruction) TargetArgs(n int) []Ref {
	start := 0
	if i.Op == OpBr {
		start = 1
	}
	for k := 0; k < n; k++ {
		start += i.Targets[k].NArgs
	}
	return i.operands[start : start+i.Targets[n].NArgs]
}

// Param is a block parameter. The parameters of the entry block are the
// function arguments.
type Param struct {
	ID    ParamID
	Name  string
	Type  Type
	Block BlockID
	Index int
}

// Block is a basic block: a straight-line instruction sequence ending in a terminator
type Block struct {
	ID     BlockID
	Name   string
	Params []ParamID
	insts  []ID
}

// Instructions returns the IDs in program order; callers must not modify it
func (b *Block) Instructions() []ID { return b.insts }

func (b *Block) Len() int { return len(b.insts) }

// Function owns the instruction arena, its blocks and parameters
type Function struct {
	Name   string
	Result Type
	Blocks []*Block

	params []*Param
	insts  []*Instruction
	epoch  uint64
}

// NewFunction creates an empty function
func NewFunction(name string, result Type) *Function {
	return &Function{Name: name, Result: result, epoch: 1}
}

// Epoch returns the current mutation generation
func (f *Function) Epoch() uint64 { return f.epoch }

// NewBlock appends a new empty block
func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: BlockID(len(f.Blocks)), Name: name}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the first block or nil
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block returns the block with the given ID
func (f *Function) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

// AddParam appends a parameter to a block
func (f *Function) AddParam(b *Block, name string, typ Type) ParamID {
	p := &Param{
		ID:    ParamID(len(f.params)),
		Name:  name,
		Type:  typ,
		Block: b.ID,
		Index: len(b.Params),
	}
	f.params = append(f.params, p)
	b.Params = append(b.Params, p.ID)
	return p.ID
}

// Param returns the parameter with the given ID or nil
func (f *Function) Param(id ParamID) *Param {
	if id < 0 || int(id) >= len(f.params) {
		return nil
	}
	return f.params[id]
}

// Args returns the function arguments
func (f *Function) Args() []ParamID {
	if e := f.Entry(); e != nil {
		return e.Params
	}
	return nil
}

// Inst returns the instruction with the given ID, including removed ones, or nil
func (f *Function) Inst(id ID) *Instruction {
	if id < 0 || int(id) >= len(f.insts) {
		return nil
	}
	return f.insts[id]
}

// Live returns the instruction if it exists and has not been removed
func (f *Function) Live(id ID) (*Instruction, bool) {
	i := f.Inst(id)
	if i == nil || i.Removed() {
		return nil, false
	}
	return i, true
}

// LiveAt reports whether an instruction observed at the given epoch is still
// the same live instruction.
func (f *Function) LiveAt(id ID, epoch uint64) bool {
	i, ok := f.Live(id)
	return ok && i.born <= epoch
}

// Def resolves a computed ref to its instruction, inserted or detached
func (f *Function) Def(r Ref) (*Instruction, bool) {
	switch r.kind {
	case RefInst:
		return f.Live(ID(r.id))
	case RefDetached:
		return r.inst, true
	}
	return nil, false
}

// TypeOf returns the type of the value a ref names
func (f *Function) TypeOf(r Ref) Type {
	switch r.kind {
	case RefInst:
		if i := f.Inst(ID(r.id)); i != nil {
			return i.Type
		}
	case RefParam:
		if p := f.Param(ParamID(r.id)); p != nil {
			return p.Type
		}
	case RefConst:
		return r.c.Type()
	case RefDetached:
		return r.inst.Type
	}
	return Void
}

// NextID returns the ID the next inserted instruction will get
func (f *Function) NextID() ID { return ID(len(f.insts)) }

// Len returns the number of live instructions
func (f *Function) Len() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.insts)
	}
	return n
}

// Walk visits every live instruction in program order, block by block
func (f *Function) Walk(fn func(b *Block, i *Instruction)) {
	for _, b := range f.Blocks {
		for _, id := range b.insts {
			fn(b, f.insts[id])
		}
	}
}

// Position returns the index of a live instruction inside its block
func (f *Function) Position(id ID) (BlockID, int, bool) {
	i, ok := f.Live(id)
	if !ok {
		return -1, -1, false
	}
	for n, v := range f.Blocks[i.block].insts {
		if v == id {
			return i.block, n, true
		}
	}
	return -1, -1, false
}

// Next returns the instruction structurally following id in its block
func (f *Function) Next(id ID) (ID, bool) {
	b, n, ok := f.Position(id)
	if !ok || n+1 >= len(f.Blocks[b].insts) {
		return NoID, false
	}
	return f.Blocks[b].insts[n+1], true
}

// Prev returns the instruction structurally preceding id in its block
func (f *Function) Prev(id ID) (ID, bool) {
	b, n, ok := f.Position(id)
	if !ok || n == 0 {
		return NoID, false
	}
	return f.Blocks[b].insts[n-1], true
}

// Terminator returns the last instruction of b if it is a terminator
func (f *Function) Terminator(b *Block) (*Instruction, bool) {
	if len(b.insts) == 0 {
		return nil, false
	}
	i := f.insts[b.insts[len(b.insts)-1]]
	return i, i.Op.IsTerminator()
}

// Successors returns the blocks the terminator of b branches to
func (f *Function) Successors(b *Block) []BlockID {
	t, ok := f.Terminator(b)
	if !ok {
		return nil
	}
	out := make([]BlockID, 0, len(t.Targets))
	for _, tg := range t.Targets {
		out = append(out, tg.Block)
	}
	return out
}

// Users returns the distinct instructions using id, in first-use order
func (f *Function) Users(id ID) []ID {
	i := f.Inst(id)
	if i == nil {
		return nil
	}
	seen := make(map[ID]bool, len(i.users))
	out := make([]ID, 0, len(i.users))
	for _, u := range i.users {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Append inserts inst at the end of b
func (f *Function) Append(b *Block, inst *Instruction) ID {
	f.materializeOperands(inst, b.ID, len(b.insts))
	return f.insert(b, len(b.insts), inst)
}

// InsertBefore inserts inst immediately before the live instruction pos
func (f *Function) InsertBefore(pos ID, inst *Instruction) ID {
	b, n, ok := f.Position(pos)
	if !ok {
		panic(fmt.Sprintf("ir: insert before dead instruction %d", pos))
	}
	n = f.materializeOperands(inst, b, n)
	return f.insert(f.Blocks[b], n, inst)
}

// Materialize inserts the detached instructions a ref depends on before pos
// and returns the ref to use in their place. Other refs are returned as is.
func (f *Function) Materialize(r Ref, pos ID) Ref {
	d, ok := r.Detached()
	if !ok {
		return r
	}
	if !d.IsDetached() {
		return InstRef(d.id)
	}
	return InstRef(f.InsertBefore(pos, d))
}

// materializeOperands inserts detached operands of inst at index n of block b
// and returns the index inst itself should be inserted at.
func (f *Function) materializeOperands(inst *Instruction, b BlockID, n int) int {
	for k, op := range inst.operands {
		d, ok := op.Detached()
		if !ok {
			continue
		}
		if d.IsDetached() {
			n = f.materializeOperands(d, b, n)
			f.insert(f.Blocks[b], n, d)
			n++
		}
		inst.operands[k] = InstRef(d.id)
	}
	return n
}

func (f *Function) insert(b *Block, n int, inst *Instruction) ID {
	if !inst.IsDetached() {
		panic(fmt.Sprintf("ir: instruction %d inserted twice", inst.id))
	}
	f.epoch++
	inst.id = ID(len(f.insts))
	inst.block = b.ID
	inst.born = f.epoch
	f.insts = append(f.insts, inst)

	b.insts = append(b.insts, 0)
	copy(b.insts[n+1:], b.insts[n:])
	b.insts[n] = inst.id

	for _, op := range inst.operands {
		f.addUse(op, inst.id)
	}
	return inst.id
}

func (f *Function) addUse(r Ref, user ID) {
	if id, ok := r.Inst(); ok {
		def := f.Inst(id)
		def.users = append(def.users, user)
	}
}

func (f *Function) dropUse(r Ref, user ID) {
	id, ok := r.Inst()
	if !ok {
		return
	}
	def := f.Inst(id)
	for k, u := range def.users {
		if u == user {
			def.users = append(def.users[:k], def.users[k+1:]...)
			return
		}
	}
}

// SetOperand replaces the n-th operand of a live instruction
func (f *Function) SetOperand(id ID, n int, r Ref) {
	i, ok := f.Live(id)
	if !ok {
		panic(fmt.Sprintf("ir: set operand of dead instruction %d", id))
	}
	if r.kind == RefDetached {
		r = f.Materialize(r, id)
	}
	f.dropUse(i.operands[n], id)
	i.operands[n] = r
	f.addUse(r, id)
}

// ReplaceAllUsesWith redirects every use of id to r
func (f *Function) ReplaceAllUsesWith(id ID, r Ref) {
	if other, ok := r.Inst(); ok && other == id {
		return
	}
	for _, u := range f.Users(id) {
		user := f.insts[u]
		for n, op := range user.operands {
			if other, ok := op.Inst(); ok && other == id {
				f.SetOperand(u, n, r)
			}
		}
	}
}

// Remove deletes a live instruction that has no remaining uses
func (f *Function) Remove(id ID) {
	i, ok := f.Live(id)
	if !ok {
		panic(fmt.Sprintf("ir: remove of dead instruction %d", id))
	}
	if len(i.users) != 0 {
		panic(fmt.Sprintf("ir: remove of instruction %d with %d uses", id, len(i.users)))
	}
	for _, op := range i.operands {
		f.dropUse(op, id)
	}
	b := f.Blocks[i.block]
	for n, v := range b.insts {
		if v == id {
			b.insts = append(b.insts[:n], b.insts[n+1:]...)
			break
		}
	}
	f.epoch++
	i.died = f.epoch
}

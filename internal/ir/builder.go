package ir

// Builder appends instructions to a current block of a function
type Builder struct {
	fn    *Function
	block *Block
}

// NewBuilder creates a builder positioned at the end of the entry block,
// creating it when the function has none.
func NewBuilder(fn *Function) *Builder {
	b := fn.Entry()
	if b == nil {
		b = fn.NewBlock("entry")
	}
	return &Builder{fn: fn, block: b}
}

func (b *Builder) Function() *Function { return b.fn }
func (b *Builder) Block() *Block       { return b.block }

// SetBlock moves the insertion point to the end of blk
func (b *Builder) SetBlock(blk *Block) { b.block = blk }

// Param adds a parameter to the current block
func (b *Builder) Param(name string, typ Type) Ref {
	return ParamRef(b.fn.AddParam(b.block, name, typ))
}

// Emit appends inst and returns a ref to its value
func (b *Builder) Emit(inst *Instruction) Ref {
	return InstRef(b.fn.Append(b.block, inst))
}

// Named appends inst under a source name
func (b *Builder) Named(name string, inst *Instruction) Ref {
	inst.Name = name
	return b.Emit(inst)
}

func (b *Builder) Const(typ Type, v int64) Ref {
	return ConstRef(ConstInt(typ, v))
}

func (b *Builder) Binary(op Opcode, x, y Ref) Ref {
	return b.Emit(Binary(op, b.fn.TypeOf(x), x, y))
}

func (b *Builder) Unary(op Opcode, x Ref) Ref {
	return b.Emit(Unary(op, b.fn.TypeOf(x), x))
}

func (b *Builder) ICmp(pred Predicate, x, y Ref) Ref {
	return b.Emit(ICmp(pred, x, y))
}

func (b *Builder) Select(cond, t, f Ref) Ref {
	return b.Emit(Select(b.fn.TypeOf(t), cond, t, f))
}

func (b *Builder) Load(typ Type, ptr Ref) Ref {
	return b.Emit(Load(typ, ptr))
}

func (b *Builder) Store(v, ptr Ref) ID {
	id, _ := b.Emit(Store(v, ptr)).Inst()
	return id
}

func (b *Builder) Call(typ Type, callee string, args ...Ref) Ref {
	return b.Emit(Call(typ, callee, args...))
}

func (b *Builder) Ret(v ...Ref) ID {
	id, _ := b.Emit(Ret(v...)).Inst()
	return id
}

func (b *Builder) Jmp(dest *Block, args ...Ref) ID {
	id, _ := b.Emit(Jmp(dest.ID, args...)).Inst()
	return id
}

func (b *Builder) Br(cond Ref, then *Block, thenArgs []Ref, els *Block, elseArgs []Ref) ID {
	id, _ := b.Emit(Br(cond, then.ID, thenArgs, els.ID, elseArgs)).Inst()
	return id
}

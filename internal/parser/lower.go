package parser

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"peephole/grammar"
	"peephole/internal/analysis"
	"peephole/internal/errors"
	"peephole/internal/ir"

	"github.com/alecthomas/participle/v2/lexer"
)

// lowerer turns one grammar function into an ir.Function. Blocks are created
// first so branches may name later labels; operands naming values defined
// further down are patched once every instruction exists.
type lowerer struct {
	fn     *ir.Function
	values map[string]ir.Ref
	blocks map[string]*ir.Block
	fixups []fixup
	errs   []errors.CompilerError
}

// fixup is an operand left empty until its definition has been seen
type fixup struct {
	inst ir.ID
	n    int
	v    *grammar.Value
}

func lowerFunction(gf *grammar.Function) (*ir.Function, []errors.CompilerError) {
	l := &lowerer{
		values: make(map[string]ir.Ref),
		blocks: make(map[string]*ir.Block),
	}

	result := ir.Void
	if gf.Result != "" {
		result = l.typ(gf.Result, gf.Pos)
	}
	l.fn = ir.NewFunction(strings.TrimPrefix(gf.Name, "@"), result)

	l.declareBlocks(gf)
	for n, gb := range gf.Blocks {
		blk := l.fn.Blocks[n]
		for _, gi := range gb.Instructions {
			l.instruction(blk, gi)
		}
	}
	l.resolve()

	if len(l.errs) > 0 {
		return nil, l.errs
	}
	if err := ir.Validate(l.fn); err != nil {
		return nil, []errors.CompilerError{errors.InvalidFunction(gf.Name, err, position(gf.Pos))}
	}
	l.dominance(gf)
	if hasError(l.errs) {
		return nil, l.errs
	}
	return l.fn, l.errs
}

func hasError(errs []errors.CompilerError) bool {
	for _, e := range errs {
		if e.Level == errors.Error {
			return true
		}
	}
	return false
}

func (l *lowerer) errorf(e errors.CompilerError) {
	l.errs = append(l.errs, e)
}

// declareBlocks creates every block and its parameters. Function parameters
// belong to the entry block.
func (l *lowerer) declareBlocks(gf *grammar.Function) {
	if len(gf.Blocks) == 0 {
		entry := l.fn.NewBlock("entry")
		l.params(entry, gf.Params)
		return
	}
	for n, gb := range gf.Blocks {
		if _, dup := l.blocks[gb.Label]; dup {
			l.errorf(errors.DuplicateBlock(gb.Label, position(gb.Pos)))
		}
		blk := l.fn.NewBlock(gb.Label)
		l.blocks[gb.Label] = blk
		if n == 0 {
			l.params(blk, gf.Params)
			if len(gb.Params) > 0 {
				l.errorf(errors.NewError(errors.ErrorInvalidFunction,
					"the entry block takes the function parameters", position(gb.Pos)).
					WithLength(len(gb.Label)).
					WithSuggestion("move the parameters into the function header").
					Build())
			}
			continue
		}
		l.params(blk, gb.Params)
	}
}

func (l *lowerer) params(blk *ir.Block, params []*grammar.Param) {
	for _, gp := range params {
		typ := l.typ(gp.Type, gp.Pos)
		id := l.fn.AddParam(blk, strings.TrimPrefix(gp.Name, "%"), typ)
		l.define(gp.Name, ir.ParamRef(id), gp.Pos)
	}
}

func (l *lowerer) define(name string, r ir.Ref, pos lexer.Position) {
	if _, dup := l.values[name]; dup {
		l.errorf(errors.DuplicateValue(name, position(pos)))
		return
	}
	l.values[name] = r
}

func (l *lowerer) typ(name string, pos lexer.Position) ir.Type {
	t, ok := ir.ParseType(name)
	if !ok {
		l.errorf(errors.UnknownType(name, position(pos)))
		return ir.Int(32)
	}
	return t
}

// pending is an operand that resolve fills in later
type pending struct {
	n int
	v *grammar.Value
}

// operands accumulates the operands of one instruction under construction
type operands struct {
	refs []ir.Ref
	late []pending
}

func (o *operands) add(r ir.Ref, late *grammar.Value) {
	if late != nil {
		o.late = append(o.late, pending{n: len(o.refs), v: late})
	}
	o.refs = append(o.refs, r)
}

// value resolves v in a position of type typ
func (l *lowerer) value(ops *operands, v *grammar.Value, typ ir.Type) {
	switch {
	case v.Local != "":
		if r, ok := l.values[v.Local]; ok {
			ops.add(r, nil)
		} else {
			ops.add(ir.Ref{}, v)
		}
	case v.Bool != "":
		if !typ.IsBool() {
			l.errorf(errors.ConstantRange(v.Bool, typ, position(v.Pos)))
		}
		ops.add(ir.ConstRef(ir.ConstBool(v.Bool == "true")), nil)
	default:
		ops.add(l.integer(v, typ), nil)
	}
}

func (l *lowerer) integer(v *grammar.Value, typ ir.Type) ir.Ref {
	n, ok := new(big.Int).SetString(v.Int, 10)
	if !ok || typ.IsVoid() || typ.IsBool() {
		l.errorf(errors.ConstantRange(v.Int, typ, position(v.Pos)))
		return ir.ConstRef(ir.ConstInt(ir.Int(32), 0))
	}
	lo := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(typ.Bits-1)))
	hi := new(big.Int).Lsh(big.NewInt(1), uint(typ.Bits))
	if n.Cmp(lo) < 0 || n.Cmp(hi) >= 0 {
		l.errorf(errors.ConstantRange(v.Int, typ, position(v.Pos)))
	}
	return ir.ConstRef(ir.NewConstant(typ, n))
}

// typedValue resolves an operand whose type is written next to it, falling
// back to hint when absent
func (l *lowerer) typedValue(ops *operands, tv *grammar.TypedValue, hint ir.Type, haveHint bool) {
	switch {
	case tv.Type != "":
		l.value(ops, tv.Value, l.typ(tv.Type, tv.Pos))
	case tv.Value.Bool != "":
		l.value(ops, tv.Value, ir.Bool)
	case tv.Value.Int != "" && !haveHint:
		l.errorf(errors.UntypedConstant(tv.Value.Int, position(tv.Value.Pos)))
		ops.add(ir.ConstRef(ir.ConstInt(ir.Int(32), 0)), nil)
	default:
		l.value(ops, tv.Value, hint)
	}
}

func (l *lowerer) block(t *grammar.Target) (*ir.Block, bool) {
	blk, ok := l.blocks[t.Label]
	if !ok {
		known := make([]string, 0, len(l.blocks))
		for name := range l.blocks {
			known = append(known, name)
		}
		sort.Strings(known)
		l.errorf(errors.UndefinedBlock(t.Label, position(t.Pos), known))
	}
	return blk, ok
}

// target resolves a branch target and appends its arguments to ops
func (l *lowerer) target(ops *operands, t *grammar.Target) (ir.BlockID, int, bool) {
	blk, ok := l.block(t)
	if !ok {
		return 0, 0, false
	}
	for k, a := range t.Args {
		var hint ir.Type
		have := k < len(blk.Params)
		if have {
			hint = l.fn.Param(blk.Params[k]).Type
		}
		l.typedValue(ops, a, hint, have)
	}
	return blk.ID, len(t.Args), true
}

func (l *lowerer) instruction(blk *ir.Block, gi *grammar.Instruction) {
	inst, late := l.build(gi)
	if inst == nil {
		return
	}
	inst.Pos = position(gi.Pos)
	if gi.Result != "" {
		if inst.Type.IsVoid() {
			l.errorf(errors.VoidResult(gi.Result, inst.Op.String(), position(gi.Pos)))
			return
		}
		inst.Name = strings.TrimPrefix(gi.Result, "%")
	}

	id := l.fn.Append(blk, inst)
	for _, p := range late {
		l.fixups = append(l.fixups, fixup{inst: id, n: p.n, v: p.v})
	}
	if gi.Result != "" {
		l.define(gi.Result, ir.InstRef(id), gi.Pos)
	}
}

// build creates the detached instruction for gi. Operands that name values
// not yet defined are returned as pending.
func (l *lowerer) build(gi *grammar.Instruction) (*ir.Instruction, []pending) {
	ops := &operands{}
	switch {
	case gi.Jmp != nil:
		dest, n, ok := l.target(ops, gi.Jmp)
		if !ok {
			return nil, nil
		}
		inst := ir.NewInstruction(ir.OpJmp, ir.Void, ops.refs...)
		inst.Targets = []ir.Target{{Block: dest, NArgs: n}}
		return inst, ops.late

	case gi.Br != nil:
		l.value(ops, gi.Br.Cond, ir.Bool)
		then, nThen, ok1 := l.target(ops, gi.Br.Then)
		els, nElse, ok2 := l.target(ops, gi.Br.Else)
		if !ok1 || !ok2 {
			return nil, nil
		}
		inst := ir.NewInstruction(ir.OpBr, ir.Void, ops.refs...)
		inst.Targets = []ir.Target{{Block: then, NArgs: nThen}, {Block: els, NArgs: nElse}}
		return inst, ops.late

	case gi.Ret != nil:
		if gi.Ret.Value == nil {
			return ir.Ret(), nil
		}
		l.value(ops, gi.Ret.Value, l.typ(gi.Ret.Type, gi.Ret.Pos))
		return ir.Ret(ops.refs...), ops.late

	case gi.Call != nil:
		typ := l.typ(gi.Call.Type, gi.Call.Pos)
		for _, a := range gi.Call.Args {
			l.typedValue(ops, a, ir.Type{}, false)
		}
		return ir.Call(typ, strings.TrimPrefix(gi.Call.Callee, "@"), ops.refs...), ops.late

	case gi.ICmp != nil:
		pred, ok := ir.ParsePredicate(gi.ICmp.Predicate)
		if !ok {
			l.errorf(errors.UnknownPredicate(gi.ICmp.Predicate, position(gi.ICmp.Pos)))
			return nil, nil
		}
		typ := l.typ(gi.ICmp.Type, gi.ICmp.Pos)
		l.value(ops, gi.ICmp.Left, typ)
		l.value(ops, gi.ICmp.Right, typ)
		return ir.ICmp(pred, ops.refs[0], ops.refs[1]), ops.late
	}
	return l.operation(gi.Op, ops)
}

// operation lowers the opcodes spelled `op type operands`
func (l *lowerer) operation(g *grammar.Operation, ops *operands) (*ir.Instruction, []pending) {
	op, ok := ir.ParseOpcode(g.Opcode)
	if !ok || !spelledAsOperation(op) {
		l.errorf(errors.UnknownOpcode(g.Opcode, position(g.Pos), operationNames()))
		return nil, nil
	}
	typ := l.typ(g.Type, g.Pos)

	want := arity(op)
	if len(g.Operands) != want {
		l.errorf(errors.OperandCount(g.Opcode, want, len(g.Operands), position(g.Pos)))
		return nil, nil
	}
	for n, v := range g.Operands {
		l.value(ops, v, operandType(op, typ, n))
	}

	result := typ
	if op == ir.OpStore {
		result = ir.Void
	}
	return ir.NewInstruction(op, result, ops.refs...), ops.late
}

func spelledAsOperation(op ir.Opcode) bool {
	switch op {
	case ir.OpInvalid, ir.OpICmp, ir.OpCall, ir.OpRet, ir.OpBr, ir.OpJmp:
		return false
	}
	return true
}

func operationNames() []string {
	var names []string
	for op := ir.OpInvalid + 1; op <= ir.OpJmp; op++ {
		if spelledAsOperation(op) {
			names = append(names, op.String())
		}
	}
	return names
}

func arity(op ir.Opcode) int {
	switch {
	case op == ir.OpSelect:
		return 3
	case op == ir.OpStore:
		return 2
	case op == ir.OpLoad, op.IsUnary():
		return 1
	}
	return 2
}

// operandType is the type constants take in operand n of op. The written
// type of a store is the stored value's, of a load the loaded value's.
func operandType(op ir.Opcode, typ ir.Type, n int) ir.Type {
	switch {
	case op == ir.OpSelect && n == 0:
		return ir.Bool
	case op == ir.OpStore && n == 1, op == ir.OpLoad:
		return ir.Ptr
	}
	return typ
}

// resolve patches forward references
func (l *lowerer) resolve() {
	for _, f := range l.fixups {
		r, ok := l.values[f.v.Local]
		if !ok {
			l.errorf(errors.UndefinedValue(f.v.Local, position(f.v.Pos), l.names()))
			continue
		}
		l.fn.SetOperand(f.inst, f.n, r)
	}
}

func (l *lowerer) names() []string {
	names := make([]string, 0, len(l.values))
	for name := range l.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dominance checks that every definition dominates its uses and warns about
// unreachable blocks, where no use is checked
func (l *lowerer) dominance(gf *grammar.Function) {
	dom := analysis.NewDominance(l.fn)
	for n, b := range l.fn.Blocks {
		if !dom.Reachable(b.ID) {
			l.errorf(errors.UnreachableBlock(b.Name, position(gf.Blocks[n].Pos)))
		}
	}
	l.fn.Walk(func(b *ir.Block, i *ir.Instruction) {
		if !dom.Reachable(b.ID) {
			return
		}
		for _, op := range i.Operands() {
			ok := true
			if def, isInst := op.Inst(); isInst {
				ok = dom.Dominates(def, i.ID())
			} else if pid, isParam := op.Param(); isParam {
				ok = dom.BlockDominates(l.fn.Param(pid).Block, b.ID)
			}
			if !ok {
				l.errorf(errors.NewError(errors.ErrorInvalidFunction,
					fmt.Sprintf("%s does not dominate its use", ir.FormatRef(l.fn, op)), i.Pos).
					WithNote("a value may only be used in blocks its definition dominates").
					WithHelp("pass the value as a block argument instead").
					Build())
			}
		}
	})
}

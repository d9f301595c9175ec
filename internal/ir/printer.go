package ir

import (
	"fmt"
	"strings"
)

// Printer provides pretty-printing for IR in the textual .pir syntax
type Printer struct {
	indent int
	output strings.Builder

	fn     *Function
	locals map[Ref]string
	used   map[string]bool
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the textual form of a function
func Print(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

// PrintAll returns the textual form of several functions separated by blank lines
func PrintAll(fns []*Function) string {
	parts := make([]string, 0, len(fns))
	for _, fn := range fns {
		parts = append(parts, Print(fn))
	}
	return strings.Join(parts, "\n")
}

// FormatInstruction renders one instruction of fn on a single line
func FormatInstruction(fn *Function, id ID) string {
	p := NewPrinter()
	p.nameValues(fn)
	p.printInstruction(fn.Inst(id))
	return strings.TrimSpace(p.output.String())
}

// FormatRef renders a value the way it appears as an operand in fn
func FormatRef(fn *Function, r Ref) string {
	p := NewPrinter()
	p.nameValues(fn)
	return p.operand(r)
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

// nameValues gives every parameter and live instruction a unique local name
func (p *Printer) nameValues(fn *Function) {
	p.fn = fn
	p.locals = make(map[Ref]string)
	p.used = make(map[string]bool)

	for _, b := range fn.Blocks {
		for _, pid := range b.Params {
			param := fn.Param(pid)
			p.assign(ParamRef(pid), param.Name, fmt.Sprintf("arg%d", pid))
		}
	}
	fn.Walk(func(_ *Block, i *Instruction) {
		if !i.Type.IsVoid() {
			p.assign(InstRef(i.id), i.Name, fmt.Sprintf("%d", i.id))
		}
	})
}

func (p *Printer) assign(r Ref, name, fallback string) {
	if name == "" {
		name = fallback
	}
	base := name
	for n := 1; p.used[name]; n++ {
		name = fmt.Sprintf("%s.%d", base, n)
	}
	p.used[name] = true
	p.locals[r] = "%" + name
}

func (p *Printer) blockLabel(id BlockID) string {
	b := p.fn.Block(id)
	if b == nil {
		return fmt.Sprintf("bb%d", id)
	}
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bb%d", id)
}

func (p *Printer) operand(r Ref) string {
	if c, ok := r.Const(); ok {
		return c.String()
	}
	if name, ok := p.locals[r]; ok {
		return name
	}
	return r.String()
}

// typedOperand prints constants with their type where the context does not fix it
func (p *Printer) typedOperand(r Ref) string {
	if c, ok := r.Const(); ok && !c.Type().IsBool() {
		return c.Type().String() + " " + c.String()
	}
	return p.operand(r)
}

func (p *Printer) operands(refs []Ref) string {
	parts := make([]string, len(refs))
	for k, r := range refs {
		parts[k] = p.operand(r)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) params(b *Block) string {
	parts := make([]string, len(b.Params))
	for k, pid := range b.Params {
		parts[k] = fmt.Sprintf("%s: %s", p.locals[ParamRef(pid)], p.fn.Param(pid).Type)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) printFunction(fn *Function) {
	p.nameValues(fn)

	header := fmt.Sprintf("func @%s(", fn.Name)
	if e := fn.Entry(); e != nil {
		header += p.params(e)
	}
	header += ")"
	if !fn.Result.IsVoid() {
		header += " -> " + fn.Result.String()
	}
	p.writeLine("%s {", header)

	for n, b := range fn.Blocks {
		label := p.blockLabel(b.ID)
		if n > 0 && len(b.Params) > 0 {
			p.writeLine("%s(%s):", label, p.params(b))
		} else {
			p.writeLine("%s:", label)
		}
		p.indent++
		for _, id := range b.insts {
			p.printInstruction(fn.insts[id])
		}
		p.indent--
	}
	p.writeLine("}")
}

func (p *Printer) target(i *Instruction, n int) string {
	label := p.blockLabel(i.Targets[n].Block)
	args := i.TargetArgs(n)
	if len(args) == 0 {
		return label
	}
	parts := make([]string, len(args))
	for k, a := range args {
		parts[k] = p.typedOperand(a)
	}
	return fmt.Sprintf("%s(%s)", label, strings.Join(parts, ", "))
}

func (p *Printer) printInstruction(i *Instruction) {
	def := ""
	if !i.Type.IsVoid() {
		def = p.locals[InstRef(i.id)] + " = "
	}

	switch i.Op {
	case OpICmp:
		p.writeLine("%s%s %s %s %s", def, i.Op, i.Pred, p.fn.TypeOf(i.operands[0]), p.operands(i.operands))
	case OpStore:
		p.writeLine("%s %s %s", i.Op, p.fn.TypeOf(i.operands[0]), p.operands(i.operands))
	case OpCall:
		args := make([]string, len(i.operands))
		for k, a := range i.operands {
			args[k] = p.typedOperand(a)
		}
		p.writeLine("%s%s %s @%s(%s)", def, i.Op, i.Type, i.Callee, strings.Join(args, ", "))
	case OpRet:
		if len(i.operands) == 0 {
			p.writeLine("ret")
		} else {
			p.writeLine("ret %s %s", p.fn.TypeOf(i.operands[0]), p.operand(i.operands[0]))
		}
	case OpJmp:
		p.writeLine("jmp %s", p.target(i, 0))
	case OpBr:
		p.writeLine("br %s, %s, %s", p.operand(i.operands[0]), p.target(i, 0), p.target(i, 1))
	default:
		p.writeLine("%s%s %s %s", def, i.Op, i.Type, p.operands(i.operands))
	}
}

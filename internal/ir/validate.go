package ir

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrInvalid is returned for a function that violates the IR contract
var ErrInvalid = errors.New("invalid IR")

// Validate checks block structure, operand references, use-lists, typing
// and acyclicity of the def-use graph.
func Validate(fn *Function) error {
	v := &validator{fn: fn}
	v.blocks()
	v.instructions()
	if len(v.problems) == 0 {
		v.acyclic()
	}
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: @%s: %s", ErrInvalid, fn.Name, strings.Join(v.problems, "; "))
}

type validator struct {
	fn       *Function
	problems []string
}

func (v *validator) errorf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) blocks() {
	if len(v.fn.Blocks) == 0 {
		v.errorf("function has no blocks")
		return
	}
	for _, b := range v.fn.Blocks {
		if len(b.insts) == 0 {
			v.errorf("block %s is empty", b.Name)
			continue
		}
		for n, id := range b.insts {
			i := v.fn.insts[id]
			last := n == len(b.insts)-1
			if i.IsTerminator() && !last {
				v.errorf("terminator %d in the middle of block %s", id, b.Name)
			}
			if !i.IsTerminator() && last {
				v.errorf("block %s does not end in a terminator", b.Name)
			}
			if i.Removed() || i.block != b.ID {
				v.errorf("block %s lists foreign instruction %d", b.Name, id)
			}
		}
	}
}

func (v *validator) instructions() {
	uses := make(map[ID]int)
	v.fn.Walk(func(b *Block, i *Instruction) {
		for n, op := range i.operands {
			switch op.kind {
			case RefInst:
				def := v.fn.Inst(ID(op.id))
				if def == nil {
					v.errorf("%d: operand %d refers to unknown instruction %d", i.id, n, op.id)
					continue
				}
				if def.Removed() {
					v.errorf("%d: operand %d refers to removed instruction %d", i.id, n, op.id)
					continue
				}
				uses[def.id]++
			case RefParam:
				if v.fn.Param(ParamID(op.id)) == nil {
					v.errorf("%d: operand %d refers to unknown parameter %d", i.id, n, op.id)
				}
			case RefConst:
				if op.c == nil {
					v.errorf("%d: operand %d is a nil constant", i.id, n)
				}
			case RefDetached:
				v.errorf("%d: operand %d is a detached instruction", i.id, n)
			default:
				v.errorf("%d: operand %d is empty", i.id, n)
			}
		}
		v.types(i)
		v.targets(i)
	})
	v.fn.Walk(func(_ *Block, i *Instruction) {
		if uses[i.id] != len(i.users) {
			v.errorf("%d: use-list has %d entries, found %d uses", i.id, len(i.users), uses[i.id])
		}
	})
}

func (v *validator) types(i *Instruction) {
	want := func(n int, t Type) {
		if n < len(i.operands) && i.operands[n].IsValid() && v.fn.TypeOf(i.operands[n]) != t {
			v.errorf("%d: operand %d has type %s, want %s", i.id, n, v.fn.TypeOf(i.operands[n]), t)
		}
	}
	arity := func(n int) bool {
		if len(i.operands) != n {
			v.errorf("%d: %s takes %d operands, has %d", i.id, i.Op, n, len(i.operands))
			return false
		}
		return true
	}

	switch {
	case i.Op.IsBinary():
		if arity(2) {
			if !i.Type.IsIntegral() {
				v.errorf("%d: %s on non-integer type %s", i.id, i.Op, i.Type)
			}
			want(0, i.Type)
			want(1, i.Type)
		}
	case i.Op.IsUnary():
		if arity(1) {
			want(0, i.Type)
		}
	case i.Op == OpICmp:
		if arity(2) {
			if i.Type != Bool {
				v.errorf("%d: icmp must produce bool", i.id)
			}
			want(1, v.fn.TypeOf(i.operands[0]))
		}
	case i.Op == OpSelect:
		if arity(3) {
			want(0, Bool)
			want(1, i.Type)
			want(2, i.Type)
		}
	case i.Op == OpLoad:
		if arity(1) {
			want(0, Ptr)
		}
	case i.Op == OpStore:
		if arity(2) {
			want(1, Ptr)
		}
	case i.Op == OpRet:
		if len(i.operands) == 0 && !v.fn.Result.IsVoid() {
			v.errorf("%d: ret without value in function returning %s", i.id, v.fn.Result)
		}
		if len(i.operands) == 1 {
			want(0, v.fn.Result)
		}
		if len(i.operands) > 1 {
			v.errorf("%d: ret takes at most one operand", i.id)
		}
	case i.Op == OpBr:
		if len(i.operands) > 0 {
			want(0, Bool)
		}
	}
}

func (v *validator) targets(i *Instruction) {
	want := 0
	switch i.Op {
	case OpBr:
		want = 2
	case OpJmp:
		want = 1
	default:
		return
	}
	if len(i.Targets) != want {
		v.errorf("%d: %s needs %d targets, has %d", i.id, i.Op, want, len(i.Targets))
		return
	}
	total := 0
	if i.Op == OpBr {
		total = 1
	}
	for _, t := range i.Targets {
		total += t.NArgs
	}
	if total != len(i.operands) {
		v.errorf("%d: target arguments do not match operand count", i.id)
		return
	}
	for n, t := range i.Targets {
		dest := v.fn.Block(t.Block)
		if dest == nil {
			v.errorf("%d: branch to unknown block %d", i.id, t.Block)
			continue
		}
		if t.Block == 0 {
			v.errorf("%d: branch to the entry block", i.id)
		}
		args := i.TargetArgs(n)
		if len(args) != len(dest.Params) {
			v.errorf("%d: %s expects %d arguments, got %d", i.id, dest.Name, len(dest.Params), len(args))
			continue
		}
		for k, a := range args {
			if got, exp := v.fn.TypeOf(a), v.fn.Param(dest.Params[k]).Type; got != exp {
				v.errorf("%d: argument %d to %s has type %s, want %s", i.id, k, dest.Name, got, exp)
			}
		}
	}
}

// acyclic sorts the def-use graph topologically; a cycle makes it unorderable
func (v *validator) acyclic() {
	g := simple.NewDirectedGraph()
	v.fn.Walk(func(_ *Block, i *Instruction) {
		if g.Node(int64(i.id)) == nil {
			g.AddNode(simple.Node(i.id))
		}
	})
	v.fn.Walk(func(_ *Block, i *Instruction) {
		for _, op := range i.operands {
			def, ok := op.Inst()
			if !ok {
				continue
			}
			if def == i.id {
				v.errorf("%d: instruction uses itself", i.id)
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(def), simple.Node(i.id)))
		}
	})
	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			for _, c := range cycles {
				ids := make([]string, len(c))
				for n, node := range c {
					ids[n] = fmt.Sprint(node.ID())
				}
				v.errorf("def-use cycle through %s", strings.Join(ids, ", "))
			}
			return
		}
		v.errorf("def-use graph: %v", err)
	}
}

package analysis

import (
	"peephole/internal/ir"

	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"
)

// Dominance answers dominance queries between instructions. Block dominance
// comes from the dominator tree of the CFG, which rewrites never change;
// positions inside a block are read from the live function.
type Dominance struct {
	fn    *ir.Function
	idom  map[ir.BlockID]ir.BlockID
	reach map[ir.BlockID]bool
}

// NewDominance computes the block dominator tree of fn
func NewDominance(fn *ir.Function) *Dominance {
	d := &Dominance{
		fn:    fn,
		idom:  make(map[ir.BlockID]ir.BlockID),
		reach: make(map[ir.BlockID]bool),
	}
	entry := fn.Entry()
	if entry == nil {
		return d
	}

	g := simple.NewDirectedGraph()
	for _, b := range fn.Blocks {
		g.AddNode(simple.Node(b.ID))
	}
	for _, b := range fn.Blocks {
		for _, s := range fn.Successors(b) {
			if s == b.ID || fn.Block(s) == nil {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(b.ID), simple.Node(s)))
		}
	}

	tree := flow.Dominators(simple.Node(entry.ID), g)
	d.reach[entry.ID] = true
	for _, b := range fn.Blocks {
		if b.ID == entry.ID {
			continue
		}
		if dom := tree.DominatorOf(int64(b.ID)); dom != nil {
			d.idom[b.ID] = ir.BlockID(dom.ID())
			d.reach[b.ID] = true
		}
	}
	return d
}

// IDom returns the immediate dominator of a reachable non-entry block
func (d *Dominance) IDom(b ir.BlockID) (ir.BlockID, bool) {
	p, ok := d.idom[b]
	return p, ok
}

// Reachable reports whether b is reachable from the entry block
func (d *Dominance) Reachable(b ir.BlockID) bool { return d.reach[b] }

// BlockDominates reports whether every path from the entry to b passes through a.
// A block dominates itself; unreachable blocks are dominated only by themselves.
func (d *Dominance) BlockDominates(a, b ir.BlockID) bool {
	if a == b {
		return true
	}
	if !d.reach[b] {
		return false
	}
	for cur, ok := d.idom[b]; ok; cur, ok = d.idom[cur] {
		if cur == a {
			return true
		}
	}
	return false
}

// Dominates reports whether instruction a dominates instruction b: both are
// live and a comes first in a shared block or a's block strictly dominates b's.
// An instruction dominates itself.
func (d *Dominance) Dominates(a, b ir.ID) bool {
	if a == b {
		_, ok := d.fn.Live(a)
		return ok
	}
	ba, na, ok := d.fn.Position(a)
	if !ok {
		return false
	}
	bb, nb, ok := d.fn.Position(b)
	if !ok {
		return false
	}
	if ba == bb {
		return na < nb
	}
	return d.BlockDominates(ba, bb)
}

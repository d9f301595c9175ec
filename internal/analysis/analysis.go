// Package analysis provides the dominance, memory and closed-form expression
// information the rewrite verifier consults.
package analysis

import "peephole/internal/ir"

// Info bundles the analyses of one function
type Info struct {
	Dominance *Dominance
	Memory    *MemorySSA
	Evolution *Evolution
}

// Compute builds every analysis for fn
func Compute(fn *ir.Function) *Info {
	dom := NewDominance(fn)
	return &Info{
		Dominance: dom,
		Memory:    NewMemorySSA(fn, dom),
		Evolution: NewEvolution(fn),
	}
}

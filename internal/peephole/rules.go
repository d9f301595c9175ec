// Package peephole rewrites single instructions and adjacent instruction pairs
// into cheaper equivalents, committing a rewrite only after the verifier
// accepts it.
package peephole

import (
	"fmt"
	"sort"

	"peephole/internal/ir"
)

// RuleKind selects the matcher and builder of a single-instruction rule
type RuleKind uint8

const (
	RuleFold RuleKind = iota
	RuleCompareSelf
	RuleCompareNotZero
	RuleSelectConst
	RuleSelectSame
	RuleSelf
	RuleIdentity
	RuleAnnihilate
	RuleDoubleComplement
	RuleStrength
)

func (k RuleKind) String() string {
	switch k {
	case RuleFold:
		return "fold"
	case RuleCompareSelf:
		return "compare-self"
	case RuleCompareNotZero:
		return "compare-not-zero"
	case RuleSelectConst:
		return "select-const"
	case RuleSelectSame:
		return "select-same"
	case RuleSelf:
		return "self"
	case RuleIdentity:
		return "identity"
	case RuleAnnihilate:
		return "annihilate"
	case RuleDoubleComplement:
		return "double-complement"
	case RuleStrength:
		return "strength"
	}
	return fmt.Sprintf("rule(%d)", uint8(k))
}

// Rule is one entry of the pattern table
type Rule struct {
	Kind        RuleKind
	Name        string
	Description string

	// Op is the opcode the rule applies to; OpInvalid matches any opcode
	Op ir.Opcode
	// Constant is the neutral or absorbing operand; -1 stands for all ones
	Constant int64
	// Commutative rules also match the constant on the left
	Commutative bool
	// Zero makes a self rule produce 0 instead of the operand
	Zero bool
	// To is the opcode strength reduction produces
	To ir.Opcode
}

func (r *Rule) String() string { return r.Name }

// Table is the ordered list of single-instruction rules. The first rule that
// matches and builds a value wins.
type Table struct {
	rules  []*Rule
	byName map[string]*Rule
}

func identity(op ir.Opcode, neutral int64, commutative bool, desc string) *Rule {
	return &Rule{Kind: RuleIdentity, Name: "identity-" + op.String(), Op: op, Constant: neutral, Commutative: commutative, Description: desc}
}

func annihilate(op ir.Opcode, absorbing int64, desc string) *Rule {
	return &Rule{Kind: RuleAnnihilate, Name: "annihilate-" + op.String(), Op: op, Constant: absorbing, Commutative: true, Description: desc}
}

func self(op ir.Opcode, zero bool, desc string) *Rule {
	return &Rule{Kind: RuleSelf, Name: "self-" + op.String(), Op: op, Zero: zero, Description: desc}
}

func strength(op, to ir.Opcode, commutative bool, desc string) *Rule {
	return &Rule{Kind: RuleStrength, Name: "strength-" + op.String(), Op: op, To: to, Commutative: commutative, Description: desc}
}

// DefaultRules returns the rule list in table order
func DefaultRules() []*Rule {
	return []*Rule{
		{Kind: RuleFold, Name: "fold", Description: "evaluate an operator whose operands are all constants"},

		{Kind: RuleCompareSelf, Name: "compare-self", Op: ir.OpICmp, Description: "x cmp x is decided by the predicate alone"},
		{Kind: RuleCompareNotZero, Name: "compare-not-zero", Op: ir.OpICmp, Description: "icmp eq|ne (not b), false -> icmp ne|eq b, false"},

		{Kind: RuleSelectConst, Name: "select-const", Op: ir.OpSelect, Description: "select with a constant condition picks an arm"},
		{Kind: RuleSelectSame, Name: "select-same", Op: ir.OpSelect, Description: "select c, x, x -> x"},

		self(ir.OpAnd, false, "x & x -> x"),
		self(ir.OpOr, false, "x | x -> x"),
		self(ir.OpXor, true, "x ^ x -> 0"),
		self(ir.OpSub, true, "x - x -> 0"),

		identity(ir.OpAdd, 0, true, "x + 0 -> x"),
		identity(ir.OpSub, 0, false, "x - 0 -> x"),
		identity(ir.OpMul, 1, true, "x * 1 -> x"),
		identity(ir.OpUDiv, 1, false, "x /u 1 -> x"),
		identity(ir.OpSDiv, 1, false, "x /s 1 -> x"),
		identity(ir.OpAnd, -1, true, "x & -1 -> x"),
		identity(ir.OpOr, 0, true, "x | 0 -> x"),
		identity(ir.OpXor, 0, true, "x ^ 0 -> x"),
		identity(ir.OpShl, 0, false, "x shl 0 -> x"),
		identity(ir.OpLShr, 0, false, "x lshr 0 -> x"),
		identity(ir.OpAShr, 0, false, "x ashr 0 -> x"),

		annihilate(ir.OpMul, 0, "x * 0 -> 0"),
		annihilate(ir.OpAnd, 0, "x & 0 -> 0"),
		annihilate(ir.OpOr, -1, "x | -1 -> -1"),

		{Kind: RuleDoubleComplement, Name: "double-not", Op: ir.OpNot, Description: "not (not x) -> x"},
		{Kind: RuleDoubleComplement, Name: "double-neg", Op: ir.OpNeg, Description: "neg (neg x) -> x"},

		strength(ir.OpMul, ir.OpShl, true, "x * 2^k -> x shl k"),
		strength(ir.OpUDiv, ir.OpLShr, false, "x /u 2^k -> x lshr k"),
		strength(ir.OpSDiv, ir.OpAShr, false, "x /s 2^k -> x ashr k"),
	}
}

// NewTable builds the pattern table without the named rules
func NewTable(disabled ...string) (*Table, error) {
	t := &Table{byName: make(map[string]*Rule)}
	for _, r := range DefaultRules() {
		t.byName[r.Name] = r
	}
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		if _, ok := t.byName[name]; !ok && !isWindowRule(name) {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
		off[name] = true
	}
	for _, r := range DefaultRules() {
		if !off[r.Name] {
			t.rules = append(t.rules, t.byName[r.Name])
		}
	}
	return t, nil
}

// Rules returns the enabled rules in table order
func (t *Table) Rules() []*Rule { return t.rules }

// Lookup finds a rule by name, enabled or not
func (t *Table) Lookup(name string) (*Rule, bool) {
	r, ok := t.byName[name]
	return r, ok
}

// RuleNames lists every single-instruction and window rule name, sorted
func RuleNames() []string {
	var names []string
	for _, r := range DefaultRules() {
		names = append(names, r.Name)
	}
	for _, r := range DefaultWindowRules() {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// Candidate is a proposed replacement for one instruction
type Candidate struct {
	Rule  *Rule
	Value ir.Ref
}

// Match returns the first rule that builds a replacement for id. The
// function is not modified.
func (t *Table) Match(fn *ir.Function, id ir.ID) (Candidate, bool) {
	i, ok := fn.Live(id)
	if !ok {
		return Candidate{}, false
	}
	for _, r := range t.rules {
		if r.Op != ir.OpInvalid && r.Op != i.Op {
			continue
		}
		if v, ok := r.apply(fn, i); ok {
			return Candidate{Rule: r, Value: v}, true
		}
	}
	return Candidate{}, false
}

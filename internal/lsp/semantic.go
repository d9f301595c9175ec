package lsp

import (
	"sort"
	"strings"
	"unicode/utf8"

	"peephole/grammar"
	"peephole/internal/ir"

	"github.com/alecthomas/participle/v2/lexer"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into the semanticTokenTypes array
// TokenModifiers is a bitmask based on semanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into semanticTokenTypes
	TokenModifiers int // bitmask
}

// keywords are the identifiers with a fixed meaning, sorted
func keywords() []string {
	words := []string{"func", "true", "false"}
	for op := ir.OpAdd; ; op++ {
		name := op.String()
		if _, ok := ir.ParseOpcode(name); !ok {
			break
		}
		words = append(words, name)
	}
	for _, p := range []ir.Predicate{ir.PredEQ, ir.PredNE, ir.PredULT, ir.PredULE, ir.PredUGT,
		ir.PredUGE, ir.PredSLT, ir.PredSLE, ir.PredSGT, ir.PredSGE} {
		words = append(words, p.String())
	}
	sort.Strings(words)
	return words
}

// collectSemanticTokens lexes content and classifies every significant
// token. Lexing stops at the first character the lexer rejects.
func collectSemanticTokens(filename, content string) []SemanticToken {
	symbols := grammar.Lexer.Symbols()
	lex, err := grammar.Lexer.Lex(filename, strings.NewReader(content))
	if err != nil {
		return nil
	}

	var toks []lexer.Token
	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			break
		}
		if tok.Type == symbols["Whitespace"] {
			continue
		}
		toks = append(toks, tok)
	}

	next := func(n int) string {
		if n+1 < len(toks) {
			return toks[n+1].Value
		}
		return ""
	}

	var tokens []SemanticToken
	for n, tok := range toks {
		var kind string
		decl := 0
		switch tok.Type {
		case symbols["Comment"]:
			kind = "comment"
		case symbols["Global"]:
			kind = "function"
			if n > 0 && toks[n-1].Value == "func" {
				decl = 1
			}
		case symbols["Local"]:
			switch next(n) {
			case ":":
				kind, decl = "parameter", 1
			case "=":
				kind, decl = "variable", 1
			default:
				kind = "variable"
			}
		case symbols["Type"]:
			kind = "type"
		case symbols["Int"]:
			kind = "number"
		case symbols["Ident"]:
			lineStart := n == 0 || toks[n-1].Pos.Line != tok.Pos.Line
			kind, decl = classifyIdent(tok.Value, lineStart)
		default:
			continue
		}
		tokens = append(tokens, makeToken(tok.Pos, tok.Value, kind, decl)...)
	}

	return tokens
}

func classifyIdent(value string, lineStart bool) (string, int) {
	if _, ok := ir.ParseOpcode(value); ok {
		return "operator", 0
	}
	if _, ok := ir.ParsePredicate(value); ok {
		return "modifier", 0
	}
	switch value {
	case "func", "true", "false":
		return "keyword", 0
	}
	// block labels are declared at the start of a line
	if lineStart {
		return "namespace", 1
	}
	return "namespace", 0
}

func makeToken(pos lexer.Position, value, tokenType string, declModifier int) []SemanticToken {
	if pos.Line < 1 || pos.Column < 1 {
		return nil
	}
	idx := indexOf(tokenType, SemanticTokenTypes)
	if idx < 0 {
		return nil
	}
	return []SemanticToken{{
		Line:           uint32(pos.Line - 1),
		StartChar:      uint32(pos.Column - 1),
		Length:         uint32(utf8.RuneCountInString(value)),
		TokenType:      idx,
		TokenModifiers: declModifier,
	}}
}

func indexOf(target string, list []string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Module is a sequence of functions
type Module struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Functions []*Function `@@*`
}

type Function struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `"func" @Global "("`
	Params []*Param `( @@ ( "," @@ )* )? ")"`
	Result string   `( "->" @Type )? "{"`
	Blocks []*Block `@@* "}"`
}

type Param struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string `@Local ":"`
	Type   string `@Type`
}

// Block is a label with optional parameters followed by its instructions
type Block struct {
	Pos          lexer.Position
	EndPos       lexer.Position
	Label        string         `@Ident`
	Params       []*Param       `( "(" ( @@ ( "," @@ )* )? ")" )? ":"`
	Instructions []*Instruction `@@*`
}

type Instruction struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Result string     `( @Local "=" )?`
	Jmp    *Target    `(   "jmp" @@`
	Br     *Branch    `  | "br" @@`
	Ret    *Return    `  | @@`
	Call   *Call      `  | "call" @@`
	ICmp   *Compare   `  | "icmp" @@`
	Op     *Operation `  | @@ )`
}

// Operation covers every opcode spelled `op type operands`
type Operation struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Opcode   string   `@Ident`
	Type     string   `@Type`
	Operands []*Value `( @@ ( "," @@ )* )?`
}

type Compare struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Predicate string `@Ident`
	Type      string `@Type`
	Left      *Value `@@ ","`
	Right     *Value `@@`
}

type Call struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Type   string        `@Type`
	Callee string        `@Global "("`
	Args   []*TypedValue `( @@ ( "," @@ )* )? ")"`
}

type Return struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Keyword string `@"ret"`
	Type    string `( @Type`
	Value   *Value `  @@ )?`
}

type Branch struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *Value  `@@ ","`
	Then   *Target `@@ ","`
	Else   *Target `@@`
}

// Target is a block label with its arguments
type Target struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Label  string        `@Ident`
	Args   []*TypedValue `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

// TypedValue is an operand whose constants carry their type
type TypedValue struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Type   string `@Type?`
	Value  *Value `@@`
}

type Value struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Local  string `(  @Local`
	Int    string ` | @Int`
	Bool   string ` | @("true" | "false") )`
}

// IsConstant reports whether the value is a literal
func (v *Value) IsConstant() bool { return v.Local == "" }

func (v *Value) String() string {
	switch {
	case v.Local != "":
		return v.Local
	case v.Int != "":
		return v.Int
	}
	return v.Bool
}

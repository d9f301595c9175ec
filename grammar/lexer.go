package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `;[^\n]*`, nil},

		{"Arrow", `->`, nil},

		// Names: @function, %value
		{"Global", `@[A-Za-z0-9_.]+`, nil},
		{"Local", `%[A-Za-z0-9_.]+`, nil},

		// Types come before identifiers (order matters)
		{"Type", `\b(i[0-9]+|bool|ptr|void)\b`, nil},
		{"Ident", `[A-Za-z_][A-Za-z0-9_.]*`, nil},

		// Integer literals
		{"Int", `-?[0-9]+`, nil},

		// Punctuation
		{"Punct", `[(){}:,=]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

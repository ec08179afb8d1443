// SPDX-License-Identifier: Apache-2.0
package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var EbbLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Sigil-prefixed identifiers (order matters)
		{"ValueID", `%[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"BlockID", `\^[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"SymbolID", `@[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Keywords and type names
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Integer literals
		{"Integer", `-?[0-9]+`, nil},

		// Multi-char punctuation before single-char
		{"Arrow", `->`, nil},
		{"Punct", `[(){},:=]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// SPDX-License-Identifier: Apache-2.0
package lsp

// Semantic token classification straight off the lexer. The textual IR has
// no name resolution worth running here; the token kind alone determines
// the highlight class.

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"ebb/grammar"
)

// SemanticToken is one entry of the LSP wire format before delta encoding.
// Line and StartChar are 0-based.
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into SemanticTokenTypes
	TokenModifiers int // bitmask over SemanticTokenModifiers
}

// tokenClass maps lexer token names to indices in SemanticTokenTypes.
var tokenClass = map[string]int{
	"Ident":    0, // keyword
	"SymbolID": 1, // function
	"ValueID":  2, // variable
	"Integer":  3, // number
	"Arrow":    4, // operator
	"Punct":    4, // operator
	"Comment":  5, // comment
	"BlockID":  6, // namespace, the closest standard class to a block label
}

func collectSemanticTokens(path, source string) []SemanticToken {
	var out []SemanticToken
	eachToken(path, source, func(name string, token lexer.Token) {
		class, ok := tokenClass[name]
		if !ok {
			return
		}
		out = append(out, SemanticToken{
			Line:      uint32(token.Pos.Line - 1),
			StartChar: uint32(token.Pos.Column - 1),
			Length:    uint32(len(token.Value)),
			TokenType: class,
		})
	})
	return out
}

// valueTokenAt returns the value name under the 1-based position, without
// its % sigil, and the token's span.
func valueTokenAt(path, source string, line, column int) (string, *protocol.Range) {
	var name string
	var span *protocol.Range
	eachToken(path, source, func(tokenName string, token lexer.Token) {
		if tokenName != "ValueID" || token.Pos.Line != line {
			return
		}
		start := token.Pos.Column
		end := start + len(token.Value)
		if column < start || column >= end {
			return
		}
		name = strings.TrimPrefix(token.Value, "%")
		r := spanAt(token.Pos.Line, start, len(token.Value))
		span = &r
	})
	return name, span
}

// eachToken lexes source and calls fn with each token's symbolic name. Lex
// errors end the walk; the parser reports them properly elsewhere.
func eachToken(path, source string, fn func(name string, token lexer.Token)) {
	lx, err := grammar.EbbLexer.LexString(path, source)
	if err != nil {
		return
	}
	names := make(map[lexer.TokenType]string, len(grammar.EbbLexer.Symbols()))
	for name, typ := range grammar.EbbLexer.Symbols() {
		names[typ] = name
	}
	for {
		token, err := lx.Next()
		if err != nil || token.EOF() {
			return
		}
		fn(names[token.Type], token)
	}
}

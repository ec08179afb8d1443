// SPDX-License-Identifier: Apache-2.0
package grammar

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"
)

var parser = participle.MustBuild[File](
	participle.Lexer(EbbLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// ParseSource parses textual IR. The returned error, when non-nil, is a
// participle.Error carrying the offending position.
func ParseSource(path, source string) (*File, error) {
	file, err := parser.ParseString(path, source)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ParseFile reads and parses path.
func ParseFile(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseSource(path, string(source))
}

// ErrorPosition extracts the source position from a parse error, if any.
func ErrorPosition(err error) (line, column int, ok bool) {
	pe, isParseErr := err.(participle.Error)
	if !isParseErr {
		return 0, 0, false
	}
	pos := pe.Position()
	return pos.Line, pos.Column, true
}

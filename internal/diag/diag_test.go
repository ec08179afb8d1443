// SPDX-License-Identifier: Apache-2.0
package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ebb/internal/ir"
)

func TestReporterFormat(t *testing.T) {
	source := `pub func @main() -> int {
  %x = const 7
  return %x
}`

	reporter := NewReporter("test.ebb", source)

	d := Errorf(ir.Pos{File: "test.ebb", Line: 2, Column: 3}, "B0001", "undefined value %%y")
	formatted := reporter.Format(d)

	assert.Contains(t, formatted, "error[B0001]")
	assert.Contains(t, formatted, "undefined value %y")
	assert.Contains(t, formatted, "test.ebb:2:3")
	// The offending source line is echoed back.
	assert.Contains(t, formatted, "%x = const 7")
}

func TestReporterMarker(t *testing.T) {
	reporter := NewReporter("test.ebb", "  %long_name = const 1")

	d := Errorf(ir.Pos{Line: 1, Column: 3}, "", "bad name")
	d.Length = 10
	marker := reporter.marker(d)

	assert.Equal(t, 2, strings.Count(marker, " "))
	assert.Equal(t, 10, strings.Count(marker, "^"))
}

func TestUnreachableBlockFinding(t *testing.T) {
	d := UnreachableBlock(ir.Pos{Line: 5, Column: 1}, "dead")

	assert.Equal(t, Warning, d.Severity)
	assert.Equal(t, "A0001", d.Code)
	assert.Contains(t, d.Message, "^dead")
	assert.NotEmpty(t, d.Help)
}

func TestUnusedValueFinding(t *testing.T) {
	d := UnusedValue(ir.Pos{Line: 3, Column: 3}, "tmp")

	assert.Equal(t, Warning, d.Severity)
	assert.Equal(t, "A0002", d.Code)
	assert.Contains(t, d.Message, "%tmp")
}

func TestConstantValueFinding(t *testing.T) {
	d := ConstantValue(ir.Pos{Line: 4, Column: 3}, "sum", -12)

	assert.Equal(t, Note, d.Severity)
	assert.Contains(t, d.Message, "%sum is always -12")
}

func TestSeverityHeaders(t *testing.T) {
	reporter := NewReporter("test.ebb", "x")
	pos := ir.Pos{Line: 1, Column: 1}

	assert.Contains(t, reporter.Format(Errorf(pos, "", "boom")), "error:")
	assert.Contains(t, reporter.Format(Warningf(pos, "", "hmm")), "warning:")
}

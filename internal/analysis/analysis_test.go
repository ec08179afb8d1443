// SPDX-License-Identifier: Apache-2.0
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebb/grammar"
	"ebb/internal/diag"
	"ebb/internal/ir"
)

func analyze(t *testing.T, source string) *Result {
	t.Helper()
	file, err := grammar.ParseSource("test.ebb", source)
	require.NoError(t, err)
	module, errs := ir.BuildModule(file)
	require.Empty(t, errs)
	result, err := Run(module)
	require.NoError(t, err)
	return result
}

func codes(findings []diag.Diagnostic) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestFindingsCleanProgram(t *testing.T) {
	result := analyze(t, `
pub func @inc(%x: int) -> int {
  %one = const 1
  %r = add %x, %one
  return %r
}`)
	// %r is not constant and everything is used and reachable.
	assert.Empty(t, result.Findings())
}

func TestFindingsUnusedValue(t *testing.T) {
	result := analyze(t, `
pub func @f() -> int {
  %a = const 1
  %waste = add %a, %a
  return %a
}`)
	findings := result.Findings()
	require.NotEmpty(t, findings)
	assert.Contains(t, codes(findings), "A0002")

	var messages string
	for _, f := range findings {
		messages += f.Message + "\n"
	}
	assert.Contains(t, messages, "%waste is never needed")
}

func TestFindingsUnreachableBlock(t *testing.T) {
	result := analyze(t, `
pub func @f() -> int {
  %a = const 1
  return %a
^orphan:
  %b = const 2
  return %b
}`)
	findings := result.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, "A0001", findings[0].Code)
	assert.Contains(t, findings[0].Message, "^orphan")
	// Reported at the block's first operation, not swamped by per-op
	// findings inside the dead code.
	assert.Equal(t, 6, findings[0].Pos.Line)
}

func TestFindingsConstantNote(t *testing.T) {
	result := analyze(t, `
pub func @f() -> int {
  %a = const 2
  %b = const 3
  %s = add %a, %b
  return %s
}`)
	findings := result.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, "A0003", findings[0].Code)
	assert.Contains(t, findings[0].Message, "%s is always 5")
}

func TestFindingsAreOrderedByPosition(t *testing.T) {
	result := analyze(t, `
pub func @f() -> int {
  %a = const 1
  %dead1 = add %a, %a
  %dead2 = add %a, %a
  return %a
}`)
	findings := result.Findings()
	require.Len(t, findings, 2)
	assert.Less(t, findings[0].Pos.Line, findings[1].Pos.Line)
}

func TestFactFor(t *testing.T) {
	result := analyze(t, `
pub func @f() -> int {
  %a = const 2
  %b = mul %a, %a
  return %b
}`)
	var b ir.Value
	ir.Walk(result.Module, func(op ir.Operation) {
		for _, res := range op.Results() {
			if res.Name() == "b" {
				b = res
			}
		}
	})
	require.NotNil(t, b)
	assert.Equal(t, "const 4, needed", result.FactFor(b))
}

func TestFindingsNestedRegions(t *testing.T) {
	result := analyze(t, `
pub func @f(%p: bool) -> int {
  %one = const 1
  %x = if %p -> int {
    %junk = add %one, %one
    yield %one
  } else {
    yield %one
  }
  return %x
}`)
	var messages string
	for _, f := range result.Findings() {
		messages += f.Message + "\n"
	}
	assert.Contains(t, messages, "%junk is never needed")
}

// SPDX-License-Identifier: Apache-2.0
package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebb/internal/dataflow"
	"ebb/internal/ir"
)

// runLive runs dead code plus value demand.
func runLive(t *testing.T, source string) (*ir.ModuleOp, *dataflow.LiveValues) {
	t.Helper()
	module := buildModule(t, source)
	solver := dataflow.NewSolver()
	dataflow.NewDeadCode(solver)
	live := dataflow.NewLiveValues(solver)
	require.NoError(t, solver.Run(module))
	return module, live
}

func assertNeeded(t *testing.T, live *dataflow.LiveValues, module *ir.ModuleOp, name string, want bool) {
	t.Helper()
	assert.Equal(t, want, live.IsNeeded(findValue(t, module, name)), "%%%s", name)
}

func TestReturnedValueIsNeeded(t *testing.T) {
	module, live := runLive(t, `
pub func @f() -> int {
  %a = const 1
  %b = const 2
  %t = add %a, %b
  return %t
}`)
	assertNeeded(t, live, module, "t", true)
	assertNeeded(t, live, module, "a", true)
	assertNeeded(t, live, module, "b", true)
}

func TestUnusedChainIsNotNeeded(t *testing.T) {
	module, live := runLive(t, `
pub func @f() -> int {
  %a = const 1
  %x = const 3
  %y = add %x, %x
  return %a
}`)
	assertNeeded(t, live, module, "a", true)
	// Nothing consumes %y, and %x only feeds %y.
	assertNeeded(t, live, module, "y", false)
	assertNeeded(t, live, module, "x", false)
}

func TestBranchConditionIsNeeded(t *testing.T) {
	module, live := runLive(t, `
pub func @f(%p: bool) -> int {
  %one = const 1
  %two = const 2
  cond_br %p, ^a, ^b
^a:
  return %one
^b:
  return %two
}`)
	assertNeeded(t, live, module, "p", true)
}

func TestForwardedBranchOperandFollowsBlockArg(t *testing.T) {
	module, live := runLive(t, `
pub func @f(%p: bool) -> int {
  %used = const 1
  %idle = const 2
  %r = const 3
  cond_br %p, ^a(%used), ^a(%idle)
^a(%v: int):
  return %r
}`)
	// ^a's argument feeds nothing, so neither do the forwarded operands.
	assertNeeded(t, live, module, "v", false)
	assertNeeded(t, live, module, "used", false)
	assertNeeded(t, live, module, "idle", false)
	assertNeeded(t, live, module, "r", true)
}

func TestUnusedCallResultUnwindsThroughCallee(t *testing.T) {
	module, live := runLive(t, `
func @square(%x: int) -> int {
  %r = mul %x, %x
  return %r
}
pub func @main() -> int {
  %a = const 3
  %h = call @square(%a)
  %one = const 1
  return %one
}`)
	// The call result is discarded; demand unwinds through the callee's
	// return to its parameter and from there to the argument.
	assertNeeded(t, live, module, "h", false)
	assertNeeded(t, live, module, "r", false)
	assertNeeded(t, live, module, "x", false)
	assertNeeded(t, live, module, "a", false)
	assertNeeded(t, live, module, "one", true)
}

func TestUsedCallResultReachesArguments(t *testing.T) {
	module, live := runLive(t, `
func @square(%x: int) -> int {
  %r = mul %x, %x
  return %r
}
pub func @main() -> int {
  %a = const 3
  %h = call @square(%a)
  return %h
}`)
	assertNeeded(t, live, module, "h", true)
	assertNeeded(t, live, module, "r", true)
	assertNeeded(t, live, module, "x", true)
	assertNeeded(t, live, module, "a", true)
}

func TestPublicFunctionReturnIsAlwaysNeeded(t *testing.T) {
	module, live := runLive(t, `
pub func @f() -> int {
  %a = const 1
  return %a
}`)
	// Callers outside the module can observe the result.
	assertNeeded(t, live, module, "a", true)
}

func TestExternalCallArgumentsAreNeeded(t *testing.T) {
	module, live := runLive(t, `
func @ext(%x: int) -> int
pub func @main() -> int {
  %a = const 3
  %r = call @ext(%a)
  %one = const 1
  return %one
}`)
	// No body to look at; assume the callee observes its arguments.
	assertNeeded(t, live, module, "a", true)
	assertNeeded(t, live, module, "r", false)
}

func TestIfConditionAndYieldDemand(t *testing.T) {
	module, live := runLive(t, `
pub func @f(%p: bool) -> int {
  %one = const 1
  %two = const 2
  %x = if %p -> int {
    yield %one
  } else {
    yield %two
  }
  return %x
}`)
	assertNeeded(t, live, module, "p", true)
	assertNeeded(t, live, module, "x", true)
	assertNeeded(t, live, module, "one", true)
	assertNeeded(t, live, module, "two", true)
}

func TestWhileDemandFollowsLoop(t *testing.T) {
	module, live := runLive(t, `
pub func @count(%n: int) -> int {
  %zero = const 0
  %one = const 1
  %sum = while (%i = %zero) -> int {
    %c = cmp lt %i, %n
    cond %c, %i
  } do (%j) {
    %k = add %j, %one
    yield %k
  }
  return %sum
}`)
	assertNeeded(t, live, module, "sum", true)
	// The loop condition is observed every iteration.
	assertNeeded(t, live, module, "c", true)
	assertNeeded(t, live, module, "n", true)
	// Loop-carried values feed both the condition and the result.
	assertNeeded(t, live, module, "i", true)
	assertNeeded(t, live, module, "k", true)
}

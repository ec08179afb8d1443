// SPDX-License-Identifier: Apache-2.0
package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebb/grammar"
	"ebb/internal/dataflow"
	"ebb/internal/ir"
)

func buildModule(t *testing.T, source string) *ir.ModuleOp {
	t.Helper()
	file, err := grammar.ParseSource("test.ebb", source)
	require.NoError(t, err)
	module, errs := ir.BuildModule(file)
	require.Empty(t, errs)
	return module
}

func findValue(t *testing.T, module *ir.ModuleOp, name string) ir.Value {
	t.Helper()
	var found ir.Value
	ir.Walk(module, func(op ir.Operation) {
		for _, result := range op.Results() {
			if result.Name() == name {
				found = result
			}
		}
		for _, region := range op.Regions() {
			for _, block := range region.Blocks() {
				for _, arg := range block.Args() {
					if arg.Name() == name {
						found = arg
					}
				}
			}
		}
	})
	require.NotNil(t, found, "no value named %%%s", name)
	return found
}

// runConst runs dead code plus constant propagation.
func runConst(t *testing.T, source string) (*ir.ModuleOp, *dataflow.ConstantPropagation, *dataflow.DeadCodeAnalysis) {
	t.Helper()
	module := buildModule(t, source)
	solver := dataflow.NewSolver()
	dead := dataflow.NewDeadCode(solver)
	consts := dataflow.NewConstantPropagation(solver)
	require.NoError(t, solver.Run(module))
	return module, consts, dead
}

func assertConst(t *testing.T, cp *dataflow.ConstantPropagation, module *ir.ModuleOp, name string, want int64) {
	t.Helper()
	got, ok := cp.ConstantAt(findValue(t, module, name))
	require.True(t, ok, "%%%s is %s, want const", name, cp.ValueAt(findValue(t, module, name)))
	assert.Equal(t, want, got)
}

func assertOverdefined(t *testing.T, cp *dataflow.ConstantPropagation, module *ir.ModuleOp, name string) {
	t.Helper()
	assert.True(t, cp.ValueAt(findValue(t, module, name)).IsOverdefined(),
		"%%%s is %s, want overdefined", name, cp.ValueAt(findValue(t, module, name)))
}

func TestConstFoldStraightLine(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @main() -> int {
  %a = const 2
  %b = const 3
  %c = add %a, %b
  %d = mul %c, %c
  return %d
}`)
	assertConst(t, consts, module, "c", 5)
	assertConst(t, consts, module, "d", 25)
}

func TestPublicParametersAreOverdefined(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @inc(%x: int) -> int {
  %one = const 1
  %r = add %x, %one
  return %r
}`)
	assertOverdefined(t, consts, module, "x")
	assertOverdefined(t, consts, module, "r")
	assertConst(t, consts, module, "one", 1)
}

func TestIfJoinsYieldedValues(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @pick(%p: bool) -> int {
  %x = if %p -> int {
    %a = const 7
    yield %a
  } else {
    %b = const 7
    yield %b
  }
  %y = if %p -> int {
    %c = const 1
    yield %c
  } else {
    %d = const 2
    yield %d
  }
  %s = add %x, %y
  return %s
}`)
	// Both arms agree on 7.
	assertConst(t, consts, module, "x", 7)
	// The arms disagree, so the join is overdefined.
	assertOverdefined(t, consts, module, "y")
	assertOverdefined(t, consts, module, "s")
}

func TestBlockArgumentJoin(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @join(%p: bool) -> int {
  %one = const 1
  %two = const 2
  cond_br %p, ^left, ^right
^left:
  br ^end(%one)
^right:
  br ^end(%two)
^end(%v: int):
  return %v
}`)
	assertOverdefined(t, consts, module, "v")
}

func TestBlockArgumentJoinAgreeing(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @join(%p: bool) -> int {
  %one = const 1
  cond_br %p, ^left, ^right
^left:
  br ^end(%one)
^right:
  br ^end(%one)
^end(%v: int):
  return %v
}`)
	assertConst(t, consts, module, "v", 1)
}

func TestDeadBlockDoesNotPollute(t *testing.T) {
	module, consts, dead := runConst(t, `
pub func @f() -> int {
  %a = const 1
  return %a
^orphan(%u: int):
  return %u
}`)
	orphanArg := findValue(t, module, "u")
	// The orphan block never runs, so nothing updated its argument.
	assert.True(t, consts.ValueAt(orphanArg).IsUnknown())

	f := module.LookupFunc("f")
	require.NotNil(t, f)
	blocks := f.CallableRegion().Blocks()
	require.Len(t, blocks, 2)
	assert.True(t, dead.IsLive(blocks[0]))
	assert.False(t, dead.IsLive(blocks[1]))
}

func TestDeadEdgeDoesNotJoinIntoLiveBlock(t *testing.T) {
	module, consts, dead := runConst(t, `
pub func @f() -> int {
  %one = const 1
  %two = const 2
  br ^end(%one)
^orphan:
  br ^end(%two)
^end(%v: int):
  return %v
}`)
	blocks := funcBlocks(t, module, "f")
	require.Len(t, blocks, 3)
	entry, orphan, end := blocks[0], blocks[1], blocks[2]

	// The orphan's branch never runs, so its edge contributes nothing to
	// the join; only the live edge's operand reaches the argument.
	assert.True(t, dead.IsEdgeLive(entry, end))
	assert.False(t, dead.IsEdgeLive(orphan, end))
	assertConst(t, consts, module, "v", 1)
}

func TestUnmodeledTerminatorPessimizesBlockArgs(t *testing.T) {
	// A terminator that names its successors without modeled operand
	// forwarding gives the driver nothing to join, so the destination
	// arguments fall to the entry state instead of staying optimistic.
	module := ir.NewModule(ir.Pos{})
	fn := ir.NewFunc("f", true, []ir.Type{ir.IntType{}}, false, ir.Pos{})
	module.AddFunc(fn)
	region := fn.CallableRegion()
	entry := region.NewBlock("entry")
	sel := entry.AddArg("sel", ir.IntType{}, ir.Pos{})
	end := region.NewBlock("end")
	v := end.AddArg("v", ir.IntType{}, ir.Pos{})
	entry.Append(ir.NewSwitch(sel, []*ir.Block{end}, ir.Pos{}))
	end.Append(ir.NewReturn([]ir.Value{v}, ir.Pos{}))

	solver := dataflow.NewSolver()
	dead := dataflow.NewDeadCode(solver)
	consts := dataflow.NewConstantPropagation(solver)
	require.NoError(t, solver.Run(module))

	require.True(t, dead.IsLive(end))
	assert.True(t, dead.IsEdgeLive(entry, end))
	assert.True(t, consts.ValueAt(v).IsOverdefined(), "got %s", consts.ValueAt(v))
}

func TestCallPropagatesThroughPrivateCallee(t *testing.T) {
	module, consts, _ := runConst(t, `
func @double(%x: int) -> int {
  %two = const 2
  %r = mul %x, %two
  return %r
}
pub func @main() -> int {
  %five = const 5
  %d = call @double(%five)
  return %d
}`)
	// The only call site passes 5, so the callee sees a constant.
	assertConst(t, consts, module, "x", 5)
	assertConst(t, consts, module, "r", 10)
	assertConst(t, consts, module, "d", 10)
}

func TestCallSitesDisagree(t *testing.T) {
	module, consts, _ := runConst(t, `
func @id(%x: int) -> int {
  return %x
}
pub func @main() -> int {
  %a = const 1
  %b = const 2
  %p = call @id(%a)
  %q = call @id(%b)
  %s = add %p, %q
  return %s
}`)
	assertOverdefined(t, consts, module, "x")
	assertOverdefined(t, consts, module, "s")
}

func TestExternalCalleePessimizesResults(t *testing.T) {
	module, consts, _ := runConst(t, `
func @ext(%x: int) -> int
pub func @main() -> int {
  %a = const 3
  %r = call @ext(%a)
  return %r
}`)
	assertOverdefined(t, consts, module, "r")
	assertConst(t, consts, module, "a", 3)
}

func TestPublicCalleeEntryIsPessimistic(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @helper(%x: int) -> int {
  return %x
}
pub func @main() -> int {
  %a = const 3
  %r = call @helper(%a)
  return %r
}`)
	// Outside callers are invisible, so the known constant call site
	// cannot narrow the parameter.
	assertOverdefined(t, consts, module, "x")
	assertOverdefined(t, consts, module, "r")
}

func TestWhileLoopReachesFixpoint(t *testing.T) {
	module, consts, _ := runConst(t, `
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
	// The counter takes multiple values; the run must still terminate.
	assertOverdefined(t, consts, module, "i")
	assertOverdefined(t, consts, module, "sum")
}

func TestWhileLoopInvariantStaysConstant(t *testing.T) {
	module, consts, _ := runConst(t, `
pub func @fixed(%n: int) -> int {
  %zero = const 0
  %r = while (%i = %zero) -> int {
    %c = cmp lt %i, %n
    cond %c, %i
  } do (%j) {
    yield %j
  }
  return %r
}`)
	// The loop carries 0 around unchanged.
	assertConst(t, consts, module, "i", 0)
	assertConst(t, consts, module, "r", 0)
}

func TestRecursionTerminates(t *testing.T) {
	module, consts, _ := runConst(t, `
func @fact(%n: int) -> int {
  %one = const 1
  %c = cmp le %n, %one
  %r = if %c -> int {
    yield %one
  } else {
    %m = add %n, %one
    %f = call @fact(%m)
    %g = mul %n, %f
    yield %g
  }
  return %r
}
pub func @main() -> int {
  %five = const 5
  %x = call @fact(%five)
  return %x
}`)
	// Recursive call sites disagree with the root call, so the parameter
	// widens; the point of this test is termination.
	assertOverdefined(t, consts, module, "n")
}

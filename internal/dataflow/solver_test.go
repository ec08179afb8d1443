// SPDX-License-Identifier: Apache-2.0
package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebb/internal/ir"
)

// countingAnalysis records the points it is asked to visit.
type countingAnalysis struct {
	visited []Point
}

func (a *countingAnalysis) Initialize(top ir.Operation) error { return nil }

func (a *countingAnalysis) Visit(p Point) error {
	a.visited = append(a.visited, p)
	return nil
}

func TestGetOrCreateReturnsSameState(t *testing.T) {
	s := NewSolver()
	block := &ir.Block{}

	first := GetOrCreate(s, Point(block), NewExecutable)
	second := GetOrCreate(s, Point(block), NewExecutable)
	assert.Same(t, first, second)
	assert.Equal(t, Point(block), first.Anchor())
}

func TestStateTypesCoexistOnOneAnchor(t *testing.T) {
	s := NewSolver()
	block := &ir.Block{}

	exec := GetOrCreate(s, Point(block), NewExecutable)
	preds := GetOrCreate(s, Point(block), NewPredecessorState)

	assert.Equal(t, Point(block), exec.Anchor())
	assert.Equal(t, Point(block), preds.Anchor())

	found, ok := Lookup[*Executable](s, Point(block))
	require.True(t, ok)
	assert.Same(t, exec, found)
}

func TestLookupMissing(t *testing.T) {
	s := NewSolver()
	_, ok := Lookup[*Executable](s, Point(&ir.Block{}))
	assert.False(t, ok)
}

func TestPropagateEnqueuesDependentsOnce(t *testing.T) {
	s := NewSolver()
	a := &countingAnalysis{}
	block := &ir.Block{}

	exec := GetOrCreate(s, Point(block), NewExecutable)
	item := WorkItem{Point: Point(block), Analysis: a}
	s.AddDependency(exec, item)
	s.AddDependency(exec, item) // deduplicated

	s.PropagateIfChanged(exec, exec.SetLive())
	assert.Len(t, s.queue, 1)

	// No change, no propagation.
	s.PropagateIfChanged(exec, exec.SetLive())
	assert.Len(t, s.queue, 1)
}

func TestRunDrainsQueue(t *testing.T) {
	s := NewSolver()
	a := &countingAnalysis{}
	s.Register(a)

	block := &ir.Block{}
	s.Enqueue(WorkItem{Point: Point(block), Analysis: a})
	s.Enqueue(WorkItem{Point: Point(block), Analysis: a})

	require.NoError(t, s.Run(ir.NewModule(ir.Pos{})))
	assert.Len(t, a.visited, 2)
	assert.Empty(t, s.queue)
}

func TestExecutableTransitions(t *testing.T) {
	exec := NewExecutable(nil)
	assert.False(t, exec.IsLive())
	assert.Equal(t, Change, exec.SetLive())
	assert.True(t, exec.IsLive())
	assert.Equal(t, NoChange, exec.SetLive())
}

func TestExecutableContentSubscription(t *testing.T) {
	s := NewSolver()
	a := &countingAnalysis{}

	region := &ir.Region{}
	block := region.NewBlock("b")
	block.Append(ir.NewConst("x", 1, ir.Pos{}))
	block.Append(ir.NewReturn(nil, ir.Pos{}))

	exec := GetOrCreate(s, Point(block), NewExecutable)
	exec.ContentSubscribe(a)
	exec.ContentSubscribe(a) // idempotent

	s.PropagateIfChanged(exec, exec.SetLive())
	// The block itself plus both ops.
	assert.Len(t, s.queue, 3)
}

func TestPredecessorStateJoin(t *testing.T) {
	preds := NewPredecessorState(nil)
	assert.True(t, preds.AllPredecessorsKnown())
	assert.Empty(t, preds.Known())

	op := ir.NewReturn(nil, ir.Pos{})
	assert.Equal(t, Change, preds.Join(op, nil))
	assert.Equal(t, NoChange, preds.Join(op, nil))
	assert.Len(t, preds.Known(), 1)

	assert.Equal(t, Change, preds.SetHasUnknownPredecessors())
	assert.Equal(t, NoChange, preds.SetHasUnknownPredecessors())
	assert.False(t, preds.AllPredecessorsKnown())
}

func TestConstantValueLattice(t *testing.T) {
	u, five, six, over := UnknownConstant(), KnownConstant(5), KnownConstant(6), Overdefined()

	// Join moves up.
	assert.True(t, u.Join(five).Equal(five))
	assert.True(t, five.Join(u).Equal(five))
	assert.True(t, five.Join(five).Equal(five))
	assert.True(t, five.Join(six).Equal(over))
	assert.True(t, over.Join(five).Equal(over))

	// Meet moves down.
	assert.True(t, over.Meet(five).Equal(five))
	assert.True(t, five.Meet(six).Equal(u))
	assert.True(t, u.Meet(five).Equal(u))

	assert.Equal(t, "const 5", five.String())
	assert.Equal(t, "overdefined", over.String())
	assert.Equal(t, "unknown", u.String())
}

func TestUseValueLattice(t *testing.T) {
	not, needed := UseValue{}, Needed()

	assert.True(t, not.Meet(needed).IsNeeded())
	assert.True(t, needed.Meet(not).IsNeeded())
	assert.False(t, not.Meet(not).IsNeeded())
	assert.Equal(t, "needed", needed.String())
	assert.Equal(t, "not needed", not.String())
}

func TestLatticeElementJoin(t *testing.T) {
	s := NewSolver()
	op := ir.NewConst("x", 1, ir.Pos{})
	v := op.Results()[0]

	el := LatticeFor[ConstantValue](s, v)
	assert.Same(t, el, LatticeFor[ConstantValue](s, v))
	assert.True(t, el.Get().IsUnknown())

	assert.Equal(t, Change, el.JoinValue(KnownConstant(3)))
	assert.Equal(t, NoChange, el.JoinValue(KnownConstant(3)))
	assert.Equal(t, Change, el.JoinValue(KnownConstant(4)))
	assert.True(t, el.Get().IsOverdefined())
	assert.Equal(t, v, el.Value())
}

func TestElementUpdatePushesToUsers(t *testing.T) {
	s := NewSolver()
	a := &countingAnalysis{}

	def := ir.NewConst("x", 1, ir.Pos{})
	v := def.Results()[0]
	user := ir.NewBin("add", "y", v, v, ir.Pos{})

	el := LatticeFor[ConstantValue](s, v)
	el.UseDefSubscribe(a)
	el.UseDefSubscribe(a) // idempotent

	s.PropagateIfChanged(el, el.JoinValue(KnownConstant(1)))
	// One user op, one subscriber, despite two operand slots.
	require.Len(t, s.queue, 1)
	assert.Equal(t, Point(user), s.queue[0].Point)
}

func TestPointString(t *testing.T) {
	region := &ir.Region{}
	b := region.NewBlock("exit")
	assert.Equal(t, "block ^exit", PointString(Point(b)))
	assert.Contains(t, PointString(Point(CFGEdge{From: b, To: b})), "->")

	op := ir.NewConst("x", 1, ir.Pos{})
	assert.Contains(t, PointString(Point(ir.Operation(op))), "const")
	assert.Contains(t, PointString(Point(op.Results()[0])), "%x")
}

func TestBackwardRunLeavesUseDefChainsAlone(t *testing.T) {
	module := ir.NewModule(ir.Pos{})
	fn := ir.NewFunc("f", true, []ir.Type{ir.IntType{}}, false, ir.Pos{})
	module.AddFunc(fn)
	entry := fn.CallableRegion().NewBlock("entry")
	n := entry.AddArg("n", ir.IntType{}, ir.Pos{})
	one := ir.NewConst("one", 1, ir.Pos{})
	entry.Append(one)
	sum := ir.NewBin("add", "r", n, one.Results()[0], ir.Pos{})
	entry.Append(sum)
	entry.Append(ir.NewReturn([]ir.Value{sum.Results()[0]}, ir.Pos{}))

	s := NewSolver()
	NewDeadCode(s)
	NewLiveValues(s)
	require.NoError(t, s.Run(module))

	// Demand pulls from results to operands through state dependencies;
	// the use-def chain pushes definitions to users and belongs to the
	// forward direction only.
	ir.Walk(module, func(op ir.Operation) {
		for _, res := range op.Results() {
			el, ok := Lookup[*Lattice[UseValue]](s, Point(res))
			if !ok {
				continue
			}
			assert.Empty(t, el.subscribers, "use-def subscription on %%%s", res.Name())
		}
	})
}

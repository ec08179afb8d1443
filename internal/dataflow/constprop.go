// SPDX-License-Identifier: Apache-2.0
package dataflow

// Forward constant propagation over the three-level constant lattice. The
// transfer function folds the arithmetic ops of the dialect; everything else
// is handled by the driver (calls, branches, structured control flow) or
// pessimized.

import (
	"fmt"

	"ebb/internal/ir"
)

type constKind uint8

const (
	constUnknown constKind = iota // nothing observed yet
	constKnown                    // exactly one runtime value
	constOver                     // conflicting or unanalyzable
)

// ConstantValue is the constant lattice value: unknown below a single known
// constant below overdefined. Booleans are carried as 0 and 1.
type ConstantValue struct {
	kind constKind
	val  int64
}

func UnknownConstant() ConstantValue      { return ConstantValue{} }
func KnownConstant(v int64) ConstantValue { return ConstantValue{kind: constKnown, val: v} }
func Overdefined() ConstantValue          { return ConstantValue{kind: constOver} }

func (c ConstantValue) IsUnknown() bool     { return c.kind == constUnknown }
func (c ConstantValue) IsConstant() bool    { return c.kind == constKnown }
func (c ConstantValue) IsOverdefined() bool { return c.kind == constOver }

// Constant returns the known value; only meaningful when IsConstant.
func (c ConstantValue) Constant() int64 { return c.val }

func (c ConstantValue) Join(o ConstantValue) ConstantValue {
	if c.kind == constUnknown {
		return o
	}
	if o.kind == constUnknown {
		return c
	}
	if c.kind == constKnown && o.kind == constKnown && c.val == o.val {
		return c
	}
	return Overdefined()
}

func (c ConstantValue) Meet(o ConstantValue) ConstantValue {
	if c.kind == constOver {
		return o
	}
	if o.kind == constOver {
		return c
	}
	if c.kind == constKnown && o.kind == constKnown && c.val == o.val {
		return c
	}
	return UnknownConstant()
}

func (c ConstantValue) Equal(o ConstantValue) bool { return c == o }

func (c ConstantValue) String() string {
	switch c.kind {
	case constKnown:
		return fmt.Sprintf("const %d", c.val)
	case constOver:
		return "overdefined"
	default:
		return "unknown"
	}
}

// ConstantPropagation computes, for every SSA value, whether it holds one
// compile-time constant on all executions.
type ConstantPropagation struct {
	solver *Solver
	driver *ForwardAnalysis
}

// NewConstantPropagation registers the analysis with s. It relies on a
// DeadCodeAnalysis registered on the same solver.
func NewConstantPropagation(s *Solver) *ConstantPropagation {
	cp := &ConstantPropagation{solver: s}
	cp.driver = RegisterForward(s, cp)
	return cp
}

func (cp *ConstantPropagation) Element(v ir.Value) Element {
	return LatticeFor[ConstantValue](cp.solver, v)
}

func (cp *ConstantPropagation) SetToEntryState(el Element) {
	l := el.(*Lattice[ConstantValue])
	cp.solver.PropagateIfChanged(l, l.JoinValue(Overdefined()))
}

func (cp *ConstantPropagation) VisitOperation(op ir.Operation, operands, results []Element) error {
	switch op := op.(type) {
	case *ir.ConstOp:
		cp.assign(results[0], KnownConstant(op.Value()))
	case *ir.BinOp:
		x, y := latticeGet(operands[0]), latticeGet(operands[1])
		switch {
		case x.IsConstant() && y.IsConstant():
			cp.assign(results[0], KnownConstant(foldBin(op.Kind(), x.Constant(), y.Constant())))
		case x.IsOverdefined() || y.IsOverdefined():
			cp.assign(results[0], Overdefined())
		}
		// Otherwise an operand is still unknown; stay optimistic.
	case *ir.CmpOp:
		x, y := latticeGet(operands[0]), latticeGet(operands[1])
		switch {
		case x.IsConstant() && y.IsConstant():
			cp.assign(results[0], KnownConstant(foldCmp(op.Predicate(), x.Constant(), y.Constant())))
		case x.IsOverdefined() || y.IsOverdefined():
			cp.assign(results[0], Overdefined())
		}
	default:
		// No transfer function for this op.
		cp.driver.SetAllToEntryStates(results)
	}
	return nil
}

func (cp *ConstantPropagation) VisitNonControlFlowArguments(op ir.Operation, succ ir.RegionSuccessor, args []Element, firstIndex int) {
	for i, el := range args {
		if i < firstIndex || i >= firstIndex+len(succ.Inputs) {
			cp.SetToEntryState(el)
		}
	}
}

// ConstantAt returns the constant computed for v, if any.
func (cp *ConstantPropagation) ConstantAt(v ir.Value) (int64, bool) {
	el, ok := Lookup[*Lattice[ConstantValue]](cp.solver, Point(v))
	if !ok || !el.Get().IsConstant() {
		return 0, false
	}
	return el.Get().Constant(), true
}

// ValueAt returns the raw lattice value computed for v. Values never touched
// by the run report unknown.
func (cp *ConstantPropagation) ValueAt(v ir.Value) ConstantValue {
	el, ok := Lookup[*Lattice[ConstantValue]](cp.solver, Point(v))
	if !ok {
		return UnknownConstant()
	}
	return el.Get()
}

func (cp *ConstantPropagation) assign(el Element, v ConstantValue) {
	l := el.(*Lattice[ConstantValue])
	cp.solver.PropagateIfChanged(l, l.JoinValue(v))
}

func latticeGet(el Element) ConstantValue {
	return el.(*Lattice[ConstantValue]).Get()
}

func foldBin(kind string, x, y int64) int64 {
	switch kind {
	case "add":
		return x + y
	case "mul":
		return x * y
	}
	panic("unreachable bin kind " + kind)
}

func foldCmp(pred string, x, y int64) int64 {
	var r bool
	switch pred {
	case "lt":
		r = x < y
	case "le":
		r = x <= y
	case "eq":
		r = x == y
	case "ne":
		r = x != y
	case "gt":
		r = x > y
	case "ge":
		r = x >= y
	default:
		panic("unreachable cmp predicate " + pred)
	}
	if r {
		return 1
	}
	return 0
}

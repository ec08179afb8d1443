// SPDX-License-Identifier: Apache-2.0
package dataflow

// Backward demand analysis: a value is needed when some execution can
// observe it, through a return out of the module, a branch decision, or an
// operation whose own results are needed. Values never marked needed feed
// only dead computation.

import "ebb/internal/ir"

// UseValue is the two-point demand lattice. The zero value means "not
// demonstrably needed"; merges only ever move toward needed.
type UseValue struct {
	needed bool
}

func Needed() UseValue { return UseValue{needed: true} }

func (u UseValue) IsNeeded() bool { return u.needed }

func (u UseValue) Join(o UseValue) UseValue { return UseValue{needed: u.needed || o.needed} }
func (u UseValue) Meet(o UseValue) UseValue { return UseValue{needed: u.needed || o.needed} }
func (u UseValue) Equal(o UseValue) bool    { return u == o }

func (u UseValue) String() string {
	if u.needed {
		return "needed"
	}
	return "not needed"
}

// LiveValues computes which SSA values are needed. It relies on a
// DeadCodeAnalysis registered on the same solver.
type LiveValues struct {
	solver *Solver
	driver *BackwardAnalysis
}

func NewLiveValues(s *Solver) *LiveValues {
	lv := &LiveValues{solver: s}
	lv.driver = RegisterBackward(s, lv)
	return lv
}

func (lv *LiveValues) Element(v ir.Value) Element {
	return LatticeFor[UseValue](lv.solver, v)
}

func (lv *LiveValues) SetToExitState(el Element) {
	// At an unanalyzable exit the value may be observed.
	lv.markNeeded(el)
}

func (lv *LiveValues) VisitOperation(op ir.Operation, operands, results []Element) error {
	switch op.(type) {
	case *ir.ConstOp, *ir.BinOp, *ir.CmpOp:
		// Pure: operands are needed exactly when some result is.
		for _, r := range results {
			if r.(*Lattice[UseValue]).Get().IsNeeded() {
				for _, el := range operands {
					lv.markNeeded(el)
				}
				break
			}
		}
	default:
		// Unknown effects: assume every operand is observed.
		for _, el := range operands {
			lv.markNeeded(el)
		}
	}
	return nil
}

// VisitBranchOperand marks a non-forwarded terminator operand needed: a
// branch decision is always observed.
func (lv *LiveValues) VisitBranchOperand(op ir.Operation, index int) {
	lv.markNeeded(lv.Element(op.Operands()[index]))
}

// IsNeeded reports whether the run found a consumer for v.
func (lv *LiveValues) IsNeeded(v ir.Value) bool {
	el, ok := Lookup[*Lattice[UseValue]](lv.solver, Point(v))
	return ok && el.Get().IsNeeded()
}

func (lv *LiveValues) markNeeded(el Element) {
	l := el.(*Lattice[UseValue])
	lv.solver.PropagateIfChanged(l, l.MeetValue(Needed()))
}

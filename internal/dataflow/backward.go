// SPDX-License-Identifier: Apache-2.0
package dataflow

// Backward sparse analysis: facts flow from result elements into operand
// elements, against control flow. Block visits are no-ops here; all merging
// happens at the defining and branching operations, so the driver walks
// terminators and call structure instead of predecessor lists.

import (
	"fmt"

	"github.com/tliron/commonlog"

	"ebb/internal/ir"
)

// BackwardTransfer is the analysis-specific half of a backward sparse
// analysis; BackwardAnalysis supplies the control-flow half.
type BackwardTransfer interface {
	// Element returns this analysis's lattice element for v.
	Element(v ir.Value) Element
	// SetToExitState moves el to the pessimistic exit state and propagates
	// the change.
	SetToExitState(el Element)
	// VisitOperation applies op's transfer function: read the result
	// elements, update the operand elements through the solver.
	VisitOperation(op ir.Operation, operands, results []Element) error
	// VisitBranchOperand handles the operand at index of a terminator that
	// is not forwarded to any successor, such as a branch condition.
	VisitBranchOperand(op ir.Operation, index int)
}

// BackwardAnalysis drives a BackwardTransfer to fixpoint.
type BackwardAnalysis struct {
	solver *Solver
	xfer   BackwardTransfer
	module *ir.ModuleOp
	log    commonlog.Logger
}

// RegisterBackward registers a backward driver for xfer on s.
func RegisterBackward(s *Solver, xfer BackwardTransfer) *BackwardAnalysis {
	a := &BackwardAnalysis{
		solver: s,
		xfer:   xfer,
		log:    commonlog.GetLogger("ebb.dataflow.backward"),
	}
	s.Register(a)
	return a
}

func (bw *BackwardAnalysis) Initialize(top ir.Operation) error {
	if m, ok := top.(*ir.ModuleOp); ok {
		bw.module = m
	}
	return bw.initializeRecursively(top)
}

// initializeRecursively seeds every operation, innermost last, so the first
// queue drain already runs roughly against the flow direction.
func (bw *BackwardAnalysis) initializeRecursively(op ir.Operation) error {
	if err := bw.visitOperation(op); err != nil {
		return err
	}
	for _, region := range op.Regions() {
		for _, block := range region.Blocks() {
			exec := GetOrCreate(bw.solver, Point(block), NewExecutable)
			exec.ContentSubscribe(bw)
			ops := block.Ops()
			for i := len(ops) - 1; i >= 0; i-- {
				if err := bw.initializeRecursively(ops[i]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (bw *BackwardAnalysis) Visit(p Point) error {
	switch p := p.(type) {
	case *ir.Block:
		// Backward merging happens at terminators, never at blocks.
		return nil
	case ir.Operation:
		return bw.visitOperation(p)
	default:
		return fmt.Errorf("backward driver: unexpected program point %s", PointString(p))
	}
}

func (bw *BackwardAnalysis) visitOperation(op ir.Operation) error {
	if b := op.Parent(); b != nil {
		if !GetOrCreate(bw.solver, Point(b), NewExecutable).IsLive() {
			return nil
		}
	}
	bw.log.Debugf("transfer %s", PointString(Point(op)))
	operands := make([]Element, len(op.Operands()))
	for i, operand := range op.Operands() {
		operands[i] = bw.xfer.Element(operand)
	}
	// Demand flows from results to operands, so the op revisits when a
	// result element changes. The use-def chain subscription pushes the
	// other way (definitions to users) and stays out of this driver.
	results := make([]Element, len(op.Results()))
	for i, result := range op.Results() {
		el := bw.xfer.Element(result)
		bw.solver.AddDependency(el, WorkItem{Point: op, Analysis: bw})
		results[i] = el
	}

	// Structured branch: operands flow from the values its entry regions
	// bind (or, for an unentered region set, from nothing).
	if branch, ok := op.(ir.RegionBranchOp); ok {
		bw.visitRegionEntries(branch, operands)
		return nil
	}

	// CFG branch: each forwarded operand meets its successor argument;
	// anything unaccounted for goes through the branch operand hook.
	if branch, ok := op.(ir.BranchOp); ok {
		unaccounted := make([]bool, len(operands))
		for i := range unaccounted {
			unaccounted[i] = true
		}
		for si, succ := range branch.Successors() {
			first, n := branch.ForwardedOperands(si)
			succArgs := succ.Args()
			for i := 0; i < n && i < len(succArgs); i++ {
				idx := first + i
				if idx >= len(operands) {
					break
				}
				unaccounted[idx] = false
				bw.meet(operands[idx], bw.elementFor(op, succArgs[i]))
			}
		}
		for idx, missed := range unaccounted {
			if missed {
				bw.xfer.VisitBranchOperand(op, idx)
			}
		}
		return nil
	}

	// Resolvable call: operands meet the callee's parameters. An
	// unresolvable callee falls through to the generic transfer.
	if call, ok := op.(ir.CallOp); ok {
		if callee := bw.resolve(call); callee != nil {
			body := callee.CallableRegion()
			if body == nil || body.Empty() {
				// External definition; anything could happen to the
				// arguments over there.
				bw.SetAllToExitStates(operands)
				return nil
			}
			params := body.Entry().Args()
			for i, el := range operands {
				if i >= len(params) {
					break
				}
				bw.meet(el, bw.elementFor(op, params[i]))
			}
			return nil
		}
	}

	// Region terminator: operands flow from the successor region inputs.
	if term, ok := op.(ir.RegionTerminatorOp); ok {
		if _, ok := op.Parent().ParentOp().(ir.RegionBranchOp); ok {
			bw.visitRegionTerminator(term, operands)
			return nil
		}
	}

	// Return: operands meet the results of every known call site, or go
	// pessimistic when the caller set is open.
	if _, ok := op.(ir.ReturnLike); ok {
		if callable, ok := op.Parent().ParentOp().(ir.CallableOp); ok {
			sites := GetOrCreateFor(bw.solver, Point(ir.Operation(callable)), NewPredecessorState,
				WorkItem{Point: op, Analysis: bw})
			if !sites.AllPredecessorsKnown() {
				bw.SetAllToExitStates(operands)
				return nil
			}
			for _, site := range sites.Known() {
				siteResults := site.Results()
				for i, el := range operands {
					if i >= len(siteResults) {
						break
					}
					bw.meet(el, bw.elementFor(op, siteResults[i]))
				}
			}
			return nil
		}
	}

	return bw.xfer.VisitOperation(op, operands, results)
}

// visitRegionEntries meets each operand a structured branch forwards into a
// region with that region's entry argument element. Operands no entry
// successor consumes go through the branch operand hook.
func (bw *BackwardAnalysis) visitRegionEntries(branch ir.RegionBranchOp, operands []Element) {
	unaccounted := make([]bool, len(operands))
	for i := range unaccounted {
		unaccounted[i] = true
	}
	for _, succ := range branch.EntrySuccessors() {
		first, n := branch.EntryForwardedOperands(succ)
		for i := 0; i < n && i < len(succ.Inputs); i++ {
			idx := first + i
			if idx >= len(operands) {
				break
			}
			unaccounted[idx] = false
			bw.meet(operands[idx], bw.elementFor(branch, succ.Inputs[i]))
		}
	}
	for idx, missed := range unaccounted {
		if missed {
			bw.xfer.VisitBranchOperand(branch, idx)
		}
	}
}

// visitRegionTerminator meets each forwarded terminator operand with the
// inputs of every region successor it can transfer to.
func (bw *BackwardAnalysis) visitRegionTerminator(term ir.RegionTerminatorOp, operands []Element) {
	unaccounted := make([]bool, len(operands))
	for i := range unaccounted {
		unaccounted[i] = true
	}
	for _, succ := range term.SuccessorRegions() {
		first, n := term.ForwardedOperands(succ)
		for i := 0; i < n && i < len(succ.Inputs); i++ {
			idx := first + i
			if idx >= len(operands) {
				break
			}
			unaccounted[idx] = false
			bw.meet(operands[idx], bw.elementFor(term, succ.Inputs[i]))
		}
	}
	for idx, missed := range unaccounted {
		if missed {
			bw.xfer.VisitBranchOperand(term, idx)
		}
	}
}

// SetAllToExitStates pessimizes every element in elems.
func (bw *BackwardAnalysis) SetAllToExitStates(elems []Element) {
	for _, el := range elems {
		bw.xfer.SetToExitState(el)
	}
}

// elementFor reads an element while recording that op depends on it.
func (bw *BackwardAnalysis) elementFor(op ir.Operation, v ir.Value) Element {
	el := bw.xfer.Element(v)
	bw.solver.AddDependency(el, WorkItem{Point: op, Analysis: bw})
	return el
}

func (bw *BackwardAnalysis) meet(lhs, rhs Element) {
	bw.solver.PropagateIfChanged(lhs, lhs.Meet(rhs))
}

func (bw *BackwardAnalysis) resolve(op ir.CallOp) ir.CallableOp {
	if bw.module == nil {
		return nil
	}
	if f := bw.module.LookupFunc(op.Callee()); f != nil {
		return f
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
package analysis

// The standard pipeline: dead code, constant propagation and value demand
// over one module, plus the translation of raw lattice facts into
// user-facing findings.

import (
	"sort"

	"ebb/internal/dataflow"
	"ebb/internal/diag"
	"ebb/internal/ir"
)

// Result bundles the analyses after a completed solver run. The lattice
// facts stay valid as long as the module is not mutated.
type Result struct {
	Module *ir.ModuleOp
	Dead   *dataflow.DeadCodeAnalysis
	Consts *dataflow.ConstantPropagation
	Live   *dataflow.LiveValues
}

// Run drives all three analyses to fixpoint over m.
func Run(m *ir.ModuleOp) (*Result, error) {
	solver := dataflow.NewSolver()
	r := &Result{
		Module: m,
		Dead:   dataflow.NewDeadCode(solver),
		Consts: dataflow.NewConstantPropagation(solver),
		Live:   dataflow.NewLiveValues(solver),
	}
	if err := solver.Run(m); err != nil {
		return nil, err
	}
	return r, nil
}

// Findings renders the analysis facts as diagnostics, ordered by position:
// unreachable blocks, values nothing needs, and non-trivial constants.
func (r *Result) Findings() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, f := range r.Module.Funcs() {
		body := f.CallableRegion()
		if body == nil {
			continue
		}
		for _, block := range body.Blocks() {
			out = append(out, r.blockFindings(block)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

func (r *Result) blockFindings(block *ir.Block) []diag.Diagnostic {
	var out []diag.Diagnostic
	if !r.Dead.IsLive(block) {
		out = append(out, diag.UnreachableBlock(blockPos(block), block.Label()))
		return out
	}
	for _, op := range block.Ops() {
		for _, region := range op.Regions() {
			for _, inner := range region.Blocks() {
				out = append(out, r.blockFindings(inner)...)
			}
		}
		if isPure(op) && r.allResultsUnneeded(op) {
			name := op.Results()[0].Name()
			out = append(out, diag.UnusedValue(op.Pos(), name))
			continue
		}
		if _, isConst := op.(*ir.ConstOp); isConst {
			continue
		}
		for _, result := range op.Results() {
			if v, ok := r.Consts.ConstantAt(result); ok {
				out = append(out, diag.ConstantValue(result.Pos(), result.Name(), v))
			}
		}
	}
	for _, arg := range block.Args() {
		if v, ok := r.Consts.ConstantAt(arg); ok {
			out = append(out, diag.ConstantValue(arg.Pos(), arg.Name(), v))
		}
	}
	return out
}

func (r *Result) allResultsUnneeded(op ir.Operation) bool {
	results := op.Results()
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if r.Live.IsNeeded(result) {
			return false
		}
	}
	return true
}

// FactFor describes the value in one line, for hovers and annotations.
func (r *Result) FactFor(v ir.Value) string {
	c := r.Consts.ValueAt(v)
	demand := "not needed"
	if r.Live.IsNeeded(v) {
		demand = "needed"
	}
	return c.String() + ", " + demand
}

func isPure(op ir.Operation) bool {
	switch op.(type) {
	case *ir.ConstOp, *ir.BinOp, *ir.CmpOp:
		return true
	}
	return false
}

func blockPos(block *ir.Block) ir.Pos {
	if len(block.Ops()) > 0 {
		return block.Ops()[0].Pos()
	}
	if parent := block.ParentOp(); parent != nil {
		return parent.Pos()
	}
	return ir.Pos{}
}

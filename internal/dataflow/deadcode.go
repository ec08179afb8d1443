// SPDX-License-Identifier: Apache-2.0
package dataflow

// Control-flow liveness. DeadCodeAnalysis populates two kinds of state the
// sparse drivers consume: Executable (is this block or edge reachable) and
// PredecessorState (which operations transfer control into this point, and
// with which values). Liveness only ever goes from dead to live, so the
// analysis is trivially monotone.

import (
	"github.com/tliron/commonlog"

	"ebb/internal/ir"
)

// Executable is the liveness state of a block or CFG edge. Everything starts
// dead; SetLive is the only mutation.
type Executable struct {
	StateBase
	live bool

	// Content subscribers are re-enqueued on the anchor's contents when it
	// becomes live: for a block, the block point and every op in it; for an
	// edge, the destination block.
	subscribers []Analysis
}

func NewExecutable(anchor Point) *Executable {
	return &Executable{}
}

func (e *Executable) IsLive() bool { return e.live }

func (e *Executable) SetLive() Changed {
	if e.live {
		return NoChange
	}
	e.live = true
	return Change
}

// ContentSubscribe registers a for content re-enqueueing. Idempotent.
func (e *Executable) ContentSubscribe(a Analysis) {
	for _, prev := range e.subscribers {
		if prev == a {
			return
		}
	}
	e.subscribers = append(e.subscribers, a)
}

func (e *Executable) OnUpdate(s *Solver) {
	e.StateBase.OnUpdate(s)
	switch anchor := e.Anchor().(type) {
	case *ir.Block:
		for _, a := range e.subscribers {
			s.Enqueue(WorkItem{Point: anchor, Analysis: a})
			for _, op := range anchor.Ops() {
				s.Enqueue(WorkItem{Point: op, Analysis: a})
			}
		}
	case CFGEdge:
		for _, a := range e.subscribers {
			s.Enqueue(WorkItem{Point: anchor.To, Analysis: a})
		}
	}
}

// PredecessorState records the operations known to transfer control into a
// point: branch terminators into a region entry, call sites into a callable,
// return sites into a call's results. The known set only grows; allKnown
// only ever flips to false.
type PredecessorState struct {
	StateBase
	allKnown bool
	preds    []ir.Operation
	inputs   map[ir.Operation][]ir.Value
}

func NewPredecessorState(anchor Point) *PredecessorState {
	return &PredecessorState{allKnown: true}
}

// AllPredecessorsKnown reports whether the known set is exhaustive. False
// means a consumer must fall back to its pessimistic state.
func (p *PredecessorState) AllPredecessorsKnown() bool { return p.allKnown }

// Known returns the predecessors recorded so far, in discovery order.
func (p *PredecessorState) Known() []ir.Operation { return p.preds }

// SuccessorInputs returns the values pred feeds into the anchor, as recorded
// by Join.
func (p *PredecessorState) SuccessorInputs(pred ir.Operation) []ir.Value {
	return p.inputs[pred]
}

// Join records pred as a known predecessor feeding inputs.
func (p *PredecessorState) Join(pred ir.Operation, inputs []ir.Value) Changed {
	if p.inputs == nil {
		p.inputs = make(map[ir.Operation][]ir.Value)
	}
	if _, seen := p.inputs[pred]; seen {
		return NoChange
	}
	p.inputs[pred] = inputs
	p.preds = append(p.preds, pred)
	return Change
}

// SetHasUnknownPredecessors marks the known set non-exhaustive.
func (p *PredecessorState) SetHasUnknownPredecessors() Changed {
	if !p.allKnown {
		return NoChange
	}
	p.allKnown = false
	return Change
}

// DeadCodeAnalysis discovers which blocks and edges can execute and wires the
// predecessor states of region entries, callables and call sites. It never
// prunes on analysis facts: every successor of a live terminator is marked
// live, which keeps it sound for any client lattice.
type DeadCodeAnalysis struct {
	solver *Solver
	module *ir.ModuleOp
	log    commonlog.Logger
}

// NewDeadCode registers a dead code analysis with s. The sparse drivers
// require one; without it nothing is ever marked live.
func NewDeadCode(s *Solver) *DeadCodeAnalysis {
	a := &DeadCodeAnalysis{
		solver: s,
		log:    commonlog.GetLogger("ebb.dataflow.deadcode"),
	}
	s.Register(a)
	return a
}

func (a *DeadCodeAnalysis) Initialize(top ir.Operation) error {
	if m, ok := top.(*ir.ModuleOp); ok {
		a.module = m
		// The module body itself always executes.
		a.markBlockLive(m.Body())
		a.initCallables(m)
	}
	ir.Walk(top, func(op ir.Operation) {
		a.visitOp(op)
	})
	return nil
}

// initCallables seeds entry liveness for functions whose call sites cannot
// all be enumerated. A public function is callable from outside the module,
// so its entry is live and its call site set is never exhaustive.
func (a *DeadCodeAnalysis) initCallables(m *ir.ModuleOp) {
	for _, f := range m.Funcs() {
		region := f.CallableRegion()
		if region == nil || region.Empty() {
			continue
		}
		if !f.Public() {
			continue
		}
		a.markBlockLive(region.Entry())
		sites := GetOrCreate(a.solver, Point(f), NewPredecessorState)
		a.solver.PropagateIfChanged(sites, sites.SetHasUnknownPredecessors())
	}
}

func (a *DeadCodeAnalysis) Visit(p Point) error {
	if op, ok := p.(ir.Operation); ok {
		a.visitOp(op)
	}
	return nil
}

func (a *DeadCodeAnalysis) visitOp(op ir.Operation) {
	if b := op.Parent(); b != nil {
		exec := GetOrCreate(a.solver, Point(b), NewExecutable)
		exec.ContentSubscribe(a)
		if !exec.IsLive() {
			// Revisited via the content subscription if b wakes up.
			return
		}
	}
	switch op := op.(type) {
	case ir.RegionBranchOp:
		a.visitRegionBranch(op)
	case ir.SuccessorOp:
		a.visitBranch(op)
	case ir.CallOp:
		a.visitCall(op)
	case ir.RegionTerminatorOp:
		a.visitRegionTerminator(op)
	case ir.ReturnLike:
		a.visitReturn(op)
	}
}

// visitBranch marks every successor edge and block of a live CFG terminator
// live. Branch conditions are never folded here, and terminators without
// modeled operand forwarding still make their destinations reachable.
func (a *DeadCodeAnalysis) visitBranch(op ir.SuccessorOp) {
	from := op.Parent()
	for _, succ := range op.Successors() {
		edge := GetOrCreate(a.solver, Point(CFGEdge{From: from, To: succ}), NewExecutable)
		a.solver.PropagateIfChanged(edge, edge.SetLive())
		a.markBlockLive(succ)
	}
}

// visitRegionBranch marks the entry successors of a structured branch live
// and records the branch as a predecessor of each region entry (or of its
// own exit, for ops that can skip all regions).
func (a *DeadCodeAnalysis) visitRegionBranch(op ir.RegionBranchOp) {
	for _, succ := range op.EntrySuccessors() {
		if succ.IsParent() {
			exit := GetOrCreate(a.solver, Point(ir.Operation(op)), NewPredecessorState)
			a.solver.PropagateIfChanged(exit, exit.Join(op, succ.Inputs))
			continue
		}
		entry := succ.Region.Entry()
		if entry == nil {
			continue
		}
		a.markBlockLive(entry)
		preds := GetOrCreate(a.solver, Point(entry), NewPredecessorState)
		a.solver.PropagateIfChanged(preds, preds.Join(op, succ.Inputs))
	}
}

// visitRegionTerminator records a live region terminator as a predecessor of
// its successor region entries, or of the parent op's exit.
func (a *DeadCodeAnalysis) visitRegionTerminator(op ir.RegionTerminatorOp) {
	for _, succ := range op.SuccessorRegions() {
		if succ.IsParent() {
			parent := op.Parent().ParentOp()
			exit := GetOrCreate(a.solver, Point(parent), NewPredecessorState)
			a.solver.PropagateIfChanged(exit, exit.Join(op, succ.Inputs))
			continue
		}
		entry := succ.Region.Entry()
		if entry == nil {
			continue
		}
		a.markBlockLive(entry)
		preds := GetOrCreate(a.solver, Point(entry), NewPredecessorState)
		a.solver.PropagateIfChanged(preds, preds.Join(op, succ.Inputs))
	}
}

// visitCall resolves the callee, marks its entry live and records the call
// as a known call site. An unresolvable or external callee poisons the
// call's return-site state instead.
func (a *DeadCodeAnalysis) visitCall(op ir.CallOp) {
	callee := a.resolve(op)
	var body *ir.Region
	if callee != nil {
		body = callee.CallableRegion()
	}
	if body == nil || body.Empty() {
		returns := GetOrCreate(a.solver, Point(ir.Operation(op)), NewPredecessorState)
		a.solver.PropagateIfChanged(returns, returns.SetHasUnknownPredecessors())
		return
	}
	entry := body.Entry()
	a.markBlockLive(entry)
	inputs := make([]ir.Value, len(entry.Args()))
	for i, arg := range entry.Args() {
		inputs[i] = arg
	}
	sites := GetOrCreate(a.solver, Point(ir.Operation(callee)), NewPredecessorState)
	a.solver.PropagateIfChanged(sites, sites.Join(op, inputs))
}

// visitReturn records a live return as a predecessor of every known call
// site of the enclosing function. It depends on the call site set, so new
// call sites re-trigger it.
func (a *DeadCodeAnalysis) visitReturn(op ir.Operation) {
	callable, ok := op.Parent().ParentOp().(ir.CallableOp)
	if !ok {
		return
	}
	sites := GetOrCreateFor(a.solver, Point(ir.Operation(callable)), NewPredecessorState,
		WorkItem{Point: op, Analysis: a})
	for _, site := range sites.Known() {
		returns := GetOrCreate(a.solver, Point(site), NewPredecessorState)
		a.solver.PropagateIfChanged(returns, returns.Join(op, site.Results()))
	}
}

func (a *DeadCodeAnalysis) resolve(op ir.CallOp) ir.CallableOp {
	if a.module == nil {
		return nil
	}
	if f := a.module.LookupFunc(op.Callee()); f != nil {
		return f
	}
	return nil
}

func (a *DeadCodeAnalysis) markBlockLive(b *ir.Block) {
	exec := GetOrCreate(a.solver, Point(b), NewExecutable)
	if !exec.IsLive() {
		a.log.Debugf("live %s", PointString(Point(b)))
	}
	a.solver.PropagateIfChanged(exec, exec.SetLive())
}

// IsLive reports whether b was found reachable. Callable after Run.
func (a *DeadCodeAnalysis) IsLive(b *ir.Block) bool {
	exec, ok := Lookup[*Executable](a.solver, Point(b))
	return ok && exec.IsLive()
}

// IsEdgeLive reports whether the from->to edge was found executable.
func (a *DeadCodeAnalysis) IsEdgeLive(from, to *ir.Block) bool {
	exec, ok := Lookup[*Executable](a.solver, Point(CFGEdge{From: from, To: to}))
	return ok && exec.IsLive()
}

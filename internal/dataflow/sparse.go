// SPDX-License-Identifier: Apache-2.0
package dataflow

// Sparse analysis: one lattice element per SSA value, transfer functions on
// operations, and a forward driver that resolves control flow through the
// Executable and PredecessorState facts of DeadCodeAnalysis. The driver owns
// all control-flow reasoning; a concrete analysis only supplies the lattice
// and the per-operation transfer function.

import (
	"fmt"

	"github.com/tliron/commonlog"

	"ebb/internal/ir"
)

// Element is the mutable abstract fact attached 1:1 to an SSA value.
type Element interface {
	State
	// Value returns the SSA value this element describes.
	Value() ir.Value
	// Join merges rhs in, moving toward less precision (forward merges).
	Join(rhs Element) Changed
	// Meet merges rhs in along the dual order (backward merges).
	Meet(rhs Element) Changed
	// UseDefSubscribe registers a to be re-enqueued on every user of this
	// element's value whenever the element changes. Idempotent.
	UseDefSubscribe(a Analysis)
}

// ElementBase implements the subscriber bookkeeping and the push-to-users
// update rule shared by all lattice elements.
type ElementBase struct {
	StateBase
	subscribers []Analysis
}

func (e *ElementBase) Value() ir.Value { return e.Anchor().(ir.Value) }

func (e *ElementBase) UseDefSubscribe(a Analysis) {
	for _, prev := range e.subscribers {
		if prev == a {
			return
		}
	}
	e.subscribers = append(e.subscribers, a)
}

func (e *ElementBase) OnUpdate(s *Solver) {
	e.StateBase.OnUpdate(s)
	// Push the change along the use-def chain: each subscribed analysis
	// revisits every user of the defining value.
	for _, user := range e.Value().Users() {
		for _, a := range e.subscribers {
			s.Enqueue(WorkItem{Point: user, Analysis: a})
		}
	}
}

// LatticeValue is the value-semantics contract for lattice contents. Join
// and Meet must be monotone on a finite-height order and Equal must be the
// equality Join/Meet stabilize under.
type LatticeValue[V any] interface {
	Join(other V) V
	Meet(other V) V
	Equal(other V) bool
}

// Lattice is a lattice element holding a value of type V.
type Lattice[V LatticeValue[V]] struct {
	ElementBase
	val V
}

func (l *Lattice[V]) Get() V { return l.val }

func (l *Lattice[V]) Join(rhs Element) Changed {
	return l.JoinValue(rhs.(*Lattice[V]).val)
}

func (l *Lattice[V]) Meet(rhs Element) Changed {
	return l.MeetValue(rhs.(*Lattice[V]).val)
}

// JoinValue merges v in along the join direction.
func (l *Lattice[V]) JoinValue(v V) Changed {
	next := l.val.Join(v)
	if next.Equal(l.val) {
		return NoChange
	}
	l.val = next
	return Change
}

// MeetValue merges v in along the meet direction.
func (l *Lattice[V]) MeetValue(v V) Changed {
	next := l.val.Meet(v)
	if next.Equal(l.val) {
		return NoChange
	}
	l.val = next
	return Change
}

// LatticeFor returns the lattice element of kind V attached to v, creating
// it at V's zero value on first use.
func LatticeFor[V LatticeValue[V]](s *Solver, v ir.Value) *Lattice[V] {
	return GetOrCreate(s, Point(v), func(Point) *Lattice[V] {
		return &Lattice[V]{}
	})
}

// ForwardTransfer is the analysis-specific half of a forward sparse
// analysis; ForwardAnalysis supplies the control-flow half.
type ForwardTransfer interface {
	// Element returns this analysis's lattice element for v.
	Element(v ir.Value) Element
	// SetToEntryState moves el to the pessimistic entry state and
	// propagates the change.
	SetToEntryState(el Element)
	// VisitOperation applies op's transfer function: read the operand
	// elements, update the result elements through the solver.
	VisitOperation(op ir.Operation, operands, results []Element) error
	// VisitNonControlFlowArguments handles entry block arguments of a
	// region the driver cannot attribute to any control-flow transfer.
	// succ identifies the region; arguments outside
	// [firstIndex, firstIndex+len(succ.Inputs)) are unaccounted for.
	VisitNonControlFlowArguments(op ir.Operation, succ ir.RegionSuccessor, args []Element, firstIndex int)
}

// ForwardAnalysis drives a ForwardTransfer to fixpoint: operand elements
// flow into result elements, control-flow transfers flow into block
// argument elements.
type ForwardAnalysis struct {
	solver *Solver
	xfer   ForwardTransfer
	log    commonlog.Logger
}

// RegisterForward registers a forward driver for xfer on s. The returned
// driver is the Analysis identity used for all subscriptions, so two
// transfers registered on one solver never share revisits.
func RegisterForward(s *Solver, xfer ForwardTransfer) *ForwardAnalysis {
	a := &ForwardAnalysis{
		solver: s,
		xfer:   xfer,
		log:    commonlog.GetLogger("ebb.dataflow.forward"),
	}
	s.Register(a)
	return a
}

func (f *ForwardAnalysis) Initialize(top ir.Operation) error {
	// Values defined above all analyzed control flow start pessimistic.
	for _, region := range top.Regions() {
		if region.Empty() {
			continue
		}
		for _, arg := range region.Entry().Args() {
			f.xfer.SetToEntryState(f.xfer.Element(arg))
		}
	}
	return f.initializeRecursively(top)
}

func (f *ForwardAnalysis) initializeRecursively(op ir.Operation) error {
	if err := f.visitOperation(op); err != nil {
		return err
	}
	for _, region := range op.Regions() {
		for _, block := range region.Blocks() {
			exec := GetOrCreate(f.solver, Point(block), NewExecutable)
			exec.ContentSubscribe(f)
			if err := f.visitBlock(block); err != nil {
				return err
			}
			for _, inner := range block.Ops() {
				if err := f.initializeRecursively(inner); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (f *ForwardAnalysis) Visit(p Point) error {
	switch p := p.(type) {
	case *ir.Block:
		return f.visitBlock(p)
	case ir.Operation:
		return f.visitOperation(p)
	default:
		return fmt.Errorf("forward driver: unexpected program point %s", PointString(p))
	}
}

func (f *ForwardAnalysis) visitOperation(op ir.Operation) error {
	// Only ops that define values have a sparse transfer.
	if len(op.Results()) == 0 {
		return nil
	}
	if b := op.Parent(); b != nil {
		if !GetOrCreate(f.solver, Point(b), NewExecutable).IsLive() {
			return nil
		}
	}
	f.log.Debugf("transfer %s", PointString(Point(op)))
	results := f.elements(op.Results())

	// Structured branches get their results from whichever region
	// terminators can exit to the parent.
	if branch, ok := op.(ir.RegionBranchOp); ok {
		f.visitRegionSuccessors(Point(op), branch,
			ir.RegionSuccessor{Inputs: op.Results()}, results)
		return nil
	}

	// Calls get their results from the callee's known return sites.
	if _, ok := op.(ir.CallOp); ok {
		returns := GetOrCreateFor(f.solver, Point(op), NewPredecessorState,
			WorkItem{Point: op, Analysis: f})
		if !returns.AllPredecessorsKnown() {
			f.SetAllToEntryStates(results)
			return nil
		}
		for _, ret := range returns.Known() {
			for i, operand := range ret.Operands() {
				if i >= len(results) {
					break
				}
				f.join(results[i], f.elementFor(Point(op), operand))
			}
		}
		return nil
	}

	operands := make([]Element, len(op.Operands()))
	for i, operand := range op.Operands() {
		el := f.xfer.Element(operand)
		el.UseDefSubscribe(f)
		operands[i] = el
	}
	return f.xfer.VisitOperation(op, operands, results)
}

func (f *ForwardAnalysis) visitBlock(b *ir.Block) error {
	if len(b.Args()) == 0 {
		return nil
	}
	if !GetOrCreate(f.solver, Point(b), NewExecutable).IsLive() {
		return nil
	}
	args := make([]Element, len(b.Args()))
	for i, arg := range b.Args() {
		args[i] = f.xfer.Element(arg)
	}

	if b.IsEntry() {
		parent := b.ParentOp()

		// Callable entry: arguments come from known call sites.
		if callable, ok := parent.(ir.CallableOp); ok && callable.CallableRegion() == b.Region() {
			sites := GetOrCreateFor(f.solver, Point(parent), NewPredecessorState,
				WorkItem{Point: b, Analysis: f})
			if !sites.AllPredecessorsKnown() {
				f.SetAllToEntryStates(args)
				return nil
			}
			for _, site := range sites.Known() {
				call, ok := site.(ir.CallOp)
				if !ok {
					return fmt.Errorf("forward driver: call site of %s is %s, not a call",
						PointString(parent), PointString(site))
				}
				for i, operand := range call.ArgOperands() {
					if i >= len(args) {
						break
					}
					f.join(args[i], f.elementFor(Point(b), operand))
				}
			}
			return nil
		}

		// Structured region entry: arguments come from the region
		// transfers recorded by dead code analysis.
		if branch, ok := parent.(ir.RegionBranchOp); ok {
			inputs := make([]ir.Value, len(b.Args()))
			for i, arg := range b.Args() {
				inputs[i] = arg
			}
			f.visitRegionSuccessors(Point(b), branch,
				ir.RegionSuccessor{Region: b.Region(), Inputs: inputs}, args)
			return nil
		}

		// No control flow accounts for these arguments.
		f.xfer.VisitNonControlFlowArguments(parent,
			ir.RegionSuccessor{Region: b.Region()}, args, 0)
		return nil
	}

	// Ordinary block: join the forwarded operands of every live-edge
	// predecessor terminator.
	for _, pred := range b.Preds() {
		edge := GetOrCreate(f.solver, Point(CFGEdge{From: pred, To: b}), NewExecutable)
		edge.ContentSubscribe(f)
		if !edge.IsLive() {
			continue
		}
		term := pred.Terminator()
		branch, ok := term.(ir.BranchOp)
		if !ok {
			// An unrecognized terminator could bind anything.
			f.SetAllToEntryStates(args)
			return nil
		}
		for si, succ := range branch.Successors() {
			if succ != b {
				continue
			}
			first, n := branch.ForwardedOperands(si)
			operands := ir.OperandRange(term, first, n)
			for i, el := range args {
				if i < len(operands) {
					f.join(el, f.elementFor(Point(b), operands[i]))
				} else {
					f.xfer.SetToEntryState(el)
				}
			}
		}
	}
	return nil
}

// visitRegionSuccessors joins the values each known predecessor forwards to
// dest into elems. point is the visit being serviced (the region entry block
// or the parent op itself); the predecessor state lives on the same anchor.
func (f *ForwardAnalysis) visitRegionSuccessors(point Point, branch ir.RegionBranchOp, dest ir.RegionSuccessor, elems []Element) {
	preds := GetOrCreateFor(f.solver, point, NewPredecessorState,
		WorkItem{Point: point, Analysis: f})
	// Region transfers are always fully resolvable; only calls and public
	// callables have unknown predecessors.
	if !preds.AllPredecessorsKnown() {
		panic(fmt.Sprintf("unknown predecessors on region point %s", PointString(point)))
	}
	for _, pred := range preds.Known() {
		var first, n int
		switch {
		case pred == ir.Operation(branch):
			first, n = branch.EntryForwardedOperands(dest)
		default:
			term, ok := pred.(ir.RegionTerminatorOp)
			if !ok {
				f.SetAllToEntryStates(elems)
				continue
			}
			first, n = term.ForwardedOperands(dest)
		}
		operands := ir.OperandRange(pred, first, n)

		inputs := preds.SuccessorInputs(pred)
		firstIndex := 0
		if len(inputs) != len(elems) {
			// The transfer binds only a suffix slice of the
			// destination values; let the analysis decide the rest.
			if len(inputs) > 0 {
				switch in := inputs[0].(type) {
				case *ir.BlockArg:
					firstIndex = in.Index()
				case *ir.OpResult:
					firstIndex = in.Index()
				}
			}
			f.xfer.VisitNonControlFlowArguments(branch,
				ir.RegionSuccessor{Region: dest.Region, Inputs: inputs},
				elems, firstIndex)
		}
		for i, operand := range operands {
			idx := firstIndex + i
			if idx >= len(elems) {
				break
			}
			f.join(elems[idx], f.elementFor(point, operand))
		}
	}
}

// SetAllToEntryStates pessimizes every element in elems.
func (f *ForwardAnalysis) SetAllToEntryStates(elems []Element) {
	for _, el := range elems {
		f.xfer.SetToEntryState(el)
	}
}

func (f *ForwardAnalysis) elements(values []ir.Value) []Element {
	out := make([]Element, len(values))
	for i, v := range values {
		out[i] = f.xfer.Element(v)
	}
	return out
}

// elementFor reads an element while recording that point depends on it.
func (f *ForwardAnalysis) elementFor(point Point, v ir.Value) Element {
	el := f.xfer.Element(v)
	f.solver.AddDependency(el, WorkItem{Point: point, Analysis: f})
	return el
}

func (f *ForwardAnalysis) join(lhs, rhs Element) {
	f.solver.PropagateIfChanged(lhs, lhs.Join(rhs))
}

// SPDX-License-Identifier: Apache-2.0
package dataflow

// The fixpoint solver. It owns the per-point state table and the work queue;
// analyses own nothing but their visit logic. A state changes only through
// PropagateIfChanged, which re-enqueues every dependent work item, so the
// run settles exactly when no state can change anymore.

import (
	"fmt"
	"reflect"

	"github.com/tliron/commonlog"

	"ebb/internal/ir"
)

// Point identifies a location the solver can visit or attach state to: an
// ir.Operation, an *ir.Block, a CFGEdge, or (as a state anchor only) an
// ir.Value.
type Point any

// CFGEdge is a control-flow edge between two blocks of the same region.
// Edges are first-class points because an edge may become live strictly
// after its source block was processed.
type CFGEdge struct {
	From, To *ir.Block
}

// WorkItem pairs a point with the analysis that must (re)visit it.
type WorkItem struct {
	Point    Point
	Analysis Analysis
}

// Analysis is a dataflow analysis registered with a solver. Initialize runs
// once per solver run; Visit is invoked for every queued point.
type Analysis interface {
	Initialize(top ir.Operation) error
	Visit(p Point) error
}

// Changed reports whether a state mutation actually changed the state.
type Changed bool

const (
	NoChange Changed = false
	Change   Changed = true
)

func (c Changed) Or(o Changed) Changed { return c || o }

// State is analysis state attached to a point. States are created lazily,
// owned by the solver's table, and never destroyed during a run.
type State interface {
	Anchor() Point
	// OnUpdate is invoked by the solver after an accepted change. The base
	// behavior re-enqueues every dependent work item, each exactly once
	// per change.
	OnUpdate(s *Solver)

	stateBase() *StateBase
}

// StateBase carries the anchor and the dependent set; concrete states embed
// it. Dependent registration is idempotent.
type StateBase struct {
	anchor Point
	deps   []WorkItem
	depSet map[WorkItem]struct{}
}

func (b *StateBase) Anchor() Point         { return b.anchor }
func (b *StateBase) stateBase() *StateBase { return b }

func (b *StateBase) OnUpdate(s *Solver) {
	for _, item := range b.deps {
		s.Enqueue(item)
	}
}

func (b *StateBase) addDependent(item WorkItem) {
	if b.depSet == nil {
		b.depSet = make(map[WorkItem]struct{})
	}
	if _, ok := b.depSet[item]; ok {
		return
	}
	b.depSet[item] = struct{}{}
	b.deps = append(b.deps, item)
}

type stateKey struct {
	anchor Point
	typ    reflect.Type
}

// Solver drives registered analyses to a fixpoint. Single-threaded by
// contract; all state access happens inside Visit calls.
type Solver struct {
	states   map[stateKey]State
	queue    []WorkItem
	analyses []Analysis
	log      commonlog.Logger
}

func NewSolver() *Solver {
	return &Solver{
		states: make(map[stateKey]State),
		log:    commonlog.GetLogger("ebb.dataflow"),
	}
}

// Register adds an analysis. Registration order is initialization order.
func (s *Solver) Register(a Analysis) {
	s.analyses = append(s.analyses, a)
}

// Run initializes every analysis on top, then drains the work queue until no
// point is pending. Termination is the lattice author's obligation (finite
// height, monotone merges); the solver does not police it.
func (s *Solver) Run(top ir.Operation) error {
	for _, a := range s.analyses {
		if err := a.Initialize(top); err != nil {
			return fmt.Errorf("initializing %T: %w", a, err)
		}
	}
	for len(s.queue) > 0 {
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.log.Debugf("visit %s", PointString(item.Point))
		if err := item.Analysis.Visit(item.Point); err != nil {
			return fmt.Errorf("visiting %s: %w", PointString(item.Point), err)
		}
	}
	return nil
}

// Enqueue schedules a revisit.
func (s *Solver) Enqueue(item WorkItem) {
	s.queue = append(s.queue, item)
}

// AddDependency re-enqueues item whenever st changes.
func (s *Solver) AddDependency(st State, item WorkItem) {
	st.stateBase().addDependent(item)
}

// PropagateIfChanged notifies dependents of st when changed is true. This is
// the only sanctioned way to publish a state mutation.
func (s *Solver) PropagateIfChanged(st State, changed Changed) {
	if !changed {
		return
	}
	s.log.Debugf("changed %s", PointString(st.Anchor()))
	st.OnUpdate(s)
}

// GetOrCreate fetches the state of type S anchored at p, creating it with
// ctor on first use. The (anchor, state type) pair is the table key, so
// distinct state types coexist on one anchor.
func GetOrCreate[S State](s *Solver, p Point, ctor func(Point) S) S {
	key := stateKey{anchor: p, typ: reflect.TypeFor[S]()}
	if st, ok := s.states[key]; ok {
		return st.(S)
	}
	st := ctor(p)
	st.stateBase().anchor = p
	s.states[key] = st
	return st
}

// GetOrCreateFor is GetOrCreate plus a dependency: dependent is re-enqueued
// whenever the returned state changes.
func GetOrCreateFor[S State](s *Solver, p Point, ctor func(Point) S, dependent WorkItem) S {
	st := GetOrCreate(s, p, ctor)
	s.AddDependency(st, dependent)
	return st
}

// Lookup returns the state of type S anchored at p if it exists.
func Lookup[S State](s *Solver, p Point) (S, bool) {
	key := stateKey{anchor: p, typ: reflect.TypeFor[S]()}
	st, ok := s.states[key]
	if !ok {
		var zero S
		return zero, false
	}
	return st.(S), true
}

// PointString renders a point for logs and errors.
func PointString(p Point) string {
	switch p := p.(type) {
	case *ir.Block:
		return fmt.Sprintf("block ^%s", p.Label())
	case CFGEdge:
		return fmt.Sprintf("edge ^%s -> ^%s", p.From.Label(), p.To.Label())
	case ir.Operation:
		return fmt.Sprintf("op %s at %s", p.OpName(), p.Pos())
	case ir.Value:
		return fmt.Sprintf("value %%%s", p.Name())
	default:
		return fmt.Sprintf("%T", p)
	}
}

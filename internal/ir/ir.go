// SPDX-License-Identifier: Apache-2.0
package ir

// Core structural types for the region-based IR.
//
// The IR is in SSA form: every value is defined exactly once, either as an
// operation result or as a block argument. Operations live in blocks, blocks
// live in regions, and regions are owned by operations, so arbitrarily nested
// structured control flow (if/while) coexists with ordinary CFG branches
// inside a region.

import "fmt"

// Pos is a source position carried through from the textual form. The zero
// value means "no position" (IR built programmatically).
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Type is the value type. The dialect only distinguishes integers from
// booleans; that is all the example analyses need.
type Type interface {
	String() string
}

type IntType struct{}

type BoolType struct{}

func (IntType) String() string  { return "int" }
func (BoolType) String() string { return "bool" }

// Use records one operand slot that consumes a value.
type Use struct {
	Owner Operation
	Index int
}

// Value is an SSA value: an operation result or a block argument. Values
// never change identity; analyses attach mutable facts to them externally.
type Value interface {
	Name() string
	Type() Type
	Pos() Pos
	// Uses returns every operand slot consuming this value.
	Uses() []Use
	// Users returns the operations consuming this value, with operations
	// using it in more than one slot reported once.
	Users() []Operation

	addUse(u Use)
}

type valueBase struct {
	name string
	typ  Type
	pos  Pos
	uses []Use
}

func (v *valueBase) Name() string { return v.name }
func (v *valueBase) Type() Type   { return v.typ }
func (v *valueBase) Pos() Pos     { return v.pos }
func (v *valueBase) Uses() []Use  { return v.uses }

func (v *valueBase) Users() []Operation {
	var users []Operation
	for _, u := range v.uses {
		seen := false
		for _, prev := range users {
			if prev == u.Owner {
				seen = true
				break
			}
		}
		if !seen {
			users = append(users, u.Owner)
		}
	}
	return users
}

func (v *valueBase) addUse(u Use) { v.uses = append(v.uses, u) }

// OpResult is a value produced by an operation.
type OpResult struct {
	valueBase
	owner Operation
	index int
}

func (r *OpResult) Owner() Operation { return r.owner }
func (r *OpResult) Index() int       { return r.index }

// BlockArg is a value produced by a block header. For entry blocks the
// arguments are bound by callers or by structured control flow; for other
// blocks they are bound by predecessor branch operands.
type BlockArg struct {
	valueBase
	block *Block
	index int
}

func (a *BlockArg) Block() *Block { return a.block }
func (a *BlockArg) Index() int    { return a.index }

// Operation is implemented by every op in the dialect. Concrete ops embed
// opBase and add capability interfaces (CallOp, BranchOp, ...) as needed.
type Operation interface {
	OpName() string
	Operands() []Value
	Results() []Value
	Regions() []*Region
	// Parent returns the containing block, or nil for the top-level module.
	Parent() *Block
	Pos() Pos

	base() *opBase
}

type opBase struct {
	parent   *Block
	pos      Pos
	operands []Value
	results  []*OpResult
	regions  []*Region
}

func (b *opBase) Parent() *Block     { return b.parent }
func (b *opBase) Pos() Pos           { return b.pos }
func (b *opBase) Operands() []Value  { return b.operands }
func (b *opBase) Regions() []*Region { return b.regions }
func (b *opBase) base() *opBase      { return b }

func (b *opBase) Results() []Value {
	out := make([]Value, len(b.results))
	for i, r := range b.results {
		out[i] = r
	}
	return out
}

// Result returns the i-th result.
func (b *opBase) Result(i int) *OpResult { return b.results[i] }

// build wires operands, results and regions into the op. self is the concrete
// op embedding this base; it is recorded as the owner of results and uses.
func (b *opBase) build(self Operation, pos Pos, operands []Value, resultNames []string, resultTypes []Type, regions []*Region) {
	b.pos = pos
	b.operands = operands
	for i, opd := range operands {
		opd.addUse(Use{Owner: self, Index: i})
	}
	for i, t := range resultTypes {
		name := ""
		if i < len(resultNames) {
			name = resultNames[i]
		}
		b.results = append(b.results, &OpResult{
			valueBase: valueBase{name: name, typ: t, pos: pos},
			owner:     self,
			index:     i,
		})
	}
	b.regions = regions
	for _, r := range regions {
		r.parent = self
	}
}

// Block is a sequence of operations ending in a terminator.
type Block struct {
	label  string
	args   []*BlockArg
	ops    []Operation
	region *Region
	preds  []*Block
}

func (b *Block) Label() string     { return b.label }
func (b *Block) Args() []*BlockArg { return b.args }
func (b *Block) Ops() []Operation  { return b.ops }
func (b *Block) Region() *Region   { return b.region }

// ParentOp returns the operation owning the region this block belongs to.
func (b *Block) ParentOp() Operation {
	if b.region == nil {
		return nil
	}
	return b.region.parent
}

// Terminator returns the block's final operation, or nil while the block is
// still being built.
func (b *Block) Terminator() Operation {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// Preds returns the distinct CFG predecessor blocks.
func (b *Block) Preds() []*Block { return b.preds }

func (b *Block) IsEntry() bool {
	return b.region != nil && len(b.region.blocks) > 0 && b.region.blocks[0] == b
}

// AddArg appends a block argument.
func (b *Block) AddArg(name string, t Type, pos Pos) *BlockArg {
	arg := &BlockArg{
		valueBase: valueBase{name: name, typ: t, pos: pos},
		block:     b,
		index:     len(b.args),
	}
	b.args = append(b.args, arg)
	return arg
}

// Append adds an operation to the end of the block. Appending a CFG branch
// records this block as a predecessor of each successor.
func (b *Block) Append(op Operation) {
	op.base().parent = b
	b.ops = append(b.ops, op)
	if term, ok := op.(SuccessorOp); ok {
		for _, succ := range term.Successors() {
			succ.addPred(b)
		}
	}
}

func (b *Block) addPred(p *Block) {
	for _, prev := range b.preds {
		if prev == p {
			return
		}
	}
	b.preds = append(b.preds, p)
}

// Region is an ordered list of blocks owned by an operation. The first block
// is the entry block.
type Region struct {
	parent Operation
	blocks []*Block
}

func (r *Region) ParentOp() Operation { return r.parent }
func (r *Region) Blocks() []*Block    { return r.blocks }
func (r *Region) Empty() bool         { return len(r.blocks) == 0 }

func (r *Region) Entry() *Block {
	if len(r.blocks) == 0 {
		return nil
	}
	return r.blocks[0]
}

// NewBlock appends a fresh block to the region.
func (r *Region) NewBlock(label string) *Block {
	b := &Block{label: label, region: r}
	r.blocks = append(r.blocks, b)
	return b
}

// Walk visits op and, pre-order, every operation nested in its regions.
func Walk(op Operation, fn func(Operation)) {
	fn(op)
	for _, region := range op.Regions() {
		for _, block := range region.Blocks() {
			for _, inner := range block.Ops() {
				Walk(inner, fn)
			}
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
package ir

// The concrete dialect. One struct per op, go/ssa style; capability
// interfaces are implemented only where they apply, and the dataflow engine
// discovers them by interface assertion.

import "fmt"

func blockArgValues(b *Block) []Value {
	if b == nil {
		return nil
	}
	out := make([]Value, len(b.Args()))
	for i, a := range b.Args() {
		out[i] = a
	}
	return out
}

// ModuleOp is the top-level operation: one region with one block holding the
// function definitions.
type ModuleOp struct {
	opBase
}

func NewModule(pos Pos) *ModuleOp {
	m := &ModuleOp{}
	body := &Region{}
	m.build(m, pos, nil, nil, nil, []*Region{body})
	body.NewBlock("")
	return m
}

func (m *ModuleOp) OpName() string { return "module" }

func (m *ModuleOp) Body() *Block { return m.regions[0].Entry() }

func (m *ModuleOp) AddFunc(f *FuncOp) { m.Body().Append(f) }

func (m *ModuleOp) Funcs() []*FuncOp {
	var funcs []*FuncOp
	for _, op := range m.Body().Ops() {
		if f, ok := op.(*FuncOp); ok {
			funcs = append(funcs, f)
		}
	}
	return funcs
}

// LookupFunc resolves a callee symbol, returning nil when undefined.
func (m *ModuleOp) LookupFunc(name string) *FuncOp {
	for _, f := range m.Funcs() {
		if f.FuncName() == name {
			return f
		}
	}
	return nil
}

// FuncOp is a callable. Its entry block arguments are the parameters. A
// FuncOp without a body is an external declaration.
type FuncOp struct {
	opBase
	name        string
	public      bool
	resultTypes []Type
}

func NewFunc(name string, public bool, resultTypes []Type, external bool, pos Pos) *FuncOp {
	f := &FuncOp{name: name, public: public, resultTypes: resultTypes}
	var regions []*Region
	if !external {
		regions = []*Region{{}}
	}
	f.build(f, pos, nil, nil, nil, regions)
	return f
}

func (f *FuncOp) OpName() string      { return "func" }
func (f *FuncOp) FuncName() string    { return f.name }
func (f *FuncOp) Public() bool        { return f.public }
func (f *FuncOp) ResultTypes() []Type { return f.resultTypes }

func (f *FuncOp) CallableRegion() *Region {
	if len(f.regions) == 0 {
		return nil
	}
	return f.regions[0]
}

// ConstOp materializes an integer or boolean constant.
type ConstOp struct {
	opBase
	val     int64
	boolean bool
}

func NewConst(name string, v int64, pos Pos) *ConstOp {
	c := &ConstOp{val: v}
	c.build(c, pos, nil, []string{name}, []Type{IntType{}}, nil)
	return c
}

func NewBoolConst(name string, v bool, pos Pos) *ConstOp {
	c := &ConstOp{boolean: true}
	if v {
		c.val = 1
	}
	c.build(c, pos, nil, []string{name}, []Type{BoolType{}}, nil)
	return c
}

func (c *ConstOp) OpName() string { return "const" }
func (c *ConstOp) IsBool() bool   { return c.boolean }
func (c *ConstOp) Value() int64   { return c.val }
func (c *ConstOp) BoolValue() bool {
	return c.val != 0
}

// BinOp is integer arithmetic: add or mul.
type BinOp struct {
	opBase
	kind string
}

func NewBin(kind, name string, x, y Value, pos Pos) *BinOp {
	b := &BinOp{kind: kind}
	b.build(b, pos, []Value{x, y}, []string{name}, []Type{IntType{}}, nil)
	return b
}

func (b *BinOp) OpName() string { return b.kind }
func (b *BinOp) Kind() string   { return b.kind }

// CmpOp compares two integers and produces a boolean.
type CmpOp struct {
	opBase
	pred string
}

func NewCmp(pred, name string, x, y Value, pos Pos) *CmpOp {
	c := &CmpOp{pred: pred}
	c.build(c, pos, []Value{x, y}, []string{name}, []Type{BoolType{}}, nil)
	return c
}

func (c *CmpOp) OpName() string    { return "cmp" }
func (c *CmpOp) Predicate() string { return c.pred }

// CallInst transfers control to a function by symbol.
type CallInst struct {
	opBase
	callee string
}

func NewCall(callee string, args []Value, resultNames []string, resultTypes []Type, pos Pos) *CallInst {
	c := &CallInst{callee: callee}
	c.build(c, pos, args, resultNames, resultTypes, nil)
	return c
}

func (c *CallInst) OpName() string      { return "call" }
func (c *CallInst) Callee() string      { return c.callee }
func (c *CallInst) ArgOperands() []Value { return c.operands }

// ReturnOp returns out of the enclosing function.
type ReturnOp struct {
	opBase
}

func NewReturn(args []Value, pos Pos) *ReturnOp {
	r := &ReturnOp{}
	r.build(r, pos, args, nil, nil, nil)
	return r
}

func (r *ReturnOp) OpName() string { return "return" }
func (r *ReturnOp) isReturnLike()  {}

// BrOp is an unconditional branch forwarding operands to the destination's
// block arguments.
type BrOp struct {
	opBase
	dest *Block
}

func NewBr(dest *Block, args []Value, pos Pos) *BrOp {
	b := &BrOp{dest: dest}
	b.build(b, pos, args, nil, nil, nil)
	return b
}

func (b *BrOp) OpName() string      { return "br" }
func (b *BrOp) Successors() []*Block { return []*Block{b.dest} }

func (b *BrOp) ForwardedOperands(succ int) (int, int) {
	return 0, len(b.operands)
}

// CondBrOp branches on a boolean condition. Operand 0 is the condition; the
// true and false destinations each get a contiguous forwarded operand range.
type CondBrOp struct {
	opBase
	trueDest, falseDest *Block
	nTrue               int
}

func NewCondBr(cond Value, trueDest *Block, trueArgs []Value, falseDest *Block, falseArgs []Value, pos Pos) *CondBrOp {
	b := &CondBrOp{trueDest: trueDest, falseDest: falseDest, nTrue: len(trueArgs)}
	operands := append([]Value{cond}, trueArgs...)
	operands = append(operands, falseArgs...)
	b.build(b, pos, operands, nil, nil, nil)
	return b
}

func (b *CondBrOp) OpName() string { return "cond_br" }
func (b *CondBrOp) Cond() Value    { return b.operands[0] }

func (b *CondBrOp) Successors() []*Block {
	return []*Block{b.trueDest, b.falseDest}
}

func (b *CondBrOp) ForwardedOperands(succ int) (int, int) {
	if succ == 0 {
		return 1, b.nTrue
	}
	return 1 + b.nTrue, len(b.operands) - 1 - b.nTrue
}

// SwitchOp transfers control to one of its successor blocks, selected by an
// integer operand at run time. It forwards no operands; which successor runs
// and how destination arguments are bound is not modeled, so analyses see
// only the successor list and must stay conservative.
type SwitchOp struct {
	opBase
	succs []*Block
}

func NewSwitch(index Value, succs []*Block, pos Pos) *SwitchOp {
	s := &SwitchOp{succs: succs}
	s.build(s, pos, []Value{index}, nil, nil, nil)
	return s
}

func (s *SwitchOp) OpName() string       { return "switch" }
func (s *SwitchOp) Index() Value         { return s.operands[0] }
func (s *SwitchOp) Successors() []*Block { return s.succs }

// IfOp is a structured conditional. Both regions are single-block and end in
// a yield; the yielded operands populate the op's results.
type IfOp struct {
	opBase
}

func NewIf(cond Value, resultNames []string, resultTypes []Type, pos Pos) *IfOp {
	op := &IfOp{}
	thenRegion, elseRegion := &Region{}, &Region{}
	op.build(op, pos, []Value{cond}, resultNames, resultTypes, []*Region{thenRegion, elseRegion})
	thenRegion.NewBlock("")
	elseRegion.NewBlock("")
	return op
}

func (op *IfOp) OpName() string      { return "if" }
func (op *IfOp) Cond() Value         { return op.operands[0] }
func (op *IfOp) ThenRegion() *Region { return op.regions[0] }
func (op *IfOp) ElseRegion() *Region { return op.regions[1] }

func (op *IfOp) EntrySuccessors() []RegionSuccessor {
	return []RegionSuccessor{
		{Region: op.regions[0], Inputs: blockArgValues(op.regions[0].Entry())},
		{Region: op.regions[1], Inputs: blockArgValues(op.regions[1].Entry())},
	}
}

func (op *IfOp) EntryForwardedOperands(succ RegionSuccessor) (int, int) {
	// Only the condition is consumed on entry; nothing is forwarded.
	return 1, 0
}

// WhileOp is a structured loop. The header region receives the init operands
// as entry block arguments and ends in a cond terminator; the body region
// ends in a yield that loops back to the header.
type WhileOp struct {
	opBase
}

func NewWhile(inits []Value, resultNames []string, resultTypes []Type, pos Pos) *WhileOp {
	op := &WhileOp{}
	header, body := &Region{}, &Region{}
	op.build(op, pos, inits, resultNames, resultTypes, []*Region{header, body})
	header.NewBlock("")
	body.NewBlock("")
	return op
}

func (op *WhileOp) OpName() string        { return "while" }
func (op *WhileOp) HeaderRegion() *Region { return op.regions[0] }
func (op *WhileOp) BodyRegion() *Region   { return op.regions[1] }

func (op *WhileOp) EntrySuccessors() []RegionSuccessor {
	return []RegionSuccessor{
		{Region: op.regions[0], Inputs: blockArgValues(op.regions[0].Entry())},
	}
}

func (op *WhileOp) EntryForwardedOperands(succ RegionSuccessor) (int, int) {
	return 0, len(op.operands)
}

// YieldOp terminates an if region (control returns to the parent, populating
// its results) or a while body (control loops back to the header).
type YieldOp struct {
	opBase
}

func NewYield(args []Value, pos Pos) *YieldOp {
	y := &YieldOp{}
	y.build(y, pos, args, nil, nil, nil)
	return y
}

func (y *YieldOp) OpName() string { return "yield" }
func (y *YieldOp) isReturnLike()  {}

func (y *YieldOp) SuccessorRegions() []RegionSuccessor {
	switch parent := y.parent.ParentOp().(type) {
	case *IfOp:
		return []RegionSuccessor{{Region: nil, Inputs: parent.Results()}}
	case *WhileOp:
		header := parent.HeaderRegion()
		return []RegionSuccessor{{Region: header, Inputs: blockArgValues(header.Entry())}}
	default:
		panic(fmt.Sprintf("yield in unexpected parent %T", parent))
	}
}

func (y *YieldOp) ForwardedOperands(succ RegionSuccessor) (int, int) {
	return 0, len(y.operands)
}

// CondOp terminates a while header: on a true condition control enters the
// body with the forwarded operands, otherwise the op exits and the forwarded
// operands populate the while results.
type CondOp struct {
	opBase
}

func NewCond(cond Value, args []Value, pos Pos) *CondOp {
	c := &CondOp{}
	c.build(c, pos, append([]Value{cond}, args...), nil, nil, nil)
	return c
}

func (c *CondOp) OpName() string { return "cond" }
func (c *CondOp) Cond() Value    { return c.operands[0] }

func (c *CondOp) SuccessorRegions() []RegionSuccessor {
	parent := c.parent.ParentOp().(*WhileOp)
	body := parent.BodyRegion()
	return []RegionSuccessor{
		{Region: body, Inputs: blockArgValues(body.Entry())},
		{Region: nil, Inputs: parent.Results()},
	}
}

func (c *CondOp) ForwardedOperands(succ RegionSuccessor) (int, int) {
	return 1, len(c.operands) - 1
}

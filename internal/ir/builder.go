// SPDX-License-Identifier: Apache-2.0
package ir

// Builder converts the parsed textual form into IR, resolving value names,
// block labels and callee symbols, and checking the structural invariants the
// dataflow engine relies on (terminators present, branch arities matching,
// every use dominated by its definition).

import (
	"fmt"
	"strconv"
	"strings"

	"ebb/grammar"
)

// BuildError is a structural or naming error found while building IR.
type BuildError struct {
	Pos Pos
	Msg string
}

func (e BuildError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// BuildModule converts a parsed file into a module. The module is usable only
// when no errors are returned.
func BuildModule(file *grammar.File) (*ModuleOp, []BuildError) {
	b := &builder{module: NewModule(Pos{})}
	b.buildFile(file)
	return b.module, b.errs
}

type builder struct {
	module *ModuleOp
	errs   []BuildError

	// Per-function state. scopes is a stack: one scope for the function
	// region, one pushed per nested region body, so region-local values
	// are invisible to their siblings and to everything after the region.
	fn     *FuncOp
	scopes []map[string]Value
	labels map[string]*Block
}

func (b *builder) errorf(pos Pos, format string, args ...any) {
	b.errs = append(b.errs, BuildError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func convertPos(file string, line, column int) Pos {
	return Pos{File: file, Line: line, Column: column}
}

func typeFromRef(ref *grammar.TypeRef) Type {
	if ref != nil && ref.Name == "bool" {
		return BoolType{}
	}
	return IntType{}
}

func typesFromRefs(refs []*grammar.TypeRef) []Type {
	out := make([]Type, len(refs))
	for i, r := range refs {
		out[i] = typeFromRef(r)
	}
	return out
}

// stripSigil removes the %, ^ or @ prefix from a token.
func stripSigil(s string) string {
	return strings.TrimLeft(s, "%^@")
}

func (b *builder) buildFile(file *grammar.File) {
	// Declare every function first so calls can resolve forward references.
	for _, fn := range file.Funcs {
		name := stripSigil(fn.Name)
		p := convertPos(fn.Pos.Filename, fn.Pos.Line, fn.Pos.Column)
		if b.module.LookupFunc(name) != nil {
			b.errorf(p, "function @%s redeclared", name)
			continue
		}
		f := NewFunc(name, fn.Pub, typesFromRefs(fn.Results), fn.Body == nil, p)
		b.module.AddFunc(f)
	}

	for _, fn := range file.Funcs {
		if fn.Body == nil {
			continue
		}
		f := b.module.LookupFunc(stripSigil(fn.Name))
		if f == nil {
			continue
		}
		b.buildFuncBody(f, fn)
	}
}

func (b *builder) buildFuncBody(f *FuncOp, fn *grammar.Func) {
	b.fn = f
	b.scopes = []map[string]Value{make(map[string]Value)}
	b.labels = make(map[string]*Block)
	errsBefore := len(b.errs)

	region := f.CallableRegion()
	entry := region.NewBlock("entry")
	for _, param := range fn.Params {
		p := convertPos(param.Pos.Filename, param.Pos.Line, param.Pos.Column)
		arg := entry.AddArg(stripSigil(param.Name), typeFromRef(param.Type), p)
		b.define(arg.Name(), arg, p)
	}

	// Create labeled blocks and their arguments up front so branches can
	// reference blocks defined later in the text.
	for _, def := range fn.Body.Blocks {
		p := convertPos(def.Pos.Filename, def.Pos.Line, def.Pos.Column)
		label := stripSigil(def.Label)
		if _, dup := b.labels[label]; dup {
			b.errorf(p, "block ^%s redeclared", label)
			continue
		}
		block := region.NewBlock(label)
		b.labels[label] = block
		for _, param := range def.Params {
			pp := convertPos(param.Pos.Filename, param.Pos.Line, param.Pos.Column)
			arg := block.AddArg(stripSigil(param.Name), typeFromRef(param.Type), pp)
			b.define(arg.Name(), arg, pp)
		}
	}

	b.buildOps(entry, fn.Body.Entry, blockKindFunc)
	for _, def := range fn.Body.Blocks {
		block := b.labels[stripSigil(def.Label)]
		if block == nil {
			continue
		}
		b.buildOps(block, def.Ops, blockKindFunc)
	}

	// Scoping settles ordering within a block; cross-block uses still need
	// the defining block to dominate the using one.
	if len(b.errs) == errsBefore {
		b.verifyDominance(region)
	}
}

// verifyDominance rejects operands whose definition does not dominate the
// use. Uses nested in structured regions count as uses of the block holding
// the structured op.
func (b *builder) verifyDominance(region *Region) {
	if len(region.Blocks()) < 2 {
		return
	}
	dom := dominators(region)
	for _, block := range region.Blocks() {
		for _, op := range block.Ops() {
			b.checkDominance(op, block, region, dom)
		}
	}
}

func (b *builder) checkDominance(op Operation, useBlock *Block, region *Region, dom map[*Block]map[*Block]bool) {
	for _, operand := range op.Operands() {
		defBlock := hoistToRegion(definingBlock(operand), region)
		if defBlock == nil || defBlock == useBlock {
			continue
		}
		if !dom[useBlock][defBlock] {
			b.errorf(op.Pos(), "value %%%s does not dominate this use", operand.Name())
		}
	}
	for _, r := range op.Regions() {
		for _, inner := range r.Blocks() {
			for _, innerOp := range inner.Ops() {
				b.checkDominance(innerOp, useBlock, region, dom)
			}
		}
	}
}

func definingBlock(v Value) *Block {
	switch v := v.(type) {
	case *OpResult:
		return v.Owner().Parent()
	case *BlockArg:
		return v.Block()
	}
	return nil
}

// hoistToRegion walks block out through its parent ops until it reaches a
// block directly in region, or nil if block is not nested in region.
func hoistToRegion(block *Block, region *Region) *Block {
	for block != nil && block.Region() != region {
		op := block.ParentOp()
		if op == nil {
			return nil
		}
		block = op.Parent()
	}
	return block
}

// dominators computes per-block dominator sets with the classic iterative
// intersection. Blocks without predecessors other than the entry are
// unreachable and keep the full set, so uses inside dead code are not
// rejected here; the analyses flag the dead block itself.
func dominators(region *Region) map[*Block]map[*Block]bool {
	blocks := region.Blocks()
	entry := region.Entry()
	dom := make(map[*Block]map[*Block]bool, len(blocks))
	for _, blk := range blocks {
		if blk == entry {
			dom[blk] = map[*Block]bool{blk: true}
			continue
		}
		all := make(map[*Block]bool, len(blocks))
		for _, other := range blocks {
			all[other] = true
		}
		dom[blk] = all
	}
	for changed := true; changed; {
		changed = false
		for _, blk := range blocks {
			if blk == entry || len(blk.Preds()) == 0 {
				continue
			}
			next := map[*Block]bool{blk: true}
			for _, candidate := range blocks {
				if candidate == blk {
					continue
				}
				inAll := true
				for _, pred := range blk.Preds() {
					if !dom[pred][candidate] {
						inAll = false
						break
					}
				}
				if inAll {
					next[candidate] = true
				}
			}
			if len(next) != len(dom[blk]) {
				dom[blk] = next
				changed = true
			}
		}
	}
	return dom
}

// blockKind selects which terminators a block may legally end with.
type blockKind int

const (
	blockKindFunc  blockKind = iota // return / br / cond_br
	blockKindIf                     // yield
	blockKindWhileHeader            // cond
	blockKindWhileBody              // yield
)

func (b *builder) pushScope() {
	b.scopes = append(b.scopes, make(map[string]Value))
}

func (b *builder) popScope() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

// define records v in the innermost scope. Shadowing an enclosing name is
// rejected the same as redefining it; one name means one value.
func (b *builder) define(name string, v Value, p Pos) {
	for _, scope := range b.scopes {
		if _, dup := scope[name]; dup {
			b.errorf(p, "value %%%s redefined", name)
			return
		}
	}
	b.scopes[len(b.scopes)-1][name] = v
}

func (b *builder) lookup(name string, p Pos) Value {
	n := stripSigil(name)
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if v, ok := b.scopes[i][n]; ok {
			return v
		}
	}
	b.errorf(p, "undefined value %%%s", n)
	return nil
}

func (b *builder) lookupAll(names []string, p Pos) []Value {
	var out []Value
	for _, n := range names {
		v := b.lookup(n, p)
		if v == nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func resultNames(stmt *grammar.OpStmt) []string {
	out := make([]string, len(stmt.Results))
	for i, r := range stmt.Results {
		out[i] = stripSigil(r)
	}
	return out
}

func (b *builder) buildOps(block *Block, stmts []*grammar.OpStmt, kind blockKind) {
	for _, stmt := range stmts {
		p := convertPos(stmt.Pos.Filename, stmt.Pos.Line, stmt.Pos.Column)
		if t := block.Terminator(); t != nil && isTerminator(t) {
			b.errorf(p, "operation after block terminator")
			return
		}
		op := b.buildOp(block, stmt, kind, p)
		if op == nil {
			continue
		}
		for _, res := range op.Results() {
			b.define(res.Name(), res, p)
		}
	}
	if t := block.Terminator(); t == nil || !isTerminator(t) {
		b.errorf(blockPos(block), "block %s missing terminator", blockDesc(block))
	}
}

func isTerminator(op Operation) bool {
	switch op.(type) {
	case *ReturnOp, *BrOp, *CondBrOp, *YieldOp, *CondOp:
		return true
	}
	return false
}

func blockPos(block *Block) Pos {
	if len(block.Ops()) > 0 {
		return block.Ops()[0].Pos()
	}
	if op := block.ParentOp(); op != nil {
		return op.Pos()
	}
	return Pos{}
}

func blockDesc(block *Block) string {
	if block.Label() != "" {
		return "^" + block.Label()
	}
	return "(entry)"
}

func (b *builder) buildOp(block *Block, stmt *grammar.OpStmt, kind blockKind, p Pos) Operation {
	names := resultNames(stmt)
	switch {
	case stmt.Const != nil:
		return b.buildConst(block, stmt.Const, names, p)
	case stmt.Bin != nil:
		x, y := b.lookup(stmt.Bin.X, p), b.lookup(stmt.Bin.Y, p)
		if x == nil || y == nil {
			return nil
		}
		b.wantType(x, IntType{}, p)
		b.wantType(y, IntType{}, p)
		op := NewBin(stmt.Bin.Kind, oneName(names, b, p), x, y, p)
		block.Append(op)
		return op
	case stmt.Cmp != nil:
		x, y := b.lookup(stmt.Cmp.X, p), b.lookup(stmt.Cmp.Y, p)
		if x == nil || y == nil {
			return nil
		}
		b.wantType(x, IntType{}, p)
		b.wantType(y, IntType{}, p)
		op := NewCmp(stmt.Cmp.Pred, oneName(names, b, p), x, y, p)
		block.Append(op)
		return op
	case stmt.Call != nil:
		return b.buildCall(block, stmt.Call, names, p)
	case stmt.Br != nil:
		return b.buildBr(block, stmt.Br, kind, p)
	case stmt.CondBr != nil:
		return b.buildCondBr(block, stmt.CondBr, kind, p)
	case stmt.Ret != nil:
		return b.buildReturn(block, stmt.Ret, kind, p)
	case stmt.If != nil:
		return b.buildIf(block, stmt.If, names, kind, p)
	case stmt.While != nil:
		return b.buildWhile(block, stmt.While, names, p)
	case stmt.Yield != nil:
		return b.buildYield(block, stmt.Yield, kind, p)
	case stmt.Cond != nil:
		return b.buildCond(block, stmt.Cond, kind, p)
	}
	b.errorf(p, "unrecognized operation")
	return nil
}

func oneName(names []string, b *builder, p Pos) string {
	if len(names) != 1 {
		b.errorf(p, "operation defines exactly one result")
		if len(names) == 0 {
			return ""
		}
	}
	return names[0]
}

func (b *builder) wantType(v Value, t Type, p Pos) {
	if v.Type() != t {
		b.errorf(p, "%%%s has type %s, want %s", v.Name(), v.Type(), t)
	}
}

func (b *builder) buildConst(block *Block, c *grammar.ConstExpr, names []string, p Pos) Operation {
	name := oneName(names, b, p)
	var op *ConstOp
	if c.Bool != nil {
		op = NewBoolConst(name, *c.Bool == "true", p)
	} else {
		v, err := strconv.ParseInt(*c.Int, 10, 64)
		if err != nil {
			b.errorf(p, "bad integer literal %q", *c.Int)
		}
		op = NewConst(name, v, p)
	}
	block.Append(op)
	return op
}

func (b *builder) buildCall(block *Block, call *grammar.CallExpr, names []string, p Pos) Operation {
	callee := stripSigil(call.Callee)
	f := b.module.LookupFunc(callee)
	args := b.lookupAll(call.Args, p)
	if args == nil && len(call.Args) > 0 {
		return nil
	}
	var resultTypes []Type
	if f != nil {
		resultTypes = f.ResultTypes()
		if region := f.CallableRegion(); region != nil && !region.Empty() {
			if len(args) != len(region.Entry().Args()) {
				b.errorf(p, "call @%s with %d arguments, want %d",
					callee, len(args), len(region.Entry().Args()))
			}
		}
	} else {
		// Calls to undefined symbols stay in the IR; the dataflow engine
		// treats them as unanalyzable.
		resultTypes = make([]Type, len(names))
		for i := range resultTypes {
			resultTypes[i] = IntType{}
		}
	}
	if len(names) != len(resultTypes) {
		b.errorf(p, "call @%s binds %d results, want %d", callee, len(names), len(resultTypes))
	}
	op := NewCall(callee, args, names, resultTypes, p)
	block.Append(op)
	return op
}

func (b *builder) target(t *grammar.Target, p Pos) (*Block, []Value) {
	label := stripSigil(t.Label)
	dest, ok := b.labels[label]
	if !ok {
		b.errorf(p, "undefined block ^%s", label)
		return nil, nil
	}
	args := b.lookupAll(t.Args, p)
	if len(args) != len(dest.Args()) {
		b.errorf(p, "branch to ^%s with %d operands, want %d", label, len(args), len(dest.Args()))
		return nil, nil
	}
	return dest, args
}

func (b *builder) buildBr(block *Block, br *grammar.BrExpr, kind blockKind, p Pos) Operation {
	if kind != blockKindFunc {
		b.errorf(p, "br is only valid in function-level blocks")
		return nil
	}
	dest, args := b.target(br.Dest, p)
	if dest == nil {
		return nil
	}
	op := NewBr(dest, args, p)
	block.Append(op)
	return op
}

func (b *builder) buildCondBr(block *Block, br *grammar.CondBrExpr, kind blockKind, p Pos) Operation {
	if kind != blockKindFunc {
		b.errorf(p, "cond_br is only valid in function-level blocks")
		return nil
	}
	cond := b.lookup(br.Cond, p)
	if cond == nil {
		return nil
	}
	b.wantType(cond, BoolType{}, p)
	trueDest, trueArgs := b.target(br.True, p)
	falseDest, falseArgs := b.target(br.False, p)
	if trueDest == nil || falseDest == nil {
		return nil
	}
	op := NewCondBr(cond, trueDest, trueArgs, falseDest, falseArgs, p)
	block.Append(op)
	return op
}

func (b *builder) buildReturn(block *Block, ret *grammar.RetExpr, kind blockKind, p Pos) Operation {
	if kind != blockKindFunc {
		b.errorf(p, "return is only valid in function-level blocks")
		return nil
	}
	args := b.lookupAll(ret.Args, p)
	if len(args) != len(b.fn.ResultTypes()) {
		b.errorf(p, "return with %d operands, function returns %d values",
			len(args), len(b.fn.ResultTypes()))
	}
	op := NewReturn(args, p)
	block.Append(op)
	return op
}

func (b *builder) buildIf(block *Block, ifx *grammar.IfExpr, names []string, kind blockKind, p Pos) Operation {
	cond := b.lookup(ifx.Cond, p)
	if cond == nil {
		return nil
	}
	b.wantType(cond, BoolType{}, p)
	resultTypes := typesFromRefs(ifx.Results)
	if len(names) != len(resultTypes) {
		b.errorf(p, "if binds %d results, annotated with %d types", len(names), len(resultTypes))
	}
	op := NewIf(cond, names, resultTypes, p)
	block.Append(op)
	b.pushScope()
	b.buildOps(op.ThenRegion().Entry(), ifx.Then, blockKindIf)
	b.popScope()
	b.pushScope()
	b.buildOps(op.ElseRegion().Entry(), ifx.Else, blockKindIf)
	b.popScope()
	b.checkYields(op.ThenRegion().Entry(), resultTypes, p)
	b.checkYields(op.ElseRegion().Entry(), resultTypes, p)
	return op
}

func (b *builder) checkYields(block *Block, want []Type, p Pos) {
	y, ok := block.Terminator().(*YieldOp)
	if !ok {
		return
	}
	if len(y.Operands()) != len(want) {
		b.errorf(y.Pos(), "yield with %d operands, want %d", len(y.Operands()), len(want))
	}
}

func (b *builder) buildWhile(block *Block, wx *grammar.WhileExpr, names []string, p Pos) Operation {
	var inits []Value
	for _, bind := range wx.Binds {
		v := b.lookup(bind.Init, p)
		if v == nil {
			return nil
		}
		inits = append(inits, v)
	}
	resultTypes := typesFromRefs(wx.Results)
	if len(names) != len(resultTypes) {
		b.errorf(p, "while binds %d results, annotated with %d types", len(names), len(resultTypes))
	}
	op := NewWhile(inits, names, resultTypes, p)
	block.Append(op)

	header := op.HeaderRegion().Entry()
	b.pushScope()
	for i, bind := range wx.Binds {
		arg := header.AddArg(stripSigil(bind.Name), inits[i].Type(), p)
		b.define(arg.Name(), arg, p)
	}
	b.buildOps(header, wx.Header, blockKindWhileHeader)
	b.popScope()

	body := op.BodyRegion().Entry()
	if len(wx.BodyParams) != len(resultTypes) {
		b.errorf(p, "while body takes %d values, result arity is %d",
			len(wx.BodyParams), len(resultTypes))
	}
	b.pushScope()
	for i, name := range wx.BodyParams {
		t := Type(IntType{})
		if i < len(resultTypes) {
			t = resultTypes[i]
		}
		arg := body.AddArg(stripSigil(name), t, p)
		b.define(arg.Name(), arg, p)
	}
	b.buildOps(body, wx.Body, blockKindWhileBody)
	b.popScope()

	if y, ok := body.Terminator().(*YieldOp); ok {
		if len(y.Operands()) != len(header.Args()) {
			b.errorf(y.Pos(), "while body yields %d values, header takes %d",
				len(y.Operands()), len(header.Args()))
		}
	}
	return op
}

func (b *builder) buildYield(block *Block, y *grammar.YieldExpr, kind blockKind, p Pos) Operation {
	if kind != blockKindIf && kind != blockKindWhileBody {
		b.errorf(p, "yield is only valid inside if and while body regions")
		return nil
	}
	args := b.lookupAll(y.Args, p)
	if args == nil && len(y.Args) > 0 {
		return nil
	}
	op := NewYield(args, p)
	block.Append(op)
	return op
}

func (b *builder) buildCond(block *Block, c *grammar.CondExpr, kind blockKind, p Pos) Operation {
	if kind != blockKindWhileHeader {
		b.errorf(p, "cond is only valid as a while header terminator")
		return nil
	}
	cond := b.lookup(c.Cond, p)
	if cond == nil {
		return nil
	}
	b.wantType(cond, BoolType{}, p)
	args := b.lookupAll(c.Args, p)
	if args == nil && len(c.Args) > 0 {
		return nil
	}
	op := NewCond(cond, args, p)
	block.Append(op)
	return op
}

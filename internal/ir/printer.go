// SPDX-License-Identifier: Apache-2.0
package ir

import (
	"fmt"
	"strings"
)

// Printer renders a module back into its textual form. The output of Print
// parses back to an equivalent module.
type Printer struct {
	indent   int
	out      strings.Builder
	annotate func(Value) string
}

// Print returns the textual form of a module.
func Print(m *ModuleOp) string {
	p := &Printer{}
	p.printModule(m)
	return p.out.String()
}

// PrintAnnotated is Print with a per-value annotation hook; non-empty
// annotations are appended as trailing comments on defining operations.
func PrintAnnotated(m *ModuleOp, annotate func(Value) string) string {
	p := &Printer{annotate: annotate}
	p.printModule(m)
	return p.out.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.out.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...any) {
	p.writeIndent()
	fmt.Fprintf(&p.out, format, args...)
	p.out.WriteString("\n")
}

func valueList(values []Value) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = "%" + v.Name()
	}
	return strings.Join(names, ", ")
}

func typeList(types []Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func argList(args []*BlockArg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%%%s: %s", a.Name(), a.Type())
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) printModule(m *ModuleOp) {
	for i, f := range m.Funcs() {
		if i > 0 {
			p.writeLine("")
		}
		p.printFunc(f)
	}
}

func (p *Printer) printFunc(f *FuncOp) {
	header := ""
	if f.Public() {
		header = "pub "
	}
	region := f.CallableRegion()
	sig := fmt.Sprintf("%sfunc @%s(", header, f.FuncName())
	if region != nil && !region.Empty() {
		sig += argList(region.Entry().Args())
	}
	sig += ")"
	if len(f.ResultTypes()) > 0 {
		sig += " -> " + typeList(f.ResultTypes())
	}
	if region == nil || region.Empty() {
		p.writeLine("%s", sig)
		return
	}
	p.writeLine("%s {", sig)
	p.indent++
	for i, block := range region.Blocks() {
		if i > 0 {
			p.indent--
			if len(block.Args()) > 0 {
				p.writeLine("^%s(%s):", block.Label(), argList(block.Args()))
			} else {
				p.writeLine("^%s:", block.Label())
			}
			p.indent++
		}
		for _, op := range block.Ops() {
			p.printOp(op)
		}
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) resultPrefix(op Operation) string {
	results := op.Results()
	if len(results) == 0 {
		return ""
	}
	return valueList(results) + " = "
}

func (p *Printer) annotation(op Operation) string {
	if p.annotate == nil {
		return ""
	}
	var parts []string
	for _, res := range op.Results() {
		if note := p.annotate(res); note != "" {
			parts = append(parts, fmt.Sprintf("%%%s = %s", res.Name(), note))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "  // " + strings.Join(parts, ", ")
}

func target(dest *Block, args []Value) string {
	s := "^" + dest.Label()
	if len(args) > 0 {
		s += "(" + valueList(args) + ")"
	}
	return s
}

func (p *Printer) printOp(op Operation) {
	note := p.annotation(op)
	switch op := op.(type) {
	case *ConstOp:
		if op.IsBool() {
			p.writeLine("%sconst %t%s", p.resultPrefix(op), op.BoolValue(), note)
		} else {
			p.writeLine("%sconst %d%s", p.resultPrefix(op), op.Value(), note)
		}
	case *BinOp:
		p.writeLine("%s%s %s%s", p.resultPrefix(op), op.Kind(), valueList(op.Operands()), note)
	case *CmpOp:
		p.writeLine("%scmp %s %s%s", p.resultPrefix(op), op.Predicate(), valueList(op.Operands()), note)
	case *CallInst:
		p.writeLine("%scall @%s(%s)%s", p.resultPrefix(op), op.Callee(), valueList(op.Operands()), note)
	case *ReturnOp:
		if len(op.Operands()) == 0 {
			p.writeLine("return")
		} else {
			p.writeLine("return %s", valueList(op.Operands()))
		}
	case *BrOp:
		first, n := op.ForwardedOperands(0)
		p.writeLine("br %s", target(op.Successors()[0], OperandRange(op, first, n)))
	case *CondBrOp:
		tFirst, tN := op.ForwardedOperands(0)
		fFirst, fN := op.ForwardedOperands(1)
		p.writeLine("cond_br %%%s, %s, %s", op.Cond().Name(),
			target(op.Successors()[0], OperandRange(op, tFirst, tN)),
			target(op.Successors()[1], OperandRange(op, fFirst, fN)))
	case *SwitchOp:
		labels := make([]string, len(op.Successors()))
		for i, succ := range op.Successors() {
			labels[i] = "^" + succ.Label()
		}
		p.writeLine("switch %%%s, %s", op.Index().Name(), strings.Join(labels, ", "))
	case *YieldOp:
		if len(op.Operands()) == 0 {
			p.writeLine("yield")
		} else {
			p.writeLine("yield %s", valueList(op.Operands()))
		}
	case *CondOp:
		line := fmt.Sprintf("cond %%%s", op.Cond().Name())
		if len(op.Operands()) > 1 {
			line += ", " + valueList(op.Operands()[1:])
		}
		p.writeLine("%s", line)
	case *IfOp:
		p.printIf(op, note)
	case *WhileOp:
		p.printWhile(op, note)
	default:
		p.writeLine("// unprintable op %s", op.OpName())
	}
}

func (p *Printer) printIf(op *IfOp, note string) {
	head := fmt.Sprintf("%sif %%%s", p.resultPrefix(op), op.Cond().Name())
	if len(op.Results()) > 0 {
		types := make([]Type, len(op.Results()))
		for i, r := range op.Results() {
			types[i] = r.Type()
		}
		head += " -> " + typeList(types)
	}
	p.writeLine("%s {%s", head, note)
	p.indent++
	for _, inner := range op.ThenRegion().Entry().Ops() {
		p.printOp(inner)
	}
	p.indent--
	p.writeLine("} else {")
	p.indent++
	for _, inner := range op.ElseRegion().Entry().Ops() {
		p.printOp(inner)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printWhile(op *WhileOp, note string) {
	header := op.HeaderRegion().Entry()
	binds := make([]string, len(header.Args()))
	for i, arg := range header.Args() {
		binds[i] = fmt.Sprintf("%%%s = %%%s", arg.Name(), op.Operands()[i].Name())
	}
	head := fmt.Sprintf("%swhile (%s)", p.resultPrefix(op), strings.Join(binds, ", "))
	if len(op.Results()) > 0 {
		types := make([]Type, len(op.Results()))
		for i, r := range op.Results() {
			types[i] = r.Type()
		}
		head += " -> " + typeList(types)
	}
	p.writeLine("%s {%s", head, note)
	p.indent++
	for _, inner := range header.Ops() {
		p.printOp(inner)
	}
	p.indent--
	body := op.BodyRegion().Entry()
	params := make([]string, len(body.Args()))
	for i, arg := range body.Args() {
		params[i] = "%" + arg.Name()
	}
	p.writeLine("} do (%s) {", strings.Join(params, ", "))
	p.indent++
	for _, inner := range body.Ops() {
		p.printOp(inner)
	}
	p.indent--
	p.writeLine("}")
}

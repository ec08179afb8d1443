// SPDX-License-Identifier: Apache-2.0
package grammar

import "github.com/alecthomas/participle/v2/lexer"

// The textual form of the IR. A file is a list of functions; a function body
// is an entry block (unlabeled) followed by labeled blocks; structured ops
// (if, while) nest single-block regions in braces.
//
//	pub func @max(%a: int, %b: int) -> int {
//	  %c = cmp lt %a, %b
//	  %m = if %c -> int {
//	    yield %b
//	  } else {
//	    yield %a
//	  }
//	  return %m
//	}

type File struct {
	Funcs []*Func `@@*`
}

type Func struct {
	Pos lexer.Position

	Pub     bool       `[ @"pub" ]`
	Name    string     `"func" @SymbolID`
	Params  []*Param   `"(" [ @@ { "," @@ } ] ")"`
	Results []*TypeRef `[ "->" @@ { "," @@ } ]`
	Body    *Body      `[ "{" @@ "}" ]`
}

type Param struct {
	Pos lexer.Position

	Name string   `@ValueID`
	Type *TypeRef `":" @@`
}

type TypeRef struct {
	Name string `@("int" | "bool")`
}

type Body struct {
	Entry  []*OpStmt   `@@*`
	Blocks []*BlockDef `@@*`
}

type BlockDef struct {
	Pos lexer.Position

	Label  string    `@BlockID`
	Params []*Param  `[ "(" @@ { "," @@ } ")" ] ":"`
	Ops    []*OpStmt `@@*`
}

type OpStmt struct {
	Pos lexer.Position

	Results []string `[ @ValueID { "," @ValueID } "=" ]`
	Const   *ConstExpr  `( @@`
	Bin     *BinExpr    `| @@`
	Cmp     *CmpExpr    `| @@`
	Call    *CallExpr   `| @@`
	Br      *BrExpr     `| @@`
	CondBr  *CondBrExpr `| @@`
	Ret     *RetExpr    `| @@`
	If      *IfExpr     `| @@`
	While   *WhileExpr  `| @@`
	Yield   *YieldExpr  `| @@`
	Cond    *CondExpr   `| @@ )`
}

type ConstExpr struct {
	Bool *string `"const" ( @("true" | "false")`
	Int  *string `| @Integer )`
}

type BinExpr struct {
	Kind string `@("add" | "mul")`
	X    string `@ValueID ","`
	Y    string `@ValueID`
}

type CmpExpr struct {
	Pred string `"cmp" @("lt" | "le" | "eq" | "ne" | "gt" | "ge")`
	X    string `@ValueID ","`
	Y    string `@ValueID`
}

type CallExpr struct {
	Callee string   `"call" @SymbolID`
	Args   []string `"(" [ @ValueID { "," @ValueID } ] ")"`
}

type Target struct {
	Label string   `@BlockID`
	Args  []string `[ "(" @ValueID { "," @ValueID } ")" ]`
}

type BrExpr struct {
	Dest *Target `"br" @@`
}

type CondBrExpr struct {
	Cond  string  `"cond_br" @ValueID ","`
	True  *Target `@@ ","`
	False *Target `@@`
}

type RetExpr struct {
	Keyword string   `@"return"`
	Args    []string `[ @ValueID { "," @ValueID } ]`
}

type IfExpr struct {
	Cond    string     `"if" @ValueID`
	Results []*TypeRef `[ "->" @@ { "," @@ } ]`
	Then    []*OpStmt  `"{" @@* "}"`
	Else    []*OpStmt  `"else" "{" @@* "}"`
}

type WhileExpr struct {
	Binds      []*Bind    `"while" "(" [ @@ { "," @@ } ] ")"`
	Results    []*TypeRef `[ "->" @@ { "," @@ } ]`
	Header     []*OpStmt  `"{" @@* "}"`
	BodyParams []string   `"do" "(" [ @ValueID { "," @ValueID } ] ")"`
	Body       []*OpStmt  `"{" @@* "}"`
}

type Bind struct {
	Name string `@ValueID "="`
	Init string `@ValueID`
}

type YieldExpr struct {
	Keyword string   `@"yield"`
	Args    []string `[ @ValueID { "," @ValueID } ]`
}

type CondExpr struct {
	Cond string   `"cond" @ValueID`
	Args []string `{ "," @ValueID }`
}

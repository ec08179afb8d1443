// SPDX-License-Identifier: Apache-2.0
package diag

// Canned diagnostics for analysis findings, so the CLI and the language
// server phrase the same fact the same way.

import (
	"strconv"

	"ebb/internal/ir"
)

// UnreachableBlock reports a block no live edge targets.
func UnreachableBlock(pos ir.Pos, label string) Diagnostic {
	d := Warningf(pos, "A0001", "block ^%s is unreachable", label)
	d.Help = "no executable path reaches this block; it can be removed"
	return d
}

// UnusedValue reports a value whose computation feeds nothing observable.
func UnusedValue(pos ir.Pos, name string) Diagnostic {
	d := Warningf(pos, "A0002", "value %%%s is never needed", name)
	d.Help = "its result reaches no return, branch, or effectful operation"
	return d
}

// ConstantValue reports a value proven to hold one constant.
func ConstantValue(pos ir.Pos, name string, val int64) Diagnostic {
	return Diagnostic{
		Severity: Note,
		Code:     "A0003",
		Pos:      pos,
		Message:  "value %" + name + " is always " + strconv.FormatInt(val, 10),
	}
}

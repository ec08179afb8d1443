// SPDX-License-Identifier: Apache-2.0
package ir

// Capability interfaces. Analyses never switch on concrete op types; they ask
// for one of these capabilities instead, so the dialect can grow without
// touching the dataflow framework.

// RegionSuccessor describes one destination of structured control flow:
// either the entry of a region nested in the branch op, or the branch op
// itself (control leaves the op and its results are populated).
type RegionSuccessor struct {
	// Region is the destination region, or nil when the successor is the
	// parent operation itself.
	Region *Region
	// Inputs are the destination values fed by the transfer: the region's
	// entry block arguments, or the parent op's results.
	Inputs []Value
}

func (s RegionSuccessor) IsParent() bool { return s.Region == nil }

// CallOp is an operation transferring control to a callable identified by
// symbol. Results are bound from the callee's return operands.
type CallOp interface {
	Operation
	Callee() string
	// ArgOperands returns the operands forwarded to the callee's entry
	// block arguments, index for index.
	ArgOperands() []Value
}

// CallableOp is an operation with a body region whose entry block arguments
// are bound by call sites.
type CallableOp interface {
	Operation
	// CallableRegion returns the body, or nil for external declarations.
	CallableRegion() *Region
	// Public reports whether the callable is visible outside this module,
	// in which case its call sites can never be fully enumerated.
	Public() bool
}

// SuccessorOp is a terminator that transfers control to other blocks of its
// region. Implementing it is enough for reachability; an analysis that needs
// to know how destination arguments are bound additionally requires
// BranchOp.
type SuccessorOp interface {
	Operation
	Successors() []*Block
}

// BranchOp is an ordinary CFG terminator whose operand forwarding is fully
// modeled. The forwarded operand range of a successor binds that
// successor's block arguments index for index.
type BranchOp interface {
	SuccessorOp
	// ForwardedOperands returns the contiguous operand range forwarded to
	// successor succ as (first operand index, count).
	ForwardedOperands(succ int) (int, int)
}

// RegionBranchOp is a structured branch: its control-flow successors are its
// own nested regions (and, on exit, the op itself).
type RegionBranchOp interface {
	Operation
	// EntrySuccessors returns the region successors control may reach when
	// the op is first entered.
	EntrySuccessors() []RegionSuccessor
	// EntryForwardedOperands returns the operand range forwarded to succ
	// as (first operand index, count).
	EntryForwardedOperands(succ RegionSuccessor) (int, int)
}

// RegionTerminatorOp terminates a block in a region of a RegionBranchOp and
// transfers control to a sibling region or back out to the parent op.
type RegionTerminatorOp interface {
	Operation
	SuccessorRegions() []RegionSuccessor
	// ForwardedOperands returns the operand range forwarded to succ as
	// (first operand index, count).
	ForwardedOperands(succ RegionSuccessor) (int, int)
}

// ReturnLike marks operations that return values out of a callable region.
type ReturnLike interface {
	Operation
	isReturnLike()
}

// OperandRange slices n operands of op starting at first. A short range
// (fewer than n actual operands) is truncated rather than padded.
func OperandRange(op Operation, first, n int) []Value {
	operands := op.Operands()
	if first > len(operands) {
		return nil
	}
	end := first + n
	if end > len(operands) {
		end = len(operands)
	}
	return operands[first:end]
}

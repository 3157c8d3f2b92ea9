package lower

import (
	"fmt"

	"github.com/gomlx/onnx-lower/ir"
)

// The first three error kinds are local to one node and always recovered at
// the rule boundary: the rule declines the match, the node is left
// untouched and the driver moves on. The last two abort a whole pass.

// BindingError reports a malformed or missing operand, attribute or result
// while binding a matched node.
type BindingError struct {
	Op     string
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("%s: binding failed: %s", e.Op, e.Reason)
}

func bindingErrf(n *ir.Node, format string, args ...any) *BindingError {
	return &BindingError{Op: n.Op(), Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedAttributeError reports an attribute (or operand configuration)
// that is present and well formed, but whose value falls outside the subset
// this lowering implements.
type UnsupportedAttributeError struct {
	Op     string
	Attr   string
	Reason string
}

func (e *UnsupportedAttributeError) Error() string {
	return fmt.Sprintf("%s: unsupported %q: %s", e.Op, e.Attr, e.Reason)
}

// unsupportedDefault builds the common "must stay at its default" rejection.
func unsupportedDefault(n *ir.Node, attr, requiredDefault string) *UnsupportedAttributeError {
	return &UnsupportedAttributeError{
		Op:     n.Op(),
		Attr:   attr,
		Reason: fmt.Sprintf("not implemented, it must be left at its default value %s", requiredDefault),
	}
}

// ShapeRequirementError reports that a rule needs static shape or rank
// information the operand types do not provide.
type ShapeRequirementError struct {
	Op     string
	Reason string
}

func (e *ShapeRequirementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func shapeErrf(n *ir.Node, format string, args ...any) *ShapeRequirementError {
	return &ShapeRequirementError{Op: n.Op(), Reason: fmt.Sprintf(format, args...)}
}

// ConversionCompletenessError aborts the type boundary conversion pass: some
// reachable operation cannot be made legal, so the pass fails as a whole
// rather than committing a partial legalization.
type ConversionCompletenessError struct {
	Func   string
	Reason string
}

func (e *ConversionCompletenessError) Error() string {
	return fmt.Sprintf("type conversion of func %q cannot complete: %s", e.Func, e.Reason)
}

// FinalizationInconsistencyError aborts the materialization finalizer: a
// bridge survived that cannot be rewritten to an identity. If legalization
// ran to completion beforehand this indicates a logic defect, not bad input.
type FinalizationInconsistencyError struct {
	Func   string
	Reason string
}

func (e *FinalizationInconsistencyError) Error() string {
	return fmt.Sprintf("finalizing func %q: %s", e.Func, e.Reason)
}

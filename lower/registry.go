// Package lower rewrites com.microsoft contrib operators of an ONNX-style
// source graph into a small canonical operator vocabulary, and legalizes the
// types crossing the dialect boundary.
//
// Lowering is rule-per-operator: a Registry dispatches each node to the rule
// registered for its (name, opset version); the rule binds operands and
// attributes through a Binder and emits a replacement subgraph, committed
// atomically. Boundary legalization is two-phase: ConvertFuncTypes makes
// every signature, call and terminator canonical (inserting materialization
// bridges), and FinalizeMaterializations later proves every bridge an
// identity and deletes it.
package lower

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/onnx-lower/ir"
)

// Rule lowers one matched node. It is a pure function: it may only inspect
// the node (through the Binder) and emit detached nodes through the Builder.
// The returned Outcome either carries a complete replacement subgraph or a
// decline reason; partial graph mutation is impossible by construction.
type Rule func(b *Binder, bld *ir.Builder) Outcome

type outcomeKind uint8

const (
	outcomeUnhandled outcomeKind = iota
	outcomeReplace
	outcomeDecline
)

// Outcome is the tagged result of dispatching a node: a replacement
// subgraph, a decline with a reason, or "no pattern registered".
type Outcome struct {
	kind outcomeKind
	rep  *ir.Replacement
	err  error
}

// Replace returns a success outcome carrying the replacement subgraph.
func Replace(rep *ir.Replacement) Outcome {
	return Outcome{kind: outcomeReplace, rep: rep}
}

// Decline returns a failure outcome; err explains why the rule did not
// apply. The node is left untouched.
func Decline(err error) Outcome {
	return Outcome{kind: outcomeDecline, err: err}
}

// Unhandled is the outcome when no rule is registered for a node. Not an
// error: the node simply has no pattern.
func Unhandled() Outcome { return Outcome{kind: outcomeUnhandled} }

// Replaced reports whether the outcome carries a replacement.
func (o Outcome) Replaced() bool { return o.kind == outcomeReplace }

// Declined reports whether a rule matched but declined.
func (o Outcome) Declined() bool { return o.kind == outcomeDecline }

// IsUnhandled reports whether no rule was registered.
func (o Outcome) IsUnhandled() bool { return o.kind == outcomeUnhandled }

// Replacement returns the replacement subgraph of a Replaced outcome.
func (o Outcome) Replacement() *ir.Replacement { return o.rep }

// Err returns the decline reason of a Declined outcome.
func (o Outcome) Err() error { return o.err }

// Reason returns the human-readable decline reason, or "".
func (o Outcome) Reason() string {
	if o.err == nil {
		return ""
	}
	return o.err.Error()
}

type versionedRule struct {
	since int
	rule  Rule
}

// Registry maps (operator name, opset version) to lowering rules. Several
// rules may be registered for the same name at different opset versions;
// dispatch deterministically picks the highest registered version not
// exceeding the node's.
type Registry struct {
	rules map[string][]versionedRule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]versionedRule)}
}

// Register adds a rule for name, applicable to nodes with opset version >=
// sinceVersion.
func (r *Registry) Register(name string, sinceVersion int, rule Rule) {
	entries := append(r.rules[name], versionedRule{since: sinceVersion, rule: rule})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].since < entries[j].since })
	r.rules[name] = entries
}

// Dispatch selects and runs the applicable rule for node. A rule that
// panics (e.g. through exceptions.Panicf deep in a helper) is reported as a
// decline, never as a crash.
func (r *Registry) Dispatch(node *ir.Node) Outcome {
	entries := r.rules[node.Op()]
	var rule Rule
	for _, e := range entries {
		if e.since <= node.Opset() {
			rule = e.rule
		}
	}
	if rule == nil {
		klog.V(3).Infof("no pattern for %s (opset %d)", node.Op(), node.Opset())
		return Unhandled()
	}

	var outcome Outcome
	err := exceptions.TryCatch[error](func() {
		outcome = rule(NewBinder(node), ir.NewBuilder(node.Func()))
	})
	if err != nil {
		return Decline(errors.WithMessagef(err, "rule for %s panicked", node.Op()))
	}
	if outcome.Declined() {
		klog.V(2).Infof("rule for %s declined: %s", node.Op(), outcome.Reason())
	}
	return outcome
}

// Apply dispatches node and, on success, atomically commits the replacement
// subgraph. The returned Outcome tells the driver what happened; a non-nil
// error means the commit itself failed (a rule defect, the graph is
// unchanged).
func (r *Registry) Apply(node *ir.Node) (Outcome, error) {
	outcome := r.Dispatch(node)
	if !outcome.Replaced() {
		return outcome, nil
	}
	if err := node.Block().ReplaceNode(node, outcome.Replacement()); err != nil {
		return outcome, errors.WithMessagef(err, "committing replacement for %s", node.Op())
	}
	klog.V(2).Infof("lowered %s into %d canonical ops", node.Op(), len(outcome.Replacement().Nodes))
	return outcome, nil
}

// NewDefaultRegistry returns a registry with every com.microsoft contrib
// operator rule registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("RotaryEmbedding", 1, lowerRotaryEmbedding)
	r.Register("GroupQueryAttention", 1, lowerGroupQueryAttention)
	r.Register("QLinearAdd", 1, lowerQLinearElementwise(OpAdd))
	r.Register("QLinearMul", 1, lowerQLinearElementwise(OpMul))
	r.Register("QLinearLeakyRelu", 1, lowerQLinearLeakyRelu)
	r.Register("QLinearSigmoid", 1, lowerQLinearSigmoid)
	r.Register("QLinearConcat", 1, lowerQLinearConcat)
	r.Register("QLinearAveragePool", 1, lowerQLinearAveragePool)
	r.Register("QLinearGlobalAveragePool", 1, lowerQLinearGlobalAveragePool)
	r.Register("FusedMatMul", 1, lowerFusedMatMul)
	return r
}

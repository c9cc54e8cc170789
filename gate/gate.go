// Package gate implements the capability whitelist enforced at compile
// time. No identifier may be used as the root of a member chain and no call
// signature may be compiled unless the host registered it here. The tables
// are populated once at host startup, before the first compile, and are
// read-only afterwards; the gate never widens the whitelist and never
// caches decisions across expressions.
package gate

import (
	"github.com/gexl/gexl"
	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/grammar"
)

// Error codes used by gate:
const (
	// UnauthorizedIdentifierError indicates a member-chain root that is not whitelisted.
	UnauthorizedIdentifierError = gexl.GateErrors + iota

	// UnauthorizedCallError indicates a call signature that is not whitelisted.
	UnauthorizedCallError

	// BadPolicyError indicates an unreadable policy document.
	BadPolicyError
)

// Whitelist holds the host-configured capability tables: object roots with
// their accessors, callee path signatures ("name" or "root.method") with
// their invokers, and the set of custom objects whose methods are resolved
// dynamically at evaluation time.
type Whitelist struct {
	objects map[string]compile.Accessor
	callees map[string]compile.Invoker
	custom  map[string]bool
}

func NewWhitelist() *Whitelist {
	return &Whitelist{
		objects: make(map[string]compile.Accessor),
		callees: make(map[string]compile.Invoker),
		custom:  make(map[string]bool),
	}
}

// AllowObject registers an accessor for a bare identifier used as an object
// root.
func (w *Whitelist) AllowObject(name string, a compile.Accessor) {
	w.objects[name] = a
}

// AllowValue registers an object root with a fixed value.
func (w *Whitelist) AllowValue(name string, v any) {
	w.objects[name] = func(...any) (any, error) { return v, nil }
}

// AllowCallee registers an invoker for a callee path signature: a bare name
// for identifier calls, "root.method" for member calls.
func (w *Whitelist) AllowCallee(path string, inv compile.Invoker) {
	w.callees[path] = inv
}

// AllowFunc registers a fixed function under a callee path signature.
func (w *Whitelist) AllowFunc(path string, fn compile.Callable) {
	w.callees[path] = func(...any) (compile.Callable, error) { return fn, nil }
}

// AllowCustom marks name as a custom object: member calls rooted at it are
// permitted, with the method resolved dynamically on the object's value.
// The name must also be registered as an object root.
func (w *Whitelist) AllowCustom(name string) {
	w.custom[name] = true
}

// ValidateObjectRoot returns the sanctioned accessor for name or an
// UnauthorizedIdentifier error. The expression must not compile on a miss;
// retrying evaluation with a different binding table cannot recover it.
func (w *Whitelist) ValidateObjectRoot(name string) (compile.Accessor, error) {
	a, f := w.objects[name]
	if !f {
		return nil, gexl.FormatError(UnauthorizedIdentifierError, "unauthorized identifier %q", name)
	}
	return a, nil
}

// ValidateCallee inspects the callee expression shape and resolves it
// against the whitelist. Bare identifiers resolve by name; member chains by
// "root.method", falling back to dynamic resolution for custom objects.
func (w *Whitelist) ValidateCallee(node *grammar.Result) (compile.Invoker, error) {
	switch node.Kind {
	case compile.KindIdent:
		inv, f := w.callees[node.Raw]
		if !f {
			return nil, gexl.FormatError(UnauthorizedCallError, "unauthorized call to %q", node.Raw)
		}
		return inv, nil

	case compile.KindMember:
		if len(node.Children) != 2 {
			break
		}
		obj := node.Children[0]
		prop := node.Children[1]
		if obj.Kind != compile.KindIdent || prop.Kind != compile.KindKey {
			break
		}

		path := obj.Raw + "." + prop.Raw
		if inv, f := w.callees[path]; f {
			return inv, nil
		}
		if w.custom[obj.Raw] {
			return w.customInvoker(obj.Raw, prop.Raw)
		}
		return nil, gexl.FormatError(UnauthorizedCallError, "unauthorized call to %q", path)
	}

	return nil, gexl.FormatError(UnauthorizedCallError, "unsupported callee shape %q", node.Kind)
}

// customInvoker resolves root.method at evaluation time: the root's
// accessor produces the object, and the method is looked up on it per call.
func (w *Whitelist) customInvoker(root, method string) (compile.Invoker, error) {
	accessor, f := w.objects[root]
	if !f {
		return nil, gexl.FormatError(UnauthorizedCallError, "custom object %q has no accessor", root)
	}

	return func(args ...any) (compile.Callable, error) {
		v, e := accessor(args...)
		if e != nil {
			return nil, e
		}

		m, f := v.(map[string]any)
		if !f {
			return nil, gexl.FormatError(UnauthorizedCallError, "custom object %q is not callable into", root)
		}

		switch fn := m[method].(type) {
		case compile.Callable:
			return fn, nil
		case func(...any) (any, error):
			return fn, nil
		default:
			return nil, gexl.FormatError(UnauthorizedCallError, "%s.%s is not a function", root, method)
		}
	}, nil
}

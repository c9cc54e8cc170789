// Package compile translates syntax nodes into re-invokable closures.
//
// Compilation is driven from outside: the traversal driver calls Compile
// once per node, passing a callback used to compile child nodes. Each node
// kind's handler is pure with respect to the node; the returned closure
// closes over already-compiled child closures, never over raw syntax nodes.
// Every identifier used as a member root and every call signature is
// validated through the capability gate at compile time, so an expression
// that touches anything the host did not whitelist never compiles.
package compile

import (
	"github.com/gexl/gexl"
	"github.com/gexl/gexl/grammar"
)

// Node kinds dispatched by the compiler. Producers of syntax trees (see the
// lang package) tag results with these. An identifier is tagged KindKey
// instead of KindIdent when it names a property or an object-literal key
// rather than referencing a bound value.
const (
	KindConditional = "conditional"
	KindBinary      = "binary"
	KindUnary       = "unary"
	KindArray       = "array"
	KindObject      = "object"
	KindProp        = "prop"
	KindIdent       = "ident"
	KindKey         = "key"
	KindLiteral     = "literal"
	KindMember      = "member"
	KindCall        = "call"
)

// Error codes used by compile:
const (
	// UnknownKindError indicates a node kind with no dispatch entry.
	UnknownKindError = gexl.CompileErrors + iota

	// UnknownOperatorError indicates a binary or unary operator with no table entry.
	UnknownOperatorError

	// MalformedNodeError indicates a node whose payload does not fit its kind.
	MalformedNodeError

	// BadLiteralError indicates an unparseable literal token.
	BadLiteralError
)

const (
	// NoValueError indicates indexing into something that has no properties.
	NoValueError = gexl.EvalErrors + iota

	// NotCallableError indicates a whitelisted callee that did not resolve to a function.
	NotCallableError
)

// Env is the runtime binding table consulted by value-position identifiers.
// It is supplied fresh per evaluation and read-only from the engine's
// perspective; a name with no binding evaluates to nil.
type Env map[string]any

// EvalContext carries the per-evaluation state threaded through every
// closure: the binding table, and the call-time arguments forwarded to gate
// accessors and invokers. Node kinds other than member access and call
// ignore Args.
type EvalContext struct {
	Bindings Env
	Args     []any
}

// Closure is a deferred, re-invokable computation produced by compiling one
// syntax node.
type Closure func(ec *EvalContext) (any, error)

// CompileFunc compiles a child node; the traversal driver supplies it.
type CompileFunc func(node *grammar.Result) (Closure, error)

// Accessor produces the runtime value of a whitelisted object root. It
// receives the call-time arguments of the current evaluation.
type Accessor func(args ...any) (any, error)

// Callable is an invocable value obtained from an Invoker.
type Callable func(args ...any) (any, error)

// Invoker resolves a whitelisted callee into a Callable. It receives the
// call-time arguments of the current evaluation.
type Invoker func(args ...any) (Callable, error)

// Gate validates identifiers and call signatures at compile time. The gate
// package provides the whitelist-backed implementation.
type Gate interface {
	// ValidateObjectRoot returns the sanctioned accessor for a bare
	// identifier used as the root of a member chain, or an
	// UnauthorizedIdentifier error.
	ValidateObjectRoot(name string) (Accessor, error)

	// ValidateCallee returns the sanctioned invoker for a callee
	// expression, or an UnauthorizedCall error.
	ValidateCallee(node *grammar.Result) (Invoker, error)
}

// Compiler dispatches syntax nodes by kind. The zero value compiles
// expressions that use no member access or calls; anything passing through
// the gate requires one.
type Compiler struct {
	gate Gate
}

func New(gate Gate) *Compiler {
	return &Compiler{gate: gate}
}

type propPair struct {
	key string
	val any
}

// Compile returns a closure implementing node's runtime semantics, calling
// next to compile child nodes. Unknown kinds and operators are programmer
// errors and fail fast; unauthorized constructs abort compilation with a
// gate error.
func (c *Compiler) Compile(node *grammar.Result, next CompileFunc) (Closure, error) {
	switch node.Kind {
	case KindConditional:
		return c.conditional(node, next)
	case KindBinary:
		return c.binary(node, next)
	case KindUnary:
		return c.unary(node, next)
	case KindArray:
		return c.array(node, next)
	case KindObject:
		return c.object(node, next)
	case KindProp:
		return c.prop(node, next)
	case KindIdent:
		return c.ident(node)
	case KindKey:
		return c.key(node)
	case KindLiteral:
		return c.literal(node)
	case KindMember:
		return c.member(node, next)
	case KindCall:
		return c.call(node, next)
	case grammar.AbsentKind:
		return func(*EvalContext) (any, error) { return nil, nil }, nil
	}

	return nil, gexl.FormatError(UnknownKindError, "no handler for node kind %q", node.Kind)
}

// CompileTree compiles a whole syntax tree, supplying itself as the
// traversal callback.
func (c *Compiler) CompileTree(root *grammar.Result) (Closure, error) {
	var next CompileFunc
	next = func(n *grammar.Result) (Closure, error) {
		return c.Compile(n, next)
	}
	return next(root)
}

func malformed(node *grammar.Result, want int) error {
	return gexl.FormatError(MalformedNodeError, "%s node: expecting %d children, got %d", node.Kind, want, len(node.Children))
}

func (c *Compiler) conditional(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) != 3 {
		return nil, malformed(node, 3)
	}

	test, e := next(node.Children[0])
	if e != nil {
		return nil, e
	}
	cons, e := next(node.Children[1])
	if e != nil {
		return nil, e
	}
	alt, e := next(node.Children[2])
	if e != nil {
		return nil, e
	}

	return func(ec *EvalContext) (any, error) {
		v, e := test(ec)
		if e != nil {
			return nil, e
		}
		if Truthy(v) {
			return cons(ec)
		}
		return alt(ec)
	}, nil
}

func (c *Compiler) binary(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) != 2 {
		return nil, malformed(node, 2)
	}

	left, e := next(node.Children[0])
	if e != nil {
		return nil, e
	}
	right, e := next(node.Children[1])
	if e != nil {
		return nil, e
	}

	// && and || must not evaluate the right side eagerly; they return the
	// deciding operand like the source language does.
	switch node.Raw {
	case "&&":
		return func(ec *EvalContext) (any, error) {
			l, e := left(ec)
			if e != nil || !Truthy(l) {
				return l, e
			}
			return right(ec)
		}, nil
	case "||":
		return func(ec *EvalContext) (any, error) {
			l, e := left(ec)
			if e != nil || Truthy(l) {
				return l, e
			}
			return right(ec)
		}, nil
	}

	op, f := binaryOps[node.Raw]
	if !f {
		return nil, gexl.FormatError(UnknownOperatorError, "unknown binary operator %q", node.Raw)
	}

	return func(ec *EvalContext) (any, error) {
		l, e := left(ec)
		if e != nil {
			return nil, e
		}
		r, e := right(ec)
		if e != nil {
			return nil, e
		}
		return op(l, r), nil
	}, nil
}

func (c *Compiler) unary(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) != 1 {
		return nil, malformed(node, 1)
	}

	op, f := unaryOps[node.Raw]
	if !f {
		return nil, gexl.FormatError(UnknownOperatorError, "unknown unary operator %q", node.Raw)
	}

	operand, e := next(node.Children[0])
	if e != nil {
		return nil, e
	}

	return func(ec *EvalContext) (any, error) {
		v, e := operand(ec)
		if e != nil {
			return nil, e
		}
		return op(v), nil
	}, nil
}

func (c *Compiler) array(node *grammar.Result, next CompileFunc) (Closure, error) {
	elems := make([]Closure, len(node.Children))
	for i, child := range node.Children {
		clo, e := next(child)
		if e != nil {
			return nil, e
		}
		elems[i] = clo
	}

	return func(ec *EvalContext) (any, error) {
		res := make([]any, len(elems))
		for i, clo := range elems {
			v, e := clo(ec)
			if e != nil {
				return nil, e
			}
			res[i] = v
		}
		return res, nil
	}, nil
}

func (c *Compiler) object(node *grammar.Result, next CompileFunc) (Closure, error) {
	props := make([]Closure, len(node.Children))
	for i, child := range node.Children {
		clo, e := next(child)
		if e != nil {
			return nil, e
		}
		props[i] = clo
	}

	return func(ec *EvalContext) (any, error) {
		res := make(map[string]any, len(props))
		for _, clo := range props {
			v, e := clo(ec)
			if e != nil {
				return nil, e
			}
			p, f := v.(propPair)
			if !f {
				return nil, gexl.FormatError(MalformedNodeError, "object node: property closure returned %T", v)
			}
			res[p.key] = p.val
		}
		return res, nil
	}, nil
}

func (c *Compiler) prop(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) != 2 {
		return nil, malformed(node, 2)
	}

	key, e := next(node.Children[0])
	if e != nil {
		return nil, e
	}
	val, e := next(node.Children[1])
	if e != nil {
		return nil, e
	}

	return func(ec *EvalContext) (any, error) {
		k, e := key(ec)
		if e != nil {
			return nil, e
		}
		v, e := val(ec)
		if e != nil {
			return nil, e
		}
		return propPair{ToString(k), v}, nil
	}, nil
}

// ident compiles a value-position identifier: the name is looked up in the
// binding table at evaluation time. A missing binding is not a compile
// error; it evaluates to nil per the binding table's contract.
func (c *Compiler) ident(node *grammar.Result) (Closure, error) {
	name := node.Raw
	return func(ec *EvalContext) (any, error) {
		return ec.Bindings[name], nil
	}, nil
}

// key compiles an identifier used as a property key or member name: its
// closure returns the literal name string, never a binding lookup.
func (c *Compiler) key(node *grammar.Result) (Closure, error) {
	name := node.Raw
	return func(*EvalContext) (any, error) {
		return name, nil
	}, nil
}

func (c *Compiler) literal(node *grammar.Result) (Closure, error) {
	v, e := parseLiteral(node.Raw)
	if e != nil {
		return nil, e
	}
	return func(*EvalContext) (any, error) {
		return v, nil
	}, nil
}

func (c *Compiler) gateFor(node *grammar.Result) (Gate, error) {
	if c.gate == nil {
		return nil, gexl.FormatError(MalformedNodeError, "%s node: no capability gate configured", node.Kind)
	}
	return c.gate, nil
}

func (c *Compiler) member(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) != 2 {
		return nil, malformed(node, 2)
	}

	obj := node.Children[0]
	prop, e := next(node.Children[1])
	if e != nil {
		return nil, e
	}

	// A bare identifier root goes through the gate at compile time; a
	// compound object expression is compiled normally and indexed.
	if obj.Kind == KindIdent {
		gate, e := c.gateFor(node)
		if e != nil {
			return nil, e
		}
		accessor, e := gate.ValidateObjectRoot(obj.Raw)
		if e != nil {
			return nil, e
		}

		return func(ec *EvalContext) (any, error) {
			o, e := accessor(ec.Args...)
			if e != nil {
				return nil, e
			}
			k, e := prop(ec)
			if e != nil {
				return nil, e
			}
			return indexValue(o, k)
		}, nil
	}

	objClo, e := next(obj)
	if e != nil {
		return nil, e
	}

	return func(ec *EvalContext) (any, error) {
		o, e := objClo(ec)
		if e != nil {
			return nil, e
		}
		k, e := prop(ec)
		if e != nil {
			return nil, e
		}
		return indexValue(o, k)
	}, nil
}

func (c *Compiler) call(node *grammar.Result, next CompileFunc) (Closure, error) {
	if len(node.Children) < 1 {
		return nil, malformed(node, 1)
	}

	gate, e := c.gateFor(node)
	if e != nil {
		return nil, e
	}
	invoker, e := gate.ValidateCallee(node.Children[0])
	if e != nil {
		return nil, e
	}

	args := make([]Closure, len(node.Children)-1)
	for i, child := range node.Children[1:] {
		clo, e := next(child)
		if e != nil {
			return nil, e
		}
		args[i] = clo
	}

	return func(ec *EvalContext) (any, error) {
		fn, e := invoker(ec.Args...)
		if e != nil {
			return nil, e
		}
		if fn == nil {
			return nil, gexl.FormatError(NotCallableError, "callee did not resolve to a function")
		}

		vals := make([]any, len(args))
		for i, clo := range args {
			v, e := clo(ec)
			if e != nil {
				return nil, e
			}
			vals[i] = v
		}
		return fn(vals...)
	}, nil
}

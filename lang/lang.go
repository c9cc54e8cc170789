// Package lang provides the built-in expression language: a restricted
// JavaScript-like surface with conditionals, the usual binary and unary
// operators, array and object literals, and gated member access and calls.
// The grammar is built once at init on the combinator engine in
// gexl/grammar; hosts that need dialect tweaks can Clone the shared grammar
// and re-register rules without affecting this package.
package lang

import (
	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/gate"
	"github.com/gexl/gexl/grammar"
	"github.com/gexl/gexl/source"
)

var exprGrammar *grammar.Grammar

func init() {
	exprGrammar = build()
}

// Grammar returns the shared expression grammar. Callers that want to extend
// or override rules must Clone it first.
func Grammar() *grammar.Grammar {
	return exprGrammar
}

// Parse matches src against the expression grammar and returns the root
// node. The whole input must be consumed.
func Parse(name, src string) (*grammar.Result, error) {
	cur := source.NewCursor(source.New(name, []byte(src)))
	return exprGrammar.Parse("expr", cur)
}

// Expr is a compiled expression, ready for repeated evaluation. Compilation
// already enforced the capability whitelist, so Eval performs no
// authorization checks of its own.
type Expr struct {
	src string
	clo compile.Closure
}

// Compile parses and compiles src against the whitelist. A nil whitelist
// permits no member roots and no calls.
func Compile(src string, wl *gate.Whitelist) (*Expr, error) {
	root, e := Parse("expr", src)
	if e != nil {
		return nil, e
	}

	var g compile.Gate
	if wl != nil {
		g = wl
	}
	clo, e := compile.New(g).CompileTree(root)
	if e != nil {
		return nil, e
	}
	return &Expr{src: src, clo: clo}, nil
}

// CompileSet binds a whitelist once for repeated compilation of many
// expressions against the same capability surface.
type CompileSet struct {
	wl *gate.Whitelist
}

func NewCompileSet(wl *gate.Whitelist) *CompileSet {
	return &CompileSet{wl: wl}
}

func (cs *CompileSet) Compile(src string) (*Expr, error) {
	return Compile(src, cs.wl)
}

// Source returns the text the expression was compiled from.
func (x *Expr) Source() string {
	return x.src
}

// Eval runs the expression against a binding table. Args are forwarded to
// every gate accessor and invoker the expression touches.
func (x *Expr) Eval(bindings compile.Env, args ...any) (any, error) {
	return x.clo(&compile.EvalContext{Bindings: bindings, Args: args})
}

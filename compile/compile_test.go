package compile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gexl/gexl"
	"github.com/gexl/gexl/grammar"
)

func lit(raw string) *grammar.Result {
	return &grammar.Result{Kind: KindLiteral, Raw: raw}
}

func ident(name string) *grammar.Result {
	return &grammar.Result{Kind: KindIdent, Raw: name}
}

func propKey(name string) *grammar.Result {
	return &grammar.Result{Kind: KindKey, Raw: name}
}

func bin(op string, l, r *grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindBinary, Raw: op, Children: []*grammar.Result{l, r}}
}

func un(op string, operand *grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindUnary, Raw: op, Children: []*grammar.Result{operand}}
}

func cond(test, cons, alt *grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindConditional, Children: []*grammar.Result{test, cons, alt}}
}

func arr(elems ...*grammar.Result) *grammar.Result {
	if elems == nil {
		elems = []*grammar.Result{}
	}
	return &grammar.Result{Kind: KindArray, Children: elems}
}

func obj(props ...*grammar.Result) *grammar.Result {
	if props == nil {
		props = []*grammar.Result{}
	}
	return &grammar.Result{Kind: KindObject, Children: props}
}

func pr(k, v *grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindProp, Children: []*grammar.Result{k, v}}
}

func member(o, p *grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindMember, Children: []*grammar.Result{o, p}}
}

func call(callee *grammar.Result, args ...*grammar.Result) *grammar.Result {
	return &grammar.Result{Kind: KindCall, Children: append([]*grammar.Result{callee}, args...)}
}

// faulty is a node guaranteed to fail at evaluation time: indexing into
// null. Used to prove that untaken branches are never evaluated.
func faulty() *grammar.Result {
	return member(lit("null"), lit("0"))
}

type fakeGate struct {
	objects map[string]any
	fns     map[string]Callable
}

func (f fakeGate) ValidateObjectRoot(name string) (Accessor, error) {
	v, ok := f.objects[name]
	if !ok {
		return nil, gexl.FormatError(gexl.GateErrors, "unauthorized identifier %q", name)
	}
	return func(...any) (any, error) { return v, nil }, nil
}

func (f fakeGate) ValidateCallee(node *grammar.Result) (Invoker, error) {
	fn, ok := f.fns[node.Raw]
	if node.Kind != KindIdent || !ok {
		return nil, gexl.FormatError(gexl.GateErrors+1, "unauthorized call")
	}
	return func(...any) (Callable, error) { return fn, nil }, nil
}

func eval(t *testing.T, c *Compiler, node *grammar.Result, env Env, args ...any) any {
	t.Helper()
	clo, e := c.CompileTree(node)
	require.NoError(t, e)
	v, e := clo(&EvalContext{Bindings: env, Args: args})
	require.NoError(t, e)
	return v
}

func TestLiteralNodes(t *testing.T) {
	c := New(nil)
	samples := map[*grammar.Result]any{
		lit("true"):        true,
		lit("false"):       false,
		lit("null"):        nil,
		lit("42"):          float64(42),
		lit("4.25"):        4.25,
		lit("1e3"):         float64(1000),
		lit(`"hi"`):        "hi",
		lit(`'hi'`):        "hi",
		lit(`"a\nb"`):      "a\nb",
		lit(`"q\"q"`):      `q"q`,
		lit(`"\u0041"`):       "A",
		lit(`"\ud83d\ude00"`): "\U0001f600",
	}

	for node, want := range samples {
		require.Equal(t, want, eval(t, c, node, nil), "literal %s", node.Raw)
	}

	_, e := c.CompileTree(lit("@bad@"))
	require.Error(t, e)
	require.Equal(t, BadLiteralError, e.(*gexl.Error).Code)
}

func TestBinaryOperators(t *testing.T) {
	c := New(nil)
	samples := []struct {
		op   string
		l, r string
		want any
	}{
		{"+", "1", "2", float64(3)},
		{"+", `"a"`, `"b"`, "ab"},
		{"+", `"a"`, "1", "a1"},
		{"+", "1", `"2"`, "12"},
		{"+", "true", "1", float64(2)},
		{"-", "5", "2", float64(3)},
		{"*", "4", "2.5", float64(10)},
		{"/", "1", "2", 0.5},
		{"%", "5", "2", float64(1)},
		{">", "2", "1", true},
		{">", `"b"`, `"a"`, true},
		{"<", `"10"`, "9", true},
		{">=", "2", "2", true},
		{"<=", "3", "2", false},
		{"==", "1", `"1"`, true},
		{"==", "true", "1", true},
		{"==", "null", "null", true},
		{"==", "0", `""`, true},
		{"!=", "1", "2", true},
		{"===", "1", "1", true},
		{"===", "1", `"1"`, false},
		{"!==", "1", `"1"`, true},
	}

	for _, s := range samples {
		got := eval(t, c, bin(s.op, lit(s.l), lit(s.r)), nil)
		require.Equal(t, s.want, got, "%s %s %s", s.l, s.op, s.r)
	}
}

func TestUnknownOperators(t *testing.T) {
	c := New(nil)

	_, e := c.CompileTree(bin("**", lit("1"), lit("2")))
	require.Error(t, e)
	require.Equal(t, UnknownOperatorError, e.(*gexl.Error).Code)

	_, e = c.CompileTree(un("typeof", lit("1")))
	require.Error(t, e)
	require.Equal(t, UnknownOperatorError, e.(*gexl.Error).Code)
}

func TestUnaryOperators(t *testing.T) {
	c := New(nil)

	require.Equal(t, float64(-3), eval(t, c, un("-", lit(`"3"`)), nil))
	require.Equal(t, float64(1), eval(t, c, un("+", lit("true")), nil))
	require.Equal(t, true, eval(t, c, un("!", lit("0")), nil))
	require.Equal(t, false, eval(t, c, un("!", lit(`"x"`)), nil))
	require.Equal(t, float64(-2), eval(t, c, un("~", lit("1.5")), nil))
}

func TestLogicalShortCircuit(t *testing.T) {
	c := New(nil)

	// the right side faults when evaluated; short-circuiting must avoid it
	require.Equal(t, false, eval(t, c, bin("&&", lit("false"), faulty()), nil))
	require.Equal(t, true, eval(t, c, bin("||", lit("true"), faulty()), nil))

	// the deciding operand comes back unconverted
	require.Equal(t, "a", eval(t, c, bin("||", lit("0"), lit(`"a"`)), nil))
	require.Equal(t, float64(2), eval(t, c, bin("&&", lit("1"), lit("2")), nil))
	require.Equal(t, float64(0), eval(t, c, bin("&&", lit("0"), lit("2")), nil))

	clo, e := c.CompileTree(bin("&&", lit("true"), faulty()))
	require.NoError(t, e)
	_, e = clo(&EvalContext{})
	require.Error(t, e)
	require.Equal(t, NoValueError, e.(*gexl.Error).Code)
}

func TestConditionalNode(t *testing.T) {
	c := New(nil)

	require.Equal(t, float64(2), eval(t, c, cond(lit("1"), lit("2"), faulty()), nil))
	require.Equal(t, float64(3), eval(t, c, cond(lit(`""`), faulty(), lit("3")), nil))
}

func TestArrayNode(t *testing.T) {
	c := New(nil)

	require.Equal(t, []any{}, eval(t, c, arr(), nil))
	require.Equal(t,
		[]any{float64(1), nil, "x"},
		eval(t, c, arr(lit("1"), grammar.Absent, lit(`"x"`)), nil))
}

func TestObjectNode(t *testing.T) {
	c := New(nil)

	require.Equal(t, map[string]any{}, eval(t, c, obj(), nil))

	v := eval(t, c, obj(
		pr(propKey("a"), lit("1")),
		pr(lit(`"b"`), lit("2")),
		pr(lit("3"), lit(`"x"`)),
		pr(propKey("a"), lit("9")),
	), nil)
	require.Equal(t, map[string]any{"a": float64(9), "b": float64(2), "3": "x"}, v)
}

func TestIdentReadsBindings(t *testing.T) {
	c := New(nil)
	node := bin("+", ident("x"), ident("y"))

	clo, e := c.CompileTree(node)
	require.NoError(t, e)

	v, e := clo(&EvalContext{Bindings: Env{"x": float64(1), "y": float64(2)}})
	require.NoError(t, e)
	require.Equal(t, float64(3), v)

	// same closure, different table
	v, e = clo(&EvalContext{Bindings: Env{"x": "a", "y": "b"}})
	require.NoError(t, e)
	require.Equal(t, "ab", v)

	// a missing binding is nil, not an error
	v, e = clo(&EvalContext{Bindings: Env{}})
	require.NoError(t, e)
	require.Equal(t, float64(0), v)
}

func TestKeyIgnoresBindings(t *testing.T) {
	c := New(nil)
	clo, e := c.CompileTree(propKey("name"))
	require.NoError(t, e)

	v, e := clo(&EvalContext{Bindings: Env{"name": "bound"}})
	require.NoError(t, e)
	require.Equal(t, "name", v)
}

func TestMemberThroughGate(t *testing.T) {
	g := fakeGate{objects: map[string]any{
		"user": map[string]any{"name": "Ann"},
	}}
	c := New(g)

	v := eval(t, c, member(ident("user"), propKey("name")), nil)
	require.Equal(t, "Ann", v)

	// unauthorized roots fail at compile time; a binding cannot rescue them
	_, e := c.CompileTree(member(ident("secret"), propKey("name")))
	require.Error(t, e)

	clo, e := c.CompileTree(member(ident("user"), propKey("missing")))
	require.NoError(t, e)
	v, e = clo(&EvalContext{})
	require.NoError(t, e)
	require.Nil(t, v)
}

func TestMemberWithoutGate(t *testing.T) {
	c := New(nil)
	_, e := c.CompileTree(member(ident("user"), propKey("name")))
	require.Error(t, e)
}

func TestMemberCompoundObject(t *testing.T) {
	c := New(nil)

	list := arr(lit("10"), lit("20"), lit("30"))
	require.Equal(t, float64(20), eval(t, c, member(list, lit("1")), nil))
	require.Equal(t, float64(3), eval(t, c, member(list, lit(`"length"`)), nil))
	require.Nil(t, eval(t, c, member(list, lit("7")), nil))

	require.Equal(t, "e", eval(t, c, member(lit(`"hello"`), lit("1")), nil))
	require.Equal(t, float64(5), eval(t, c, member(lit(`"hello"`), lit(`"length"`)), nil))

	clo, e := c.CompileTree(faulty())
	require.NoError(t, e)
	_, e = clo(&EvalContext{})
	require.Error(t, e)
	require.Equal(t, NoValueError, e.(*gexl.Error).Code)
}

func TestCallThroughGate(t *testing.T) {
	g := fakeGate{fns: map[string]Callable{
		"add": func(args ...any) (any, error) {
			sum := float64(0)
			for _, a := range args {
				sum += ToNumber(a)
			}
			return sum, nil
		},
	}}
	c := New(g)

	v := eval(t, c, call(ident("add"), lit("1"), lit("2"), lit("3")), nil)
	require.Equal(t, float64(6), v)

	v = eval(t, c, call(ident("add")), nil)
	require.Equal(t, float64(0), v)

	_, e := c.CompileTree(call(ident("exec"), lit("1")))
	require.Error(t, e)
}

func TestEvalArgsReachGate(t *testing.T) {
	var seen []any
	c := New(gateFunc{
		root: func(name string) (Accessor, error) {
			return func(args ...any) (any, error) {
				seen = args
				return map[string]any{"id": args[0]}, nil
			}, nil
		},
	})

	v := eval(t, c, member(ident("ctx"), propKey("id")), nil, "req-1", float64(7))
	require.Equal(t, "req-1", v)
	require.Equal(t, []any{"req-1", float64(7)}, seen)
}

// gateFunc adapts bare functions to the Gate interface.
type gateFunc struct {
	root   func(name string) (Accessor, error)
	callee func(node *grammar.Result) (Invoker, error)
}

func (g gateFunc) ValidateObjectRoot(name string) (Accessor, error) {
	return g.root(name)
}

func (g gateFunc) ValidateCallee(node *grammar.Result) (Invoker, error) {
	return g.callee(node)
}

func TestUnknownKind(t *testing.T) {
	c := New(nil)
	_, e := c.CompileTree(&grammar.Result{Kind: "mystery"})
	require.Error(t, e)
	require.Equal(t, UnknownKindError, e.(*gexl.Error).Code)
}

func TestAbsentEvaluatesToNil(t *testing.T) {
	c := New(nil)
	require.Nil(t, eval(t, c, grammar.Absent, nil))
}

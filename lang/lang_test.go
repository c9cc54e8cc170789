package lang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gexl/gexl"
	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/gate"
	"github.com/gexl/gexl/grammar"
	"github.com/gexl/gexl/source"
)

func run(t *testing.T, src string, env compile.Env, wl *gate.Whitelist) any {
	t.Helper()
	x, e := Compile(src, wl)
	require.NoError(t, e, "compile %q", src)
	v, e := x.Eval(env)
	require.NoError(t, e, "eval %q", src)
	return v
}

func TestEvalExpressions(t *testing.T) {
	samples := []struct {
		src  string
		want any
	}{
		{"42", float64(42)},
		{"'hi'", "hi"},
		{"true", true},
		{"null", nil},
		{"1 + 2", float64(3)},
		{"1 + 2 * 3", float64(7)},
		{"2 * 3 + 1", float64(7)},
		{"(1 + 2) * 3", float64(9)},
		{"10 - 2 - 3", float64(5)},
		{"5 % 2", float64(1)},
		{"'a' + 'b' + 1", "ab1"},
		{"-3 + 1", float64(-2)},
		{"1 - -2", float64(3)},
		{"!''", true},
		{"!!'x'", true},
		{"~1.5", float64(-2)},
		{"1 == '1'", true},
		{"1 === '1'", false},
		{"1 !== '1'", true},
		{"2 > 1 && 1 < 2", true},
		{"'b' >= 'a'", true},
		{"0 || 'fallback'", "fallback"},
		{"1 && 2", float64(2)},
		{"1 ? 2 : 3", float64(2)},
		{"'' ? 2 : 3", float64(3)},
		{"1 ? 2 : 3 ? 4 : 5", float64(2)},
		{"0 ? 2 : 0 ? 4 : 5", float64(5)},
		{"[1, 2, 3][1]", float64(2)},
		{"[1, 2, 3]['length']", float64(3)},
		{"'hello'[0]", "h"},
		{"{a: 1}.a", float64(1)},
		{"{a: 1, 'b c': 2}['b c']", float64(2)},
		{"{a: 1, a: 9}.a", float64(9)},
	}

	for _, s := range samples {
		require.Equal(t, s.want, run(t, s.src, nil, nil), "source %q", s.src)
	}
}

func TestEvalWithBindings(t *testing.T) {
	env := compile.Env{"x": float64(2), "name": "Bob"}

	require.Equal(t, float64(5), run(t, "x + 3", env, nil))
	require.Equal(t, "Bob!", run(t, "name + '!'", env, nil))

	// unbound names evaluate to nil, never fail
	require.Equal(t, true, run(t, "ghost == null", env, nil))
}

func TestCompiledOnceEvalManyTimes(t *testing.T) {
	x, e := Compile("x * x", nil)
	require.NoError(t, e)

	for i := float64(1); i < 5; i++ {
		v, e := x.Eval(compile.Env{"x": i})
		require.NoError(t, e)
		require.Equal(t, i*i, v)
	}
	require.Equal(t, "x * x", x.Source())

	// recompiling the same source yields an equivalent expression
	y, e := Compile("x * x", nil)
	require.NoError(t, e)
	v, e := y.Eval(compile.Env{"x": float64(3)})
	require.NoError(t, e)
	require.Equal(t, float64(9), v)
}

func TestArrayElision(t *testing.T) {
	samples := []struct {
		src  string
		want []any
	}{
		{"[]", []any{}},
		{"[1]", []any{float64(1)}},
		{"[1,]", []any{float64(1)}},
		{"[1,,3]", []any{float64(1), nil, float64(3)}},
		{"[,]", []any{nil}},
	}

	for _, s := range samples {
		require.Equal(t, s.want, run(t, s.src, nil, nil), "source %q", s.src)
	}
}

func TestObjectLiterals(t *testing.T) {
	v := run(t, "{a: 1 + 1, 2: 'two', nested: {b: true}, list: [1], t: x,}", compile.Env{"x": "bound"}, nil)
	require.Equal(t, map[string]any{
		"a":      float64(2),
		"2":      "two",
		"nested": map[string]any{"b": true},
		"list":   []any{float64(1)},
		"t":      "bound",
	}, v)
}

func TestGatedMemberAccess(t *testing.T) {
	wl := gate.NewWhitelist()
	wl.AllowValue("user", map[string]any{"name": "Ann", "tags": []any{"a", "b"}})

	require.Equal(t, "Ann", run(t, "user.name", nil, wl))
	require.Equal(t, "Ann", run(t, "user['na' + 'me']", nil, wl))
	require.Equal(t, "b", run(t, "user.tags[1]", nil, wl))
	require.Equal(t, float64(2), run(t, "user.tags.length", nil, wl))
	require.Nil(t, run(t, "user.missing", nil, wl))

	// the root is validated at compile time; bindings cannot stand in
	_, e := Compile("secret.name", wl)
	require.Error(t, e)
	require.Equal(t, gate.UnauthorizedIdentifierError, e.(*gexl.Error).Code)

	x, e := Compile("user.name", wl)
	require.NoError(t, e)
	v, e := x.Eval(compile.Env{"user": map[string]any{"name": "spoof"}})
	require.NoError(t, e)
	require.Equal(t, "Ann", v, "the whitelisted accessor wins over any binding")
}

func TestGatedCalls(t *testing.T) {
	wl := gate.NewWhitelist()
	wl.AllowFunc("add", func(args ...any) (any, error) {
		sum := float64(0)
		for _, a := range args {
			sum += compile.ToNumber(a)
		}
		return sum, nil
	})
	wl.AllowFunc("fmt.join", func(args ...any) (any, error) {
		res := ""
		for _, a := range args {
			res += compile.ToString(a)
		}
		return res, nil
	})

	require.Equal(t, float64(6), run(t, "add(1, 2, 3)", nil, wl))
	require.Equal(t, float64(0), run(t, "add()", nil, wl))
	require.Equal(t, "a-1", run(t, "fmt.join('a', '-', 1)", nil, wl))
	require.Equal(t, float64(10), run(t, "add(add(1, 2), 3) + 4", nil, wl))

	_, e := Compile("exec('rm')", wl)
	require.Error(t, e)
	require.Equal(t, gate.UnauthorizedCallError, e.(*gexl.Error).Code)

	_, e = Compile("fmt.other()", wl)
	require.Error(t, e)

	// no whitelist at all: calls never compile
	_, e = Compile("add(1)", nil)
	require.Error(t, e)
}

func TestCallTimeArgs(t *testing.T) {
	wl := gate.NewWhitelist()
	wl.AllowObject("ctx", func(args ...any) (any, error) {
		return map[string]any{"first": args[0]}, nil
	})

	x, e := Compile("ctx.first", wl)
	require.NoError(t, e)

	v, e := x.Eval(nil, "req-1")
	require.NoError(t, e)
	require.Equal(t, "req-1", v)

	v, e = x.Eval(nil, "req-2")
	require.NoError(t, e)
	require.Equal(t, "req-2", v)
}

func TestSyntaxErrors(t *testing.T) {
	samples := []struct {
		src  string
		code int
	}{
		{"", grammar.NoMatchError},
		{"(1", grammar.NoMatchError},
		{"1 +", grammar.TrailingInputError},
		{"1 2", grammar.TrailingInputError},
		{"{a 1}", grammar.NoMatchError},
	}

	for _, s := range samples {
		_, e := Parse("test", s.src)
		require.Error(t, e, "source %q", s.src)
		require.Equal(t, s.code, e.(*gexl.Error).Code, "source %q", s.src)
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, e := Parse("test", "1 + (2 *\n   )")
	require.Error(t, e)
	ge := e.(*gexl.Error)
	require.Equal(t, "test", ge.SourceName)
	require.Equal(t, 2, ge.Line)
}

func TestKeywordBoundaries(t *testing.T) {
	env := compile.Env{"truex": "value", "nullable": float64(1)}

	require.Equal(t, "value", run(t, "truex", env, nil))
	require.Equal(t, float64(1), run(t, "nullable", env, nil))
	require.Equal(t, true, run(t, "true", env, nil))
}

func TestWhitespaceTolerance(t *testing.T) {
	require.Equal(t, float64(3),
		run(t, "  1\n\t+ 2  ", nil, nil))
	require.Equal(t, float64(2),
		run(t, "[ 1 , 2 , 3 ] [ 1 ]", nil, nil))
}

func TestGrammarCloneDialect(t *testing.T) {
	derived := Grammar().Clone()

	// the derived dialect replaces literals wholesale: a hash-word becomes a
	// string value
	require.NoError(t, derived.Register(grammar.Rule{
		Kind: compile.KindLiteral,
		Body: []grammar.Matcher{derived.Pattern(`[ \t\r\n]*#[a-z]+`)},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			raw := strings.TrimSpace(children[0].Raw)
			return &grammar.Result{Kind: compile.KindLiteral, Raw: "'" + raw[1:] + "'"}, nil
		},
	}))

	cur := source.NewCursor(source.New("test", []byte("#tag")))
	res, e := derived.Parse("expr", cur)
	require.NoError(t, e)
	require.Equal(t, compile.KindLiteral, res.Kind)

	clo, e := compile.New(nil).CompileTree(res)
	require.NoError(t, e)
	v, e := clo(&compile.EvalContext{})
	require.NoError(t, e)
	require.Equal(t, "tag", v)

	// the shared grammar is untouched: it rejects the dialect and still
	// accepts what the derived one no longer does
	_, e = Parse("test", "#tag")
	require.Error(t, e)
	require.Equal(t, float64(42), run(t, "42", nil, nil))

	cur = source.NewCursor(source.New("test", []byte("42")))
	_, e = derived.Parse("expr", cur)
	require.Error(t, e)
}

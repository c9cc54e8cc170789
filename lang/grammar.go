package lang

import (
	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/grammar"
	"github.com/gexl/gexl/source"
)

// Token patterns. Keywords take a word boundary so that names like "nullx"
// stay identifiers.
const (
	wsPat      = `[ \t\r\n]*`
	namePat    = `[A-Za-z_$][A-Za-z0-9_$]*`
	numberPat  = `(?:[0-9]+(?:\.[0-9]+)?|\.[0-9]+)(?:[eE][+-]?[0-9]+)?`
	stringPat  = `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`
	keywordPat = `(?:true|false|null)\b`
)

type builder struct {
	g *grammar.Grammar
}

// t wraps a token matcher to tolerate leading whitespace, returning the
// token's own result.
func (b builder) t(m grammar.Matcher) grammar.Matcher {
	seq := grammar.Seq(b.g.Pattern(wsPat), m)
	return func(g *grammar.Grammar, cur *source.Cursor) (*grammar.Result, error) {
		res, e := seq(g, cur)
		if res == nil || e != nil {
			return nil, e
		}
		return res.Children[1], nil
	}
}

func (b builder) lit(text string) grammar.Matcher {
	return b.t(b.g.Literal(text))
}

func (b builder) def(r grammar.Rule) {
	if e := b.g.Register(r); e != nil {
		panic(e)
	}
}

// binaryLevel registers one precedence level: next (op next)*, left-folded
// into binary nodes. Longer operators must be listed before their prefixes.
func (b builder) binaryLevel(kind, next string, ops ...string) {
	opMs := make([]grammar.Matcher, len(ops))
	for i, op := range ops {
		opMs[i] = b.lit(op)
	}

	b.def(grammar.Rule{
		Kind: kind,
		Body: []grammar.Matcher{
			b.g.Ref(next),
			grammar.ZeroOrMore(grammar.Any(opMs...), b.g.Ref(next)),
		},
		OnMatch: foldBinary,
	})
}

func foldBinary(children ...*grammar.Result) (*grammar.Result, error) {
	node := children[0]
	for _, rep := range children[1].Children {
		op := rep.Children[0]
		operand := rep.Children[1]
		node = &grammar.Result{
			Kind:     compile.KindBinary,
			Raw:      op.Raw,
			Range:    source.Range{Start: node.Range.Start, End: operand.Range.End},
			Children: []*grammar.Result{node, operand},
		}
	}
	return node, nil
}

func foldPostfix(children ...*grammar.Result) (*grammar.Result, error) {
	node := children[0]
	for _, sfx := range children[1].Children {
		switch sfx.Kind {
		case "dotsfx", "idxsfx":
			node = &grammar.Result{
				Kind:     compile.KindMember,
				Range:    source.Range{Start: node.Range.Start, End: sfx.Range.End},
				Children: []*grammar.Result{node, sfx.Children[0]},
			}
		case "callsfx":
			node = &grammar.Result{
				Kind:     compile.KindCall,
				Range:    source.Range{Start: node.Range.Start, End: sfx.Range.End},
				Children: append([]*grammar.Result{node}, sfx.Children...),
			}
		}
	}
	return node, nil
}

func isNameKey(raw string) bool {
	c := raw[0]
	return c == '_' || c == '$' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// build constructs the expression grammar. Rule kinds that double as
// compiler node kinds (literal, ident, prop) rely on the engine's kind
// backfill; composite rules tag their nodes in OnMatch.
func build() *grammar.Grammar {
	b := builder{grammar.New()}

	nameTok := b.t(b.g.Pattern(namePat))

	b.def(grammar.Rule{
		Kind: "expr",
		Body: []grammar.Matcher{b.g.Ref("conditional"), b.g.Pattern(wsPat)},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			return children[0], nil
		},
	})

	b.def(grammar.Rule{
		Kind: "conditional",
		Body: []grammar.Matcher{
			b.g.Ref("or"),
			grammar.Opt(b.lit("?"), b.g.Ref("expr"), b.lit(":"), b.g.Ref("expr")),
		},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			if children[1].IsAbsent() {
				return children[0], nil
			}

			tail := children[1]
			cons := tail.Children[1]
			alt := tail.Children[3]
			return &grammar.Result{
				Kind:     compile.KindConditional,
				Range:    source.Range{Start: children[0].Range.Start, End: alt.Range.End},
				Children: []*grammar.Result{children[0], cons, alt},
			}, nil
		},
	})

	b.binaryLevel("or", "and", "||")
	b.binaryLevel("and", "equality", "&&")
	b.binaryLevel("equality", "relational", "===", "!==", "==", "!=")
	b.binaryLevel("relational", "additive", ">=", "<=", ">", "<")
	b.binaryLevel("additive", "multiplicative", "+", "-")
	b.binaryLevel("multiplicative", "unary", "*", "/", "%")

	b.def(grammar.Rule{
		Kind: "unary",
		Body: []grammar.Matcher{grammar.Any(
			grammar.Seq(
				grammar.Any(b.lit("!"), b.lit("~"), b.lit("+"), b.lit("-")),
				b.g.Ref("unary"),
			),
			b.g.Ref("postfix"),
		)},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			if len(children) == 1 {
				return children[0], nil
			}

			op := children[0]
			operand := children[1]
			return &grammar.Result{
				Kind:     compile.KindUnary,
				Raw:      op.Raw,
				Range:    source.Range{Start: op.Range.Start, End: operand.Range.End},
				Children: []*grammar.Result{operand},
			}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: "postfix",
		Body: []grammar.Matcher{
			b.g.Ref("primary"),
			grammar.ZeroOrMore(grammar.Any(b.g.Ref("callsfx"), b.g.Ref("dotsfx"), b.g.Ref("idxsfx"))),
		},
		OnMatch: foldPostfix,
	})

	b.def(grammar.Rule{
		Kind: "dotsfx",
		Body: []grammar.Matcher{b.lit("."), nameTok},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			name := children[1]
			key := &grammar.Result{Kind: compile.KindKey, Raw: name.Raw, Range: name.Range}
			return &grammar.Result{Children: []*grammar.Result{key}}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: "idxsfx",
		Body: []grammar.Matcher{b.lit("["), b.g.Ref("expr"), b.lit("]")},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			return &grammar.Result{Children: []*grammar.Result{children[1]}}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: "callsfx",
		Body: []grammar.Matcher{
			b.lit("("),
			grammar.Opt(b.g.Ref("expr"), grammar.ZeroOrMore(b.lit(","), b.g.Ref("expr"))),
			b.lit(")"),
		},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			args := make([]*grammar.Result, 0)
			if !children[1].IsAbsent() {
				seq := children[1]
				args = append(args, seq.Children[0])
				for _, rep := range seq.Children[1].Children {
					args = append(args, rep.Children[1])
				}
			}
			return &grammar.Result{Children: args}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: "primary",
		Body: []grammar.Matcher{grammar.Any(
			b.g.Ref("group"),
			b.g.Ref(compile.KindArray),
			b.g.Ref(compile.KindObject),
			b.g.Ref(compile.KindLiteral),
			b.g.Ref(compile.KindIdent),
		)},
	})

	b.def(grammar.Rule{
		Kind: "group",
		Body: []grammar.Matcher{b.lit("("), b.g.Ref("expr"), b.lit(")")},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			return children[1], nil
		},
	})

	b.def(grammar.Rule{
		Kind: compile.KindArray,
		Body: []grammar.Matcher{
			b.lit("["),
			grammar.Opt(b.g.Ref("expr")),
			grammar.ZeroOrMore(b.lit(","), grammar.Opt(b.g.Ref("expr"))),
			b.lit("]"),
		},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			first := children[1]
			reps := children[2]
			elems := make([]*grammar.Result, 0)
			if !first.IsAbsent() || len(reps.Children) > 0 {
				elems = append(elems, first)
				for _, rep := range reps.Children {
					elems = append(elems, rep.Children[1])
				}
				// a single trailing comma does not add a slot
				if len(reps.Children) > 0 && elems[len(elems)-1].IsAbsent() {
					elems = elems[:len(elems)-1]
				}
			}
			return &grammar.Result{Kind: compile.KindArray, Children: elems}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: compile.KindObject,
		Body: []grammar.Matcher{
			b.lit("{"),
			grammar.Opt(
				b.g.Ref(compile.KindProp),
				grammar.ZeroOrMore(b.lit(","), b.g.Ref(compile.KindProp)),
				grammar.Opt(b.lit(",")),
			),
			b.lit("}"),
		},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			props := make([]*grammar.Result, 0)
			if !children[1].IsAbsent() {
				seq := children[1]
				props = append(props, seq.Children[0])
				for _, rep := range seq.Children[1].Children {
					props = append(props, rep.Children[1])
				}
			}
			return &grammar.Result{Kind: compile.KindObject, Children: props}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: compile.KindProp,
		Body: []grammar.Matcher{
			grammar.Any(nameTok, b.t(b.g.Pattern(stringPat)), b.t(b.g.Pattern(numberPat))),
			b.lit(":"),
			b.g.Ref("expr"),
		},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			raw := children[0]
			key := &grammar.Result{Raw: raw.Raw, Range: raw.Range}
			if isNameKey(raw.Raw) {
				key.Kind = compile.KindKey
			} else {
				key.Kind = compile.KindLiteral
			}
			return &grammar.Result{
				Kind:     compile.KindProp,
				Children: []*grammar.Result{key, children[2]},
			}, nil
		},
	})

	b.def(grammar.Rule{
		Kind: compile.KindLiteral,
		Body: []grammar.Matcher{grammar.Any(
			b.t(b.g.Pattern(keywordPat)),
			b.t(b.g.Pattern(numberPat)),
			b.t(b.g.Pattern(stringPat)),
		)},
	})

	b.def(grammar.Rule{
		Kind: compile.KindIdent,
		Body: []grammar.Matcher{nameTok},
		OnMatch: func(children ...*grammar.Result) (*grammar.Result, error) {
			switch children[0].Raw {
			case "true", "false", "null":
				return nil, nil
			}
			return children[0], nil
		},
	})

	return b.g
}

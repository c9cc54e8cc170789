// Package grammar defines the combinator-based grammar engine.
//
// A grammar is a registry of named rules built from small composable
// matchers. Composition is pure construction; evaluation is the only
// side-effecting step, and the only side effect is cursor movement. Every
// combinator that can consume input before failing restores the cursor to
// the position recorded at its own entry, so alternation siblings and
// containing sequences always observe a clean cursor.
//
// Matchers receive the grammar instance they are evaluated under, so a rule
// reference resolves against the invoking instance. This is what makes
// derived grammars work: a clone that replaces a rule sees its own version
// through every reference, while the parent keeps resolving its own.
package grammar

import (
	"regexp"

	"github.com/gexl/gexl"
	"github.com/gexl/gexl/source"
)

// Error codes used by grammar:
const (
	// BadRuleError indicates a descriptor with no kind or no body.
	BadRuleError = gexl.GrammarErrors + iota

	// UnknownRuleError indicates a reference to a rule kind that was never registered.
	UnknownRuleError
)

const (
	// NoMatchError indicates that the root rule did not match the source.
	NoMatchError = gexl.SyntaxErrors + iota

	// TrailingInputError indicates that the root rule matched but did not consume the whole source.
	TrailingInputError
)

// AbsentKind tags the explicit-absence sentinel produced by Opt.
const AbsentKind = "-absent-"

// Absent is the result of an optional matcher that succeeded in finding
// nothing. It is a valid success embedded in a larger structure and must not
// be confused with a failed match (which is a nil result).
var Absent = &Result{Kind: AbsentKind}

// Result is a typed syntax node produced by a successful match: a kind tag,
// the consumed span, and the raw text and/or child nodes. The Result tree is
// the program representation handed to the compiler; there is no separate
// AST.
type Result struct {
	// Kind contains the node kind, assigned by the registered rule unless the
	// match itself set one. Empty for untagged intermediate results.
	Kind string

	// Range covers exactly the consumed span.
	Range source.Range

	// Raw contains the matched text for leaf results.
	Raw string

	// Children contains ordered sub-results for composite results.
	Children []*Result
}

// IsAbsent reports whether r is the explicit-absence sentinel.
func (r *Result) IsAbsent() bool {
	return r != nil && r.Kind == AbsentKind
}

// isSequence reports whether r is an untagged ordered payload whose elements
// are spread across an OnMatch transform.
func (r *Result) isSequence() bool {
	return r.Kind == "" && r.Children != nil
}

// Matcher tries to match source text at the cursor position. It returns a
// nil result and nil error when it legitimately does not match ("no match",
// the routine backtracking signal), and a non-nil error only for hard faults
// such as references to unregistered rules. A matcher that fails must leave
// the cursor where it found it.
type Matcher func(g *Grammar, cur *source.Cursor) (*Result, error)

// Rule describes a named grammar rule.
type Rule struct {
	// Kind names the rule and tags its results.
	Kind string

	// Body is the rule's matcher; multiple entries form an ordered sequence.
	Body []Matcher

	// OnMatch, if present, replaces the raw match payload. An untagged
	// sequence payload is spread across the positional arguments. Returning
	// a nil result signals failure, triggering cursor restoration and the
	// fallback.
	OnMatch func(children ...*Result) (*Result, error)

	// Fallback, if present, is attempted after the body (or transform)
	// fails; its own outcome is returned as-is.
	Fallback Matcher
}

// Grammar owns a rule table and per-instance matcher caches. Instances share
// nothing unless derived with Clone, and even then later registrations on
// either instance are invisible to the other.
type Grammar struct {
	rules    map[string]Matcher
	literals map[string]Matcher
	patterns map[string]Matcher
	refs     map[string]Matcher
}

func New() *Grammar {
	return &Grammar{
		rules:    make(map[string]Matcher),
		literals: make(map[string]Matcher),
		patterns: make(map[string]Matcher),
		refs:     make(map[string]Matcher),
	}
}

// Clone derives a new grammar whose rule table and caches start as copies of
// g's. Subsequent registrations on either instance do not affect the other.
func (g *Grammar) Clone() *Grammar {
	n := New()
	for k, v := range g.rules {
		n.rules[k] = v
	}
	for k, v := range g.literals {
		n.literals[k] = v
	}
	for k, v := range g.patterns {
		n.patterns[k] = v
	}
	for k, v := range g.refs {
		n.refs[k] = v
	}
	return n
}

// Register stores a named rule, replacing any previous rule of the same
// kind. The stored matcher wraps the body with transform application, cursor
// restoration on failure, the fallback attempt, and kind/range backfill.
func (g *Grammar) Register(r Rule) error {
	if r.Kind == "" {
		return gexl.FormatError(BadRuleError, "rule kind missing")
	}
	if len(r.Body) == 0 {
		return gexl.FormatError(BadRuleError, "rule %q has no body", r.Kind)
	}

	body := Seq(r.Body...)
	kind := r.Kind
	onMatch := r.OnMatch
	fallback := r.Fallback

	g.rules[kind] = func(g *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		res, e := body(g, cur)
		if e != nil {
			return nil, e
		}

		if res.IsAbsent() {
			return res, nil
		}

		if res != nil && onMatch != nil {
			if res.isSequence() {
				res, e = onMatch(res.Children...)
			} else {
				res, e = onMatch(res)
			}
			if e != nil {
				return nil, e
			}
		}

		if res == nil {
			cur.SetPos(start)
			if fallback != nil {
				return fallback(g, cur)
			}
			return nil, nil
		}

		if res.Kind == "" {
			res.Kind = kind
		}
		if res.Range == (source.Range{}) {
			res.Range = cur.RangeSince(start)
		}
		return res, nil
	}
	return nil
}

// Ref returns a matcher deferring to whatever rule is registered for kind in
// the invoking grammar at evaluation time. Repeated references to the same
// kind share one indirection matcher, which is what allows mutually
// recursive rules: the kind only has to exist by the time it is matched.
func (g *Grammar) Ref(kind string) Matcher {
	if m, f := g.refs[kind]; f {
		return m
	}

	m := func(g *Grammar, cur *source.Cursor) (*Result, error) {
		rule, f := g.rules[kind]
		if !f {
			return nil, gexl.FormatErrorPos(cur.SourcePos(), UnknownRuleError, "unknown rule %q", kind)
		}
		return rule(g, cur)
	}
	g.refs[kind] = m
	return m
}

// Literal returns a matcher for the exact text, memoized by text within this
// grammar instance.
func (g *Grammar) Literal(text string) Matcher {
	if m, f := g.literals[text]; f {
		return m
	}

	m := func(_ *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		raw, f := cur.MatchLiteral(text)
		if !f {
			return nil, nil
		}
		return &Result{Raw: raw, Range: cur.RangeSince(start)}, nil
	}
	g.literals[text] = m
	return m
}

// Pattern returns a matcher for a regular expression anchored at the cursor
// position, memoized by the exact expression text within this grammar
// instance. Flags are given inline ("(?i)" etc.). Pattern panics on an
// invalid expression, like regexp.MustCompile: grammars are authored in
// code, not taken from input.
func (g *Grammar) Pattern(expr string) Matcher {
	if m, f := g.patterns[expr]; f {
		return m
	}

	re := regexp.MustCompile("(?s:" + expr + ")")
	m := func(_ *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		raw, f := cur.MatchPattern(re)
		if !f {
			return nil, nil
		}
		return &Result{Raw: raw, Range: cur.RangeSince(start)}, nil
	}
	g.patterns[expr] = m
	return m
}

// Seq combines matchers into an ordered sequence. A single matcher passes
// through unchanged. The sequence never partially commits: a failure of the
// k-th element restores the cursor to the position recorded before the
// sequence began.
func Seq(tests ...Matcher) Matcher {
	if len(tests) == 1 {
		return tests[0]
	}

	return func(g *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		children := make([]*Result, 0, len(tests))
		for _, t := range tests {
			res, e := t(g, cur)
			if e != nil {
				return nil, e
			}
			if res == nil {
				cur.SetPos(start)
				return nil, nil
			}

			children = append(children, res)
		}
		return &Result{Range: cur.RangeSince(start), Children: children}, nil
	}
}

// Any tries each candidate in order against the current position and returns
// the first success. Every failing attempt restores the cursor before the
// next is tried. Order is significant: first match wins.
func Any(tests ...Matcher) Matcher {
	return func(g *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		for _, t := range tests {
			res, e := t(g, cur)
			if e != nil {
				return nil, e
			}
			if res != nil {
				return res, nil
			}

			cur.SetPos(start)
		}
		return nil, nil
	}
}

// ZeroOrMore applies the (possibly composed) matcher until it fails or stops
// consuming input. It always succeeds, possibly with zero repetitions; each
// attempt is independently backtracking-safe.
func ZeroOrMore(tests ...Matcher) Matcher {
	m := Seq(tests...)
	return func(g *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		children := make([]*Result, 0)
		for !cur.AtEnd() {
			save := cur.Pos()
			res, e := m(g, cur)
			if e != nil {
				return nil, e
			}
			if res == nil {
				cur.SetPos(save)
				break
			}

			children = append(children, res)
			if cur.Pos() == save {
				break
			}
		}
		return &Result{Range: cur.RangeSince(start), Children: children}, nil
	}
}

// OneOrMore is ZeroOrMore that fails, restoring the cursor, when zero
// repetitions succeeded.
func OneOrMore(tests ...Matcher) Matcher {
	m := ZeroOrMore(tests...)
	return func(g *Grammar, cur *source.Cursor) (*Result, error) {
		start := cur.Pos()
		res, e := m(g, cur)
		if e != nil {
			return nil, e
		}
		if len(res.Children) == 0 {
			cur.SetPos(start)
			return nil, nil
		}

		return res, nil
	}
}

// Opt applies the matcher once; on failure it restores the cursor and
// reports Absent, which is a success distinct from a failed match.
func Opt(tests ...Matcher) Matcher {
	m := Seq(tests...)
	return func(g *Grammar, cur *source.Cursor) (*Result, error) {
		save := cur.Pos()
		res, e := m(g, cur)
		if e != nil {
			return nil, e
		}
		if res == nil {
			cur.SetPos(save)
			return Absent, nil
		}

		return res, nil
	}
}

// Apply evaluates a matcher under this grammar.
func (g *Grammar) Apply(m Matcher, cur *source.Cursor) (*Result, error) {
	return m(g, cur)
}

func noMatchError(cur *source.Cursor) *gexl.Error {
	return gexl.FormatErrorPos(cur.FurthestPos(), NoMatchError, "expression does not match grammar")
}

func trailingInputError(cur *source.Cursor) *gexl.Error {
	pos := cur.FurthestPos()
	rest := cur.Text(source.Range{Start: pos.Pos(), End: cur.Source().Len()})
	if len(rest) > 16 {
		rest = rest[:16] + "..."
	}
	return gexl.FormatErrorPos(pos, TrailingInputError, "unexpected %q", rest)
}

// Parse applies the registered rule for kind to the whole source behind cur.
// Both a failed match and unconsumed trailing input are reported as a single
// structured syntax error carrying the furthest position reached.
func (g *Grammar) Parse(kind string, cur *source.Cursor) (*Result, error) {
	res, e := g.Ref(kind)(g, cur)
	if e != nil {
		return nil, e
	}
	if res == nil {
		return nil, noMatchError(cur)
	}
	if !cur.AtEnd() {
		return nil, trailingInputError(cur)
	}

	return res, nil
}

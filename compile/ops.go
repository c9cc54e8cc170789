package compile

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gexl/gexl"
)

// Runtime values are float64, string, bool, nil, []any, and map[string]any.
// The coercion rules below follow the source language: loose equality
// converts across number/string/bool, strict equality never converts, and
// "+" concatenates as soon as either side is a string.

type binaryFn func(l, r any) any
type unaryFn func(v any) any

var binaryOps = map[string]binaryFn{
	"+": jsAdd,
	"-": func(l, r any) any { return ToNumber(l) - ToNumber(r) },
	"*": func(l, r any) any { return ToNumber(l) * ToNumber(r) },
	"/": func(l, r any) any { return ToNumber(l) / ToNumber(r) },
	"%": func(l, r any) any { return math.Mod(ToNumber(l), ToNumber(r)) },
	">": func(l, r any) any { return compare(l, r, func(a, b float64) bool { return a > b }, func(a, b string) bool { return a > b }) },
	"<": func(l, r any) any { return compare(l, r, func(a, b float64) bool { return a < b }, func(a, b string) bool { return a < b }) },
	">=": func(l, r any) any {
		return compare(l, r, func(a, b float64) bool { return a >= b }, func(a, b string) bool { return a >= b })
	},
	"<=": func(l, r any) any {
		return compare(l, r, func(a, b float64) bool { return a <= b }, func(a, b string) bool { return a <= b })
	},
	"==":  func(l, r any) any { return looseEq(l, r) },
	"!=":  func(l, r any) any { return !looseEq(l, r) },
	"===": func(l, r any) any { return strictEq(l, r) },
	"!==": func(l, r any) any { return !strictEq(l, r) },
}

var unaryOps = map[string]unaryFn{
	"+": func(v any) any { return ToNumber(v) },
	"-": func(v any) any { return -ToNumber(v) },
	"!": func(v any) any { return !Truthy(v) },
	"~": func(v any) any { return float64(^toInt32(v)) },
}

// Truthy reports the source language's boolean coercion of v.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// ToNumber coerces v to a number; unconvertible values become NaN.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		n, e := strconv.ParseFloat(s, 64)
		if e != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// ToString coerces v to its string form.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			if el != nil {
				parts[i] = ToString(el)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func jsAdd(l, r any) any {
	ls, lf := l.(string)
	rs, rf := r.(string)
	if lf || rf {
		if !lf {
			ls = ToString(l)
		}
		if !rf {
			rs = ToString(r)
		}
		return ls + rs
	}
	return ToNumber(l) + ToNumber(r)
}

func compare(l, r any, numCmp func(a, b float64) bool, strCmp func(a, b string) bool) bool {
	ls, lf := l.(string)
	rs, rf := r.(string)
	if lf && rf {
		return strCmp(ls, rs)
	}

	a := ToNumber(l)
	b := ToNumber(r)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return numCmp(a, b)
}

func looseEq(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}

	switch x := l.(type) {
	case bool:
		return looseEq(ToNumber(x), r)
	case float64:
		switch y := r.(type) {
		case bool:
			return looseEq(l, ToNumber(y))
		case float64:
			return x == y
		case string:
			return x == ToNumber(y)
		}
		return false
	case string:
		switch y := r.(type) {
		case bool, float64:
			return looseEq(ToNumber(x), ToNumber(y))
		case string:
			return x == y
		}
		return false
	}

	if _, f := r.(bool); f {
		return looseEq(l, ToNumber(r))
	}
	// Composite values are only loosely equal to themselves, which interface
	// comparison cannot establish for maps and slices.
	return false
}

func strictEq(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}

	switch x := l.(type) {
	case bool:
		y, f := r.(bool)
		return f && x == y
	case float64:
		y, f := r.(float64)
		return f && x == y
	case string:
		y, f := r.(string)
		return f && x == y
	}
	return false
}

func toInt32(v any) int32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	f = math.Trunc(f)
	f = math.Mod(f, 4294967296)
	if f >= 2147483648 {
		f -= 4294967296
	} else if f < -2147483648 {
		f += 4294967296
	}
	return int32(f)
}

// indexValue resolves container[key] at evaluation time. Missing properties
// and out-of-range indexes evaluate to nil; indexing into nil is a fault.
func indexValue(container, key any) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		return c[ToString(key)], nil
	case []any:
		if s, f := key.(string); f && s == "length" {
			return float64(len(c)), nil
		}
		n := ToNumber(key)
		i := int(n)
		if math.IsNaN(n) || float64(i) != n || i < 0 || i >= len(c) {
			return nil, nil
		}
		return c[i], nil
	case string:
		if s, f := key.(string); f && s == "length" {
			return float64(len(c)), nil
		}
		n := ToNumber(key)
		i := int(n)
		if math.IsNaN(n) || float64(i) != n || i < 0 || i >= len(c) {
			return nil, nil
		}
		return string(c[i]), nil
	case nil:
		return nil, gexl.FormatError(NoValueError, "cannot read property %q of null", ToString(key))
	default:
		return nil, gexl.FormatError(NoValueError, "cannot read property %q of %T", ToString(key), container)
	}
}

// parseLiteral turns a literal token into its runtime value: a quoted
// string, true/false, null, or a number.
func parseLiteral(raw string) (any, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') {
		return unquote(raw)
	}

	n, e := strconv.ParseFloat(raw, 64)
	if e != nil {
		return nil, gexl.FormatError(BadLiteralError, "bad literal %q", raw)
	}
	return n, nil
}

func unquote(raw string) (string, error) {
	quote := raw[0]
	if raw[len(raw)-1] != quote {
		return "", gexl.FormatError(BadLiteralError, "unterminated string %q", raw)
	}

	body := raw[1 : len(raw)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}

		i++
		if i >= len(body) {
			return "", gexl.FormatError(BadLiteralError, "dangling escape in %q", raw)
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(body) {
				return "", gexl.FormatError(BadLiteralError, "bad unicode escape in %q", raw)
			}
			n, e := strconv.ParseUint(body[i+1:i+5], 16, 32)
			if e != nil {
				return "", gexl.FormatError(BadLiteralError, "bad unicode escape in %q", raw)
			}
			i += 4
			r := rune(n)
			// surrogate pair
			if utf16.IsSurrogate(r) && i+6 < len(body) && body[i+1] == '\\' && body[i+2] == 'u' {
				n2, e := strconv.ParseUint(body[i+3:i+7], 16, 32)
				if e == nil {
					if dec := utf16.DecodeRune(r, rune(n2)); dec != utf8.RuneError {
						r = dec
						i += 6
					}
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}

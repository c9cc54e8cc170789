package main

import (
	"math"
	"os"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/gate"
)

// newWhitelist builds the CLI's capability surface: a few pure builtins, a
// math namespace, and an env object exposing the process environment. A
// policy file can narrow this set but never widen it.
func newWhitelist(log *zap.Logger, policyPath string) (*gate.Whitelist, error) {
	wl := gate.NewWhitelist()

	wl.AllowFunc("len", func(args ...any) (any, error) {
		if len(args) == 0 {
			return float64(0), nil
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		}
		return nil, nil
	})
	wl.AllowFunc("keys", func(args ...any) (any, error) {
		if len(args) == 0 {
			return []any{}, nil
		}
		m, ok := args[0].(map[string]any)
		if !ok {
			return []any{}, nil
		}
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		res := make([]any, len(names))
		for i, k := range names {
			res[i] = k
		}
		return res, nil
	})
	wl.AllowFunc("str", func(args ...any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		return compile.ToString(args[0]), nil
	})
	wl.AllowFunc("num", func(args ...any) (any, error) {
		if len(args) == 0 {
			return math.NaN(), nil
		}
		return compile.ToNumber(args[0]), nil
	})

	mathFns := map[string]func(float64) float64{
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": math.Round,
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
	}
	for name, fn := range mathFns {
		fn := fn
		wl.AllowFunc("math."+name, func(args ...any) (any, error) {
			if len(args) == 0 {
				return math.NaN(), nil
			}
			return fn(compile.ToNumber(args[0])), nil
		})
	}

	wl.AllowObject("env", func(...any) (any, error) {
		res := make(map[string]any)
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i > 0 {
				res[kv[:i]] = kv[i+1:]
			}
		}
		return res, nil
	})

	if policyPath != "" {
		p, err := gate.PolicyFromFile(policyPath)
		if err != nil {
			return nil, err
		}
		wl.Restrict(p)
		log.Info("policy applied", zap.String("path", policyPath))
	}
	return wl, nil
}

// loadBindings reads a JSON object file into a binding table. Numbers decode
// as float64, which is exactly the engine's number representation.
func loadBindings(path string) (compile.Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env compile.Env
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env, nil
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		out, err := sonic.MarshalString(s)
		if err != nil {
			return s
		}
		return out
	}

	switch v.(type) {
	case []any, map[string]any:
		out, err := sonic.MarshalString(v)
		if err == nil {
			return out
		}
	}
	return compile.ToString(v)
}

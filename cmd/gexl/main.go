// Command gexl evaluates expressions in the built-in language against a
// host-defined capability whitelist. It offers one-shot evaluation, a syntax
// tree dump, and an interactive REPL with history.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/gexl/gexl/compile"
	"github.com/gexl/gexl/lang"
)

const (
	appName    = "gexl"
	version    = "0.1.0"
	promptMain = "gexl> "
)

func main() {
	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(2)
	}

	log, err := newLogger(settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(2)
	}
	defer log.Sync()

	args := os.Args[1:]
	cmd := "repl"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "repl":
		os.Exit(cmdRepl(settings, log, args))
	case "eval":
		os.Exit(cmdEval(settings, log, args))
	case "parse":
		os.Exit(cmdParse(args))
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`%s %s

Usage:
  %s repl                       Start the REPL (default).
  %s eval <expr>                Evaluate one expression and print the result.
  %s parse <expr>               Print the syntax tree as JSON.
  %s version                    Print the version.

Environment:
  GEXL_POLICY      YAML policy file narrowing the capability whitelist
  GEXL_BINDINGS    JSON object file used as the binding table
  GEXL_HISTORY     REPL history file name (in the home directory)
  GEXL_LOG_LEVEL   debug | info | warn | error
`, appName, version, appName, appName, appName, appName)
}

func setupEnv(settings *Settings, log *zap.Logger, fs *flag.FlagSet, args []string) (compile.Env, *lang.CompileSet, []string, error) {
	policy := fs.String("policy", settings.Policy, "YAML policy file")
	bindPath := fs.String("bindings", settings.Bindings, "JSON bindings file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	wl, err := newWhitelist(log, *policy)
	if err != nil {
		return nil, nil, nil, err
	}

	env := compile.Env{}
	if *bindPath != "" {
		env, err = loadBindings(*bindPath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("bindings loaded", zap.String("path", *bindPath), zap.Int("names", len(env)))
	}
	return env, lang.NewCompileSet(wl), fs.Args(), nil
}

func cmdEval(settings *Settings, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	env, cs, rest, err := setupEnv(settings, log, fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s eval [-policy file] [-bindings file] <expr>\n", appName)
		return 2
	}

	x, err := cs.Compile(rest[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	v, err := x.Eval(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	fmt.Println(formatValue(v))
	return 0
}

func cmdParse(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s parse <expr>\n", appName)
		return 2
	}

	root, err := lang.Parse("(arg)", args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}

	out, err := sonic.MarshalIndent(root, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func cmdRepl(settings *Settings, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	env, cs, _, err := setupEnv(settings, log, fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}

	fmt.Printf("%s %s. Ctrl+D or :quit exits, :help lists commands.\n", appName, version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, settings.History)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if err != nil {
			continue
		}

		code := strings.TrimSpace(line)
		if code == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(code, ":") {
			if exit := replCommand(env, code); exit {
				return 0
			}
			continue
		}

		x, err := cs.Compile(code)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		v, err := x.Eval(env)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		fmt.Println(formatValue(v))
	}
}

func replCommand(env compile.Env, code string) (exit bool) {
	name, rest, _ := strings.Cut(code, " ")
	switch name {
	case ":quit", ":q":
		return true

	case ":help":
		fmt.Print(`REPL commands:
  :bind <name> <json>   Bind a name to a JSON value
  :bindings             List current bindings
  :quit                 Exit
`)

	case ":bind":
		bname, bval, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok {
			fmt.Fprintln(os.Stderr, "usage: :bind <name> <json>")
			return false
		}
		var v any
		if err := sonic.UnmarshalString(bval, &v); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return false
		}
		env[bname] = v

	case ":bindings":
		for k, v := range env {
			fmt.Printf("%s = %s\n", k, formatValue(v))
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, :help lists commands\n", name)
	}
	return false
}

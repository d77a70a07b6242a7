package interp

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sandboshell/sandboshell/expand"
)

// Builtin is the dispatch contract every built-in command implements,
// grounded on the teacher's `(r *Runner) builtin` switch (interp/builtin.go)
// but made a first-class interface so hosts could register additional
// builtins the way they register registry.Command entries.
type Builtin interface {
	Run(ctx context.Context, s *State, args []string) (int, error)
}

// BuiltinFunc adapts a plain function to Builtin.
type BuiltinFunc func(ctx context.Context, s *State, args []string) (int, error)

func (f BuiltinFunc) Run(ctx context.Context, s *State, args []string) (int, error) {
	return f(ctx, s, args)
}

func defaultBuiltins() map[string]Builtin {
	m := map[string]Builtin{
		":":        BuiltinFunc(builtinTrue),
		"true":     BuiltinFunc(builtinTrue),
		"false":    BuiltinFunc(builtinFalse),
		"exit":     BuiltinFunc(builtinExit),
		"return":   BuiltinFunc(builtinReturn),
		"break":    BuiltinFunc(builtinBreak),
		"continue": BuiltinFunc(builtinContinue),
		"shift":    BuiltinFunc(builtinShift),
		"export":   BuiltinFunc(builtinExport),
		"unset":    BuiltinFunc(builtinUnset),
		"readonly": BuiltinFunc(builtinReadonly),
		"local":    BuiltinFunc(builtinLocal),
		"declare":  BuiltinFunc(builtinDeclare),
		"typeset":  BuiltinFunc(builtinDeclare),
		"set":      BuiltinFunc(builtinSet),
		"cd":       BuiltinFunc(builtinCd),
		"pwd":      BuiltinFunc(builtinPwd),
		"eval":     BuiltinFunc(builtinEval),
		"source":   BuiltinFunc(builtinSource),
		".":        BuiltinFunc(builtinSource),
		"echo":     BuiltinFunc(builtinEcho),
		"printf":   BuiltinFunc(builtinPrintf),
		"test":     BuiltinFunc(builtinTest),
		"[":        BuiltinFunc(builtinBracket),
		"trap":     BuiltinFunc(builtinTrap),
	}
	for name, fn := range dirstackBuiltins() {
		m[name] = fn
	}
	return m
}

func builtinTrue(ctx context.Context, s *State, args []string) (int, error)  { return 0, nil }
func builtinFalse(ctx context.Context, s *State, args []string) (int, error) { return 1, nil }

func builtinExit(ctx context.Context, s *State, args []string) (int, error) {
	code := s.Exit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err == nil {
			code = n
		}
	}
	return code, &ExitError{Code: code & 0xff}
}

func builtinReturn(ctx context.Context, s *State, args []string) (int, error) {
	if s.InFunc == 0 && s.InSource == 0 {
		fmt.Fprintln(s.Stderr, "return: can only be done from a function or sourced script")
		return 1, nil
	}
	code := s.Exit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err == nil {
			code = n
		}
	}
	return code, &ReturnError{Code: code & 0xff}
}

func builtinBreak(ctx context.Context, s *State, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, &BreakError{N: n}
}

func builtinContinue(ctx context.Context, s *State, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, &ContinueError{N: n}
}

func builtinShift(ctx context.Context, s *State, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return 1, nil
		}
		n = v
	}
	if n > len(s.Positional) {
		return 1, nil
	}
	s.Positional = s.Positional[n:]
	return 0, nil
}

func builtinExport(ctx context.Context, s *State, args []string) (int, error) {
	if len(args) == 0 {
		names := make([]string, 0, len(s.Vars))
		for n, vr := range s.Vars {
			if vr.Exported {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(s.Stdout, "declare -x %s=%q\n", n, s.Vars[n].String())
		}
		return 0, nil
	}
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		vr := s.Vars[name]
		vr.Exported = true
		vr.Set = true
		if hasVal {
			vr.Kind = expand.String
			vr.Str = val
		}
		if err := s.SetVar(name, vr); err != nil {
			fmt.Fprintln(s.Stderr, "export:", err)
			return 1, nil
		}
	}
	return 0, nil
}

func builtinReadonly(ctx context.Context, s *State, args []string) (int, error) {
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		vr := s.Vars[name]
		if hasVal {
			vr.Kind = expand.String
			vr.Str = val
		}
		vr.Set = true
		vr.ReadOnly = true
		s.Vars[name] = vr
	}
	return 0, nil
}

func builtinUnset(ctx context.Context, s *State, args []string) (int, error) {
	for _, name := range args {
		if vr, ok := s.Vars[name]; ok && vr.ReadOnly {
			fmt.Fprintf(s.Stderr, "unset: %s: readonly variable\n", name)
			return 1, nil
		}
		delete(s.Vars, name)
		if _, ok := s.Funcs[name]; ok {
			delete(s.Funcs, name)
		}
	}
	return 0, nil
}

func builtinLocal(ctx context.Context, s *State, args []string) (int, error) {
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		vr := expand.Variable{Set: true, Kind: expand.String}
		if hasVal {
			vr.Str = val
		}
		s.declareLocal(name, vr)
	}
	return 0, nil
}

// builtinDeclare implements the attribute-setting subset of `declare`:
// -x (export), -r (readonly), -a (indexed array), -A (associative array),
// -i (integer attribute). Full `declare -p`/`-f` introspection is left to a
// registry entry a host wires in (spec.md §1's out-of-scope builtin bodies).
func builtinDeclare(ctx context.Context, s *State, args []string) (int, error) {
	var flags string
	var rest []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags += a[1:]
			continue
		}
		rest = append(rest, a)
	}
	for _, a := range rest {
		name, val, hasVal := strings.Cut(a, "=")
		vr := s.Vars[name]
		vr.Set = true
		switch {
		case strings.Contains(flags, "A") && vr.Kind != expand.Associative:
			vr.Kind = expand.Associative
			vr.Map = map[string]string{}
		case strings.Contains(flags, "a") && vr.Kind != expand.Indexed:
			vr.Kind = expand.Indexed
			vr.List = map[int]string{}
		}
		if hasVal && vr.Kind == expand.String {
			vr.Str = val
		} else if hasVal && vr.Kind == expand.Indexed {
			vr.List[0] = val
		}
		if strings.Contains(flags, "x") {
			vr.Exported = true
		}
		if strings.Contains(flags, "r") {
			vr.ReadOnly = true
		}
		if strings.Contains(flags, "i") {
			vr.Integer = true
		}
		if len(s.localStack) > 0 {
			s.declareLocal(name, vr)
		} else {
			s.Vars[name] = vr
		}
	}
	return 0, nil
}

// builtinSet implements the option-toggling form of `set` (`-o`/`+o`/short
// flags like `-e`/`-u`/`-x`) plus positional-parameter replacement; full
// flag parity with bash's dozens of short options is out of scope.
func builtinSet(ctx context.Context, s *State, args []string) (int, error) {
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			i++
			break
		}
		if !strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "+") {
			break
		}
		on := strings.HasPrefix(a, "-")
		body := a[1:]
		if body == "o" {
			i++
			if i < len(args) {
				s.Options[args[i]] = on
			}
			continue
		}
		for _, c := range body {
			if name, ok := shortOptionName(byte(c)); ok {
				s.Options[name] = on
			}
		}
		if s.Options["xtrace"] && s.Tracer == nil {
			s.Tracer = newTracer(s.Stderr)
		} else if !s.Options["xtrace"] {
			s.Tracer = nil
		}
	}
	if i < len(args) {
		s.Positional = append([]string(nil), args[i:]...)
	}
	return 0, nil
}

func shortOptionName(c byte) (string, bool) {
	switch c {
	case 'e':
		return "errexit", true
	case 'u':
		return "nounset", true
	case 'x':
		return "xtrace", true
	case 'f':
		return "noglob", true
	case 'n':
		return "noexec", true
	case 'v':
		return "verbose", true
	case 'o':
		return "", false
	default:
		return "", false
	}
}

func builtinCd(ctx context.Context, s *State, args []string) (int, error) {
	target := s.Vars["HOME"].Str
	if len(args) > 0 {
		target = args[0]
		if target == "-" {
			target = s.Vars["OLDPWD"].Str
		}
	}
	full := s.FS.ResolvePath(s.Dir, target)
	info, err := s.FS.Stat(full)
	if err != nil || !info.IsDir {
		fmt.Fprintf(s.Stderr, "cd: %s: No such file or directory\n", target)
		return 1, nil
	}
	_ = s.SetVar("OLDPWD", expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: s.Dir})
	s.Dir = full
	_ = s.SetVar("PWD", expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: full})
	return 0, nil
}

func builtinPwd(ctx context.Context, s *State, args []string) (int, error) {
	fmt.Fprintln(s.Stdout, s.Dir)
	return 0, nil
}

func builtinEval(ctx context.Context, s *State, args []string) (int, error) {
	src := strings.Join(args, " ")
	script, err := parseScriptSrc(src)
	if err != nil {
		fmt.Fprintln(s.Stderr, "eval:", err)
		return 2, nil
	}
	err = s.run(ctx, script)
	if ee, ok := err.(*ExitError); ok {
		return ee.Code, err
	}
	return s.Exit, err
}

func builtinSource(ctx context.Context, s *State, args []string) (int, error) {
	if len(args) == 0 {
		fmt.Fprintln(s.Stderr, "source: filename argument required")
		return 2, nil
	}
	full := s.FS.ResolvePath(s.Dir, args[0])
	content, err := s.FS.ReadFile(full)
	if err != nil {
		fmt.Fprintf(s.Stderr, "source: %s: %v\n", args[0], err)
		return 1, nil
	}
	script, err := parseScriptSrc(content)
	if err != nil {
		fmt.Fprintln(s.Stderr, "source:", err)
		return 2, nil
	}
	savedPos := s.Positional
	if len(args) > 1 {
		s.Positional = args[1:]
	}
	s.InSource++
	err = s.run(ctx, script)
	s.InSource--
	s.Positional = savedPos
	if re, ok := err.(*ReturnError); ok {
		return re.Code, nil
	}
	if ee, ok := err.(*ExitError); ok {
		return ee.Code, err
	}
	return s.Exit, err
}

func builtinEcho(ctx context.Context, s *State, args []string) (int, error) {
	nflag := false
	i := 0
	for i < len(args) && args[i] == "-n" {
		nflag = true
		i++
	}
	fmt.Fprint(s.Stdout, strings.Join(args[i:], " "))
	if !nflag {
		fmt.Fprintln(s.Stdout)
	}
	return 0, nil
}

func builtinTrap(ctx context.Context, s *State, args []string) (int, error) {
	if len(args) == 0 {
		if s.CallbackErr != "" {
			fmt.Fprintf(s.Stdout, "trap -- %q ERR\n", s.CallbackErr)
		}
		if s.CallbackExit != "" {
			fmt.Fprintf(s.Stdout, "trap -- %q EXIT\n", s.CallbackExit)
		}
		return 0, nil
	}
	if args[0] == "-l" || args[0] == "-p" {
		fmt.Fprintln(s.Stderr, "trap: -l/-p not implemented")
		return 2, nil
	}
	if len(args) == 1 {
		return setTrap(s, "", args[0])
	}
	body := args[0]
	if body == "-" {
		body = ""
	}
	for _, sig := range args[1:] {
		if code, err := setTrap(s, body, sig); err != nil || code != 0 {
			return code, err
		}
	}
	return 0, nil
}

func builtinPrintf(ctx context.Context, s *State, args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	format := args[0]
	out, err := formatPrintf(format, args[1:])
	if err != nil {
		fmt.Fprintln(s.Stderr, "printf:", err)
		return 1, nil
	}
	fmt.Fprint(s.Stdout, out)
	return 0, nil
}

// formatPrintf implements bash printf's subset of conversions (%s %d %b
// %q %% and literal text, with \n/\t escapes in the format string),
// recycling the format string over extra arguments the way bash does.
func formatPrintf(format string, args []string) (string, error) {
	var out strings.Builder
	ai := 0
	nextArg := func() string {
		if ai < len(args) {
			v := args[ai]
			ai++
			return v
		}
		return ""
	}
	apply := func() error {
		i := 0
		for i < len(format) {
			c := format[i]
			if c == '\\' && i+1 < len(format) {
				switch format[i+1] {
				case 'n':
					out.WriteByte('\n')
				case 't':
					out.WriteByte('\t')
				case '\\':
					out.WriteByte('\\')
				default:
					out.WriteByte(format[i+1])
				}
				i += 2
				continue
			}
			if c != '%' {
				out.WriteByte(c)
				i++
				continue
			}
			if i+1 < len(format) && format[i+1] == '%' {
				out.WriteByte('%')
				i += 2
				continue
			}
			j := i + 1
			for j < len(format) && strings.IndexByte("diouxXeEfFgGaAcsbq%", format[j]) < 0 {
				j++
			}
			if j >= len(format) {
				out.WriteString(format[i:])
				break
			}
			verb := format[j]
			switch verb {
			case 's':
				out.WriteString(nextArg())
			case 'b':
				out.WriteString(strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(nextArg()))
			case 'q':
				out.WriteString(strconv.Quote(nextArg()))
			case 'd', 'i':
				n, _ := strconv.ParseInt(strings.TrimSpace(nextArg()), 0, 64)
				out.WriteString(strconv.FormatInt(n, 10))
			case 'o', 'u', 'x', 'X':
				n, _ := strconv.ParseInt(strings.TrimSpace(nextArg()), 0, 64)
				switch verb {
				case 'o':
					out.WriteString(strconv.FormatInt(n, 8))
				case 'x':
					out.WriteString(strconv.FormatInt(n, 16))
				case 'X':
					out.WriteString(strings.ToUpper(strconv.FormatInt(n, 16)))
				default:
					out.WriteString(strconv.FormatInt(n, 10))
				}
			case 'c':
				v := nextArg()
				if v != "" {
					out.WriteByte(v[0])
				}
			default:
				out.WriteString(nextArg())
			}
			i = j + 1
		}
		return nil
	}
	if len(args) == 0 {
		return "", apply()
	}
	if err := apply(); err != nil {
		return "", err
	}
	for ai < len(args) {
		if err := apply(); err != nil {
			return out.String(), err
		}
	}
	return out.String(), nil
}

// builtinTest implements a practical subset of `test`/`[`: file-type and
// string/numeric comparisons, grounded on the same operator set the
// `[[ ]]` conditional parser recognizes (ast.CondUnary/CondBinary ops),
// since both surfaces share bash's test vocabulary.
func builtinTest(ctx context.Context, s *State, args []string) (int, error) {
	ok, err := evalTestArgs(s, args)
	if err != nil {
		fmt.Fprintln(s.Stderr, "test:", err)
		return 2, nil
	}
	if ok {
		return 0, nil
	}
	return 1, nil
}

func builtinBracket(ctx context.Context, s *State, args []string) (int, error) {
	if len(args) == 0 || args[len(args)-1] != "]" {
		fmt.Fprintln(s.Stderr, "[: missing closing ]")
		return 2, nil
	}
	return builtinTest(ctx, s, args[:len(args)-1])
}

func evalTestArgs(s *State, args []string) (bool, error) {
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		return args[0] != "", nil
	case 2:
		return evalTestUnary(s, args[0], args[1])
	case 3:
		if v, ok := evalTestBinary(s, args[0], args[1], args[2]); ok {
			return v, nil
		}
		return false, fmt.Errorf("unknown operator %s", args[1])
	default:
		return false, fmt.Errorf("too many arguments")
	}
}

func evalTestUnary(s *State, op, operand string) (bool, error) {
	switch op {
	case "-z":
		return operand == "", nil
	case "-n":
		return operand != "", nil
	case "-e", "-f", "-d", "-r", "-w", "-x", "-s":
		full := s.FS.ResolvePath(s.Dir, operand)
		info, err := s.FS.Stat(full)
		if err != nil {
			return false, nil
		}
		switch op {
		case "-d":
			return info.IsDir, nil
		case "-f":
			return !info.IsDir, nil
		case "-s":
			return info.Size > 0, nil
		default:
			return true, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %s", op)
	}
}

func evalTestBinary(s *State, a, op, b string) (bool, bool) {
	switch op {
	case "=", "==":
		return a == b, true
	case "!=":
		return a != b, true
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		na, _ := strconv.ParseInt(strings.TrimSpace(a), 0, 64)
		nb, _ := strconv.ParseInt(strings.TrimSpace(b), 0, 64)
		switch op {
		case "-eq":
			return na == nb, true
		case "-ne":
			return na != nb, true
		case "-lt":
			return na < nb, true
		case "-le":
			return na <= nb, true
		case "-gt":
			return na > nb, true
		default:
			return na >= nb, true
		}
	default:
		return false, false
	}
}

func setTrap(s *State, body, sig string) (int, error) {
	switch sig {
	case "ERR":
		s.CallbackErr = body
	case "EXIT":
		s.CallbackExit = body
	default:
		fmt.Fprintf(s.Stderr, "trap: %s: invalid signal specification\n", sig)
		return 2, nil
	}
	return 0, nil
}

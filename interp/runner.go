package interp

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/expand"
	"github.com/sandboshell/sandboshell/parser"
	"github.com/sandboshell/sandboshell/pattern"
	"github.com/sandboshell/sandboshell/registry"
	"github.com/sandboshell/sandboshell/token"
)

func parseScriptSrc(src string) (*ast.Script, error) {
	return parser.Parse([]byte(src))
}

// execScript is the default registry.ExecFunc: it re-enters the executor
// for a nested script against a fresh sub-state, the hook a registry
// command uses to run shell snippets (e.g. an `xargs`-style command
// invoking its argument as a command line) without importing package interp
// itself.
func (s *State) execScript(ctx context.Context, script *ast.Script) (registry.ExecResult, error) {
	sub := s.sub()
	err := sub.run(ctx, script)
	if ee, ok := err.(*ExitError); ok {
		return registry.ExecResult{ExitCode: ee.Code}, nil
	}
	if err != nil {
		return registry.ExecResult{ExitCode: 1}, err
	}
	return registry.ExecResult{ExitCode: sub.Exit}, nil
}

// run executes every statement of script against s, the common entry point
// used by ExecuteScript, command substitution, `eval`, and `source`.
func (s *State) run(ctx context.Context, script *ast.Script) error {
	return s.runStmts(ctx, script.Stmts)
}

func (s *State) runStmts(ctx context.Context, stmts []*ast.Stmt) error {
	runNext := true
	for _, st := range stmts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !runNext {
			runNext = true
			continue
		}
		suppressErrexit := st.Connective == token.LAND || st.Connective == token.LOR
		if err := s.runStmt(ctx, st, suppressErrexit); err != nil {
			return err
		}
		switch st.Connective {
		case token.LAND:
			runNext = s.Exit == 0
		case token.LOR:
			runNext = s.Exit != 0
		default:
			runNext = true
		}
	}
	return nil
}

// runCondStmts runs a condition-position statement list (if/while/until's
// Cond), suppressing errexit the way bash does inside any condition
// context, per spec.md §4.4's errexit discipline.
func (s *State) runCondStmts(ctx context.Context, stmts []*ast.Stmt) error {
	s.SuppressErrexit++
	err := s.runStmts(ctx, stmts)
	s.SuppressErrexit--
	return err
}

func (s *State) runStmt(ctx context.Context, st *ast.Stmt, suppressErrexit bool) error {
	if st.DeferredErr != nil {
		return st.DeferredErr
	}
	if st.Pipeline == nil {
		return nil
	}
	if err := s.countCommand(); err != nil {
		return err
	}
	if st.Background {
		// No real process table backs this sandbox, so a background job
		// runs synchronously in its own sub-state, subshell-like: it gets a
		// pid for `$!` but its exit/errexit never reaches the foreground
		// script.
		sub := s.sub()
		err := sub.runPipeline(ctx, st.Pipeline)
		_ = s.SetVar("!", expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(s.nextPID())})
		switch err.(type) {
		case nil, *ExitError, *ReturnError, *BreakError, *ContinueError, *ErrexitError:
			return nil
		default:
			return err
		}
	}
	if err := s.runPipeline(ctx, st.Pipeline); err != nil {
		return err
	}
	if st.Pipeline.Negated {
		suppressErrexit = true
	}
	if !suppressErrexit && s.SuppressErrexit == 0 && s.Options["errexit"] && s.Exit != 0 {
		return &ErrexitError{Code: s.Exit}
	}
	return nil
}

func (s *State) runPipeline(ctx context.Context, p *ast.Pipeline) error {
	n := len(p.Commands)
	if n == 0 {
		s.Exit = 0
		return nil
	}
	if n == 1 {
		err := s.runCommandNode(ctx, p.Commands[0])
		if err != nil {
			return err
		}
		if p.Negated {
			s.Exit = boolToExit(s.Exit != 0)
		}
		return nil
	}

	stages := make([]*State, n)
	readers := make([]io.Reader, n)
	writers := make([]io.Writer, n)
	pipeReaders := make([]*io.PipeReader, 0, n-1)
	for i := 0; i < n-1; i++ {
		pr, pw := io.Pipe()
		writers[i] = pw
		readers[i+1] = pr
		pipeReaders = append(pipeReaders, pr)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, cn := range p.Commands {
		stage := s.sub()
		if readers[i] != nil {
			stage.FDs[0] = fd{Reader: readers[i]}
		}
		if writers[i] != nil {
			w := writers[i]
			stage.FDs[1] = fd{Writer: w}
			if i < len(p.PipeStderr) && p.PipeStderr[i] {
				stage.FDs[2] = fd{Writer: w}
			}
		}
		stages[i] = stage
		wg.Add(1)
		go func(i int, cn *ast.CommandNode, stage *State) {
			defer wg.Done()
			errs[i] = stage.runCommandNode(ctx, cn)
			if pc, ok := writers[i].(*io.PipeWriter); ok {
				pc.Close()
			}
		}(i, cn, stage)
	}
	wg.Wait()
	for _, pr := range pipeReaders {
		pr.Close()
	}

	// Per spec.md's pipeline semantics, a multi-command pipeline catches
	// control-flow errors at each segment boundary (subshell-like); only a
	// genuine error (e.g. ExecutionLimitError) crosses the pipeline boundary.
	var fatal error
	for _, e := range errs {
		switch e.(type) {
		case nil, *ExitError, *ReturnError, *BreakError, *ContinueError, *ErrexitError:
		default:
			if fatal == nil {
				fatal = e
			}
		}
	}

	exit := stages[n-1].Exit
	if s.Options["pipefail"] {
		for i := n - 1; i >= 0; i-- {
			if stages[i].Exit != 0 {
				exit = stages[i].Exit
				break
			}
		}
	}
	if p.Negated {
		exit = boolToExit(exit != 0)
	}
	s.Exit = exit

	return fatal
}

// boolToExit converts a true/false shell condition into its exit status:
// true means success (status 0).
func boolToExit(success bool) int {
	if success {
		return 0
	}
	return 1
}

func (s *State) runCommandNode(ctx context.Context, cn *ast.CommandNode) error {
	restore, err := s.applyRedirects(ctx, cn.Redirections)
	if err != nil {
		s.Exit = 1
		fmt.Fprintln(s.Stderr, err)
		return nil
	}
	defer restore()

	switch c := cn.Command.(type) {
	case *ast.SimpleCommand:
		return s.runSimpleCommand(ctx, c)
	case *ast.If:
		return s.runIf(ctx, c)
	case *ast.For:
		return s.runFor(ctx, c)
	case *ast.CStyleFor:
		return s.runCStyleFor(ctx, c)
	case *ast.While:
		return s.runWhileUntil(ctx, c.Cond, c.Body, false)
	case *ast.Until:
		return s.runWhileUntil(ctx, c.Cond, c.Body, true)
	case *ast.Case:
		return s.runCase(ctx, c)
	case *ast.Subshell:
		// A subshell converts break/continue/exit/return into its own exit
		// status rather than letting them escape, per spec.md §7's
		// propagation policy; only genuine errors (e.g. ExecutionLimitError)
		// cross the boundary.
		sub := s.sub()
		err := sub.run(ctx, &ast.Script{Stmts: c.Body})
		s.Exit = sub.Exit
		switch err.(type) {
		case nil, *ExitError, *ReturnError, *BreakError, *ContinueError, *ErrexitError:
			return nil
		default:
			return err
		}
	case *ast.Group:
		return s.runStmts(ctx, c.Body)
	case *ast.FunctionDef:
		s.Funcs[c.Name] = c
		s.Exit = 0
		return nil
	case *ast.ArithmeticCommand:
		v, err := expand.Arith(ctx, s.expandConfig(ctx), c.X)
		if err != nil {
			s.Exit = 1
			return nil
		}
		s.Exit = boolToExit(v != 0)
		return nil
	case *ast.ConditionalCommand:
		ok, err := s.condEval(ctx, c.X)
		if err != nil {
			s.Exit = 2
			fmt.Fprintln(s.Stderr, err)
			return nil
		}
		s.Exit = boolToExit(ok)
		return nil
	case *ast.Coproc:
		// Real bidirectional pipes are out of scope (see DESIGN.md); run the
		// body as an ordinary group.
		if body, ok := c.Body.(*ast.Group); ok {
			return s.runStmts(ctx, body.Body)
		}
		return s.runCommandNode(ctx, &ast.CommandNode{Command: c.Body})
	default:
		return fmt.Errorf("interp: unhandled command node %T", c)
	}
}

func (s *State) runIf(ctx context.Context, n *ast.If) error {
	if err := s.runCondStmts(ctx, n.Cond); err != nil {
		return err
	}
	if s.Exit == 0 {
		return s.runStmts(ctx, n.Then)
	}
	if n.Else != nil {
		if n.Else.Cond == nil {
			return s.runStmts(ctx, n.Else.Then)
		}
		return s.runIf(ctx, n.Else)
	}
	s.Exit = 0
	return nil
}

func (s *State) runFor(ctx context.Context, n *ast.For) error {
	words := n.Words
	var items []string
	if !n.HasIn {
		items = append([]string(nil), s.Positional...)
	} else {
		fs, err := expand.Fields(ctx, s.expandConfig(ctx), words)
		if err != nil {
			return err
		}
		items = fs
	}
	s.LoopDepth++
	defer func() { s.LoopDepth-- }()
forLoop:
	for i, item := range items {
		if n.Select {
			fmt.Fprintf(s.Stdout, "%d) %s\n", i+1, item)
			continue
		}
		_ = s.SetVar(n.Name, expand.Variable{Set: true, Kind: expand.String, Str: item})
		if err := s.runLoopBody(ctx, n.Body); err != nil {
			switch action, rerr := loopSignal(err); action {
			case loopContinue:
				continue forLoop
			case loopBreak:
				if rerr != nil {
					return rerr
				}
				break forLoop
			default:
				return rerr
			}
		}
	}
	if n.Select {
		// Interactive REPL-style selection needs a real terminal; the
		// sandboxed executor only renders the menu (spec.md §1 excludes
		// interactive input), so select always exits after listing once.
		_ = s.SetVar("REPLY", expand.Variable{Set: true, Kind: expand.String, Str: ""})
	}
	s.Exit = 0
	return nil
}

func (s *State) runCStyleFor(ctx context.Context, n *ast.CStyleFor) error {
	cfg := s.expandConfig(ctx)
	if n.Init != nil {
		if _, err := expand.Arith(ctx, cfg, n.Init); err != nil {
			return err
		}
	}
	s.LoopDepth++
	defer func() { s.LoopDepth-- }()
cstyleLoop:
	for {
		if n.Cond != nil {
			v, err := expand.Arith(ctx, cfg, n.Cond)
			if err != nil {
				return err
			}
			if v == 0 {
				break
			}
		}
		if err := s.runLoopBody(ctx, n.Body); err != nil {
			switch action, rerr := loopSignal(err); action {
			case loopContinue:
				// fall through to the Update step below, matching bash's
				// C-style for (unlike for-in, `continue` still runs Update).
			case loopBreak:
				if rerr != nil {
					return rerr
				}
				break cstyleLoop
			default:
				return rerr
			}
		}
		if n.Update != nil {
			if _, err := expand.Arith(ctx, cfg, n.Update); err != nil {
				return err
			}
		}
	}
	s.Exit = 0
	return nil
}

func (s *State) runWhileUntil(ctx context.Context, cond, body []*ast.Stmt, until bool) error {
	s.LoopDepth++
	defer func() { s.LoopDepth-- }()
whileLoop:
	for {
		if err := s.runCondStmts(ctx, cond); err != nil {
			return err
		}
		ok := s.Exit == 0
		if until {
			ok = !ok
		}
		if !ok {
			break
		}
		if err := s.runLoopBody(ctx, body); err != nil {
			switch action, rerr := loopSignal(err); action {
			case loopContinue:
				continue whileLoop
			case loopBreak:
				if rerr != nil {
					return rerr
				}
				break whileLoop
			default:
				return rerr
			}
		}
	}
	s.Exit = 0
	return nil
}

// runLoopBody runs one loop iteration's body, used by for/while/until/
// C-style-for, all of which share the same break/continue unwinding rule.
func (s *State) runLoopBody(ctx context.Context, body []*ast.Stmt) error {
	return s.runStmts(ctx, body)
}

type loopAction int

const (
	loopPropagate loopAction = iota // a genuine error, not a loop-control signal
	loopContinue                    // absorb and resume at the next iteration
	loopBreak                       // stop this loop; propagate carries a decremented break/continue for an enclosing loop, or nil
)

// loopSignal interprets a control-flow error escaping a loop body. `break N`/
// `continue N` with N>1 stop this loop level (loopBreak) and hand the
// enclosing loop a decremented signal to interpret in turn; at N==1 they
// resolve to this loop's own continue/break.
func loopSignal(err error) (action loopAction, propagate error) {
	switch e := err.(type) {
	case *BreakError:
		if e.N > 1 {
			return loopBreak, &BreakError{N: e.N - 1}
		}
		return loopBreak, nil
	case *ContinueError:
		if e.N > 1 {
			return loopBreak, &ContinueError{N: e.N - 1}
		}
		return loopContinue, nil
	default:
		return loopPropagate, err
	}
}

func (s *State) runCase(ctx context.Context, n *ast.Case) error {
	cfg := s.expandConfig(ctx)
	word, err := expand.Literal(ctx, cfg, n.Word)
	if err != nil {
		return err
	}
	fallthroughNext := false
	for _, clause := range n.Clauses {
		matched := fallthroughNext
		if !matched {
			for _, pw := range clause.Patterns {
				pat, err := expand.ExpandPattern(ctx, cfg, pw)
				if err != nil {
					return err
				}
				if matchPattern(word, pat) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		if err := s.runStmts(ctx, clause.Body); err != nil {
			return err
		}
		switch clause.Term {
		case token.SEMIFALL:
			fallthroughNext = true
			continue
		case token.DSEMIFALL:
			fallthroughNext = false
			continue
		default:
			return nil
		}
	}
	s.Exit = 0
	return nil
}

func matchPattern(str, pat string) bool {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return str == pat
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return str == pat
	}
	return rx.MatchString(str)
}

func (s *State) runSimpleCommand(ctx context.Context, c *ast.SimpleCommand) error {
	cfg := s.expandConfig(ctx)

	if c.Name == nil {
		for _, a := range c.Assignments {
			if err := s.applyAssignment(ctx, a); err != nil {
				s.Exit = 1
				fmt.Fprintln(s.Stderr, err)
				return nil
			}
			if s.Tracer != nil {
				s.Tracer.assign(a.Name, s.Vars[a.Name].String())
			}
		}
		s.Exit = 0
		return nil
	}

	name, err := expand.Literal(ctx, cfg, c.Name)
	if err != nil {
		return err
	}
	args, err := expand.Fields(ctx, cfg, c.Args)
	if err != nil {
		return err
	}

	saved := map[string]string{}
	for _, a := range c.Assignments {
		val := ""
		if a.Value != nil {
			v, err := expand.Literal(ctx, cfg, a.Value)
			if err != nil {
				return err
			}
			val = v
		}
		saved[a.Name] = val
	}
	if s.CmdVars == nil {
		s.CmdVars = map[string]string{}
	}
	prevCmdVars := s.CmdVars
	s.CmdVars = saved
	defer func() { s.CmdVars = prevCmdVars }()

	if name == "" {
		s.Exit = 0
		return nil
	}

	if s.Tracer != nil {
		s.Tracer.call(name, args)
	}

	return s.callName(ctx, name, args)
}

// callName dispatches a resolved command name through functions, builtins,
// then the registry, per spec.md §4.4 step 6's lookup order.
func (s *State) callName(ctx context.Context, name string, args []string) error {
	if fn, ok := s.Funcs[name]; ok {
		return s.callFunc(ctx, fn, args)
	}
	if b, ok := s.Builtins[name]; ok {
		code, err := b.Run(ctx, s, args)
		s.Exit = code
		return err
	}
	if cmd, ok := s.Registry.Lookup(name); ok {
		res, err := cmd.Execute(ctx, args, s.commandContext())
		if err != nil {
			s.Exit = 1
			fmt.Fprintln(s.Stderr, err)
			return nil
		}
		s.Exit = res.ExitCode
		return nil
	}
	fmt.Fprintf(s.Stderr, "%s: command not found\n", name)
	s.Exit = 127
	return nil
}

func (s *State) callFunc(ctx context.Context, fn *ast.FunctionDef, args []string) error {
	savedPos := s.Positional
	s.Positional = args
	s.InFunc++
	s.pushFuncScope()

	err := s.runCommandNode(ctx, &ast.CommandNode{Command: fn.Body})

	s.popFuncScope()
	s.InFunc--
	s.Positional = savedPos

	if re, ok := err.(*ReturnError); ok {
		s.Exit = re.Code
		return nil
	}
	return err
}

// condEval evaluates a [[ ]] expression tree, per spec.md §4.4's
// conditional-command semantics.
func (s *State) condEval(ctx context.Context, x ast.CondExpr) (bool, error) {
	cfg := s.expandConfig(ctx)
	switch n := x.(type) {
	case *ast.CondWord:
		v, err := expand.Literal(ctx, cfg, n.X)
		if err != nil {
			return false, err
		}
		return v != "", nil
	case *ast.CondNot:
		v, err := s.condEval(ctx, n.X)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *ast.CondAnd:
		a, err := s.condEval(ctx, n.X)
		if err != nil || !a {
			return false, err
		}
		return s.condEval(ctx, n.Y)
	case *ast.CondOr:
		a, err := s.condEval(ctx, n.X)
		if err != nil {
			return false, err
		}
		if a {
			return true, nil
		}
		return s.condEval(ctx, n.Y)
	case *ast.CondGroup:
		return s.condEval(ctx, n.X)
	case *ast.CondUnary:
		v, err := expand.Literal(ctx, cfg, n.X)
		if err != nil {
			return false, err
		}
		return s.condUnary(n.Op, v), nil
	case *ast.CondBinary:
		a, err := expand.Literal(ctx, cfg, n.X)
		if err != nil {
			return false, err
		}
		if n.Op == token.TREMATCH {
			b, err := expand.Literal(ctx, cfg, n.Y)
			if err != nil {
				return false, err
			}
			rx, err := regexp.Compile(b)
			if err != nil {
				return false, nil
			}
			return rx.MatchString(a), nil
		}
		var b string
		if n.Regex {
			b, err = expand.Literal(ctx, cfg, n.Y)
		} else if n.Op == token.EQL || n.Op == token.NEQ {
			pat, perr := expand.ExpandPattern(ctx, cfg, n.Y)
			if perr != nil {
				return false, perr
			}
			matched := matchPattern(a, pat)
			if n.Op == token.NEQ {
				matched = !matched
			}
			return matched, nil
		} else {
			b, err = expand.Literal(ctx, cfg, n.Y)
		}
		if err != nil {
			return false, err
		}
		return s.condBinary(n.Op, a, b), nil
	default:
		return false, fmt.Errorf("interp: unhandled cond node %T", x)
	}
}

func (s *State) condUnary(op token.Kind, v string) bool {
	switch op {
	case token.TEMPSTR:
		return v == ""
	case token.TNEMPSTR:
		return v != ""
	case token.TEXISTS, token.TREGFILE, token.TDIRECT, token.TREAD, token.TWRITE, token.TEXEC, token.TNOEMPTY:
		full := s.FS.ResolvePath(s.Dir, v)
		info, err := s.FS.Stat(full)
		if err != nil {
			return false
		}
		switch op {
		case token.TDIRECT:
			return info.IsDir
		case token.TREGFILE:
			return !info.IsDir
		case token.TNOEMPTY:
			return info.Size > 0
		default:
			return true
		}
	case token.TVARSET:
		return s.GetVar(v).IsSet()
	case token.TOPTSET:
		return s.Options[v]
	default:
		return false
	}
}

func (s *State) condBinary(op token.Kind, a, b string) bool {
	switch op {
	case token.EQL:
		return a == b
	case token.NEQ:
		return a != b
	case token.TEQL, token.TNEQ, token.TLEQ, token.TGEQ, token.TLSS, token.TGTR:
		na, _ := strconv.ParseInt(a, 0, 64)
		nb, _ := strconv.ParseInt(b, 0, 64)
		switch op {
		case token.TEQL:
			return na == nb
		case token.TNEQ:
			return na != nb
		case token.TLEQ:
			return na <= nb
		case token.TGEQ:
			return na >= nb
		case token.TLSS:
			return na < nb
		default:
			return na > nb
		}
	case token.LSS:
		return a < b
	case token.GTR:
		return a > b
	default:
		return false
	}
}

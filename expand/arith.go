package expand

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

// Arith evaluates an arithmetic expression against cfg's environment, per
// spec.md §4.3 "Arithmetic evaluator". Binary `/` and `%` by zero yield 0;
// the assignment forms `/=` and `%=` by zero return an error instead, which
// the `(( ))` command turns into exit status 1.
func Arith(ctx context.Context, cfg *Config, e ast.ArithExpr) (int64, error) {
	switch n := e.(type) {
	case *ast.ArithNumber:
		return parseArithLiteral(n.Value), nil
	case *ast.ArithVariable:
		return arithVarValue(cfg, n.Name), nil
	case *ast.ArithArrayElement:
		idx, err := Arith(ctx, cfg, n.Index)
		if err != nil {
			return 0, err
		}
		vr := cfg.Env.Get(n.Name)
		switch vr.Kind {
		case Indexed:
			return parseArithLiteral(vr.List[int(idx)]), nil
		case Associative:
			return parseArithLiteral(vr.Map[strconv.FormatInt(idx, 10)]), nil
		default:
			return 0, nil
		}
	case *ast.ArithGroup:
		return Arith(ctx, cfg, n.X)
	case *ast.ArithUnary:
		return arithUnary(ctx, cfg, n)
	case *ast.ArithBinary:
		return arithBinary(ctx, cfg, n)
	case *ast.ArithTernary:
		cond, err := Arith(ctx, cfg, n.Cond)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			return Arith(ctx, cfg, n.Then)
		}
		return Arith(ctx, cfg, n.Else)
	case *ast.ArithAssign:
		return arithAssign(ctx, cfg, n)
	case *ast.ArithCommandSubst:
		if cfg.ExecCommandSubst == nil {
			return 0, nil
		}
		out, _, err := cfg.ExecCommandSubst(ctx, n.Body)
		if err != nil {
			return 0, err
		}
		return parseArithLiteral(strings.TrimRight(out, "\n")), nil
	default:
		return 0, fmt.Errorf("expand: unhandled arithmetic node %T", e)
	}
}

// arithVarValue resolves a bare name in arithmetic context: its value is
// re-evaluated as arithmetic if it in turn names a variable (so `y=5; x=y;
// echo $((x))` prints 5), bounded against reference loops.
func arithVarValue(cfg *Config, name string) int64 {
	if name == "true" {
		return 1
	}
	if name == "false" {
		return 0
	}
	vr := cfg.Env.Get(name)
	_, vr = Resolve(cfg.Env, vr)
	str := vr.String()
	for i := 0; i < maxNameRefDepth && isValidName(str); i++ {
		next := cfg.Env.Get(str)
		if !next.IsSet() {
			break
		}
		str = next.String()
	}
	return parseArithLiteral(str)
}

func isValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, b := range []byte(s) {
		if b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
			continue
		}
		if i > 0 && b >= '0' && b <= '9' {
			continue
		}
		return false
	}
	return true
}

// parseArithLiteral parses a decimal, hex (0x), or octal (leading 0)
// integer literal, or a single-quoted character constant, defaulting to 0
// on any parse failure per spec.md §9's documented open question.
func parseArithLiteral(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if len(s) >= 3 && s[0] == '\'' {
		return int64(s[1])
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	var n int64
	var err error
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err = strconv.ParseInt(s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		n, err = strconv.ParseInt(s[1:], 8, 64)
	default:
		n, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

func oneIf(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func arithUnary(ctx context.Context, cfg *Config, n *ast.ArithUnary) (int64, error) {
	if n.Op == token.INC || n.Op == token.DEC {
		name, _ := arithTargetName(n.X)
		old := arithVarValue(cfg, name)
		val := old
		if n.Op == token.INC {
			val++
		} else {
			val--
		}
		if err := arithStore(cfg, n.X, val); err != nil {
			return 0, err
		}
		if n.Post {
			return old, nil
		}
		return val, nil
	}
	val, err := Arith(ctx, cfg, n.X)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.BANG:
		return oneIf(val == 0), nil
	case token.CARET, token.XOR: // the arithmetic parser emits XOR for prefix `~`
		return ^val, nil
	case token.ADD:
		return val, nil
	default: // token.SUB
		return -val, nil
	}
}

func arithTargetName(e ast.ArithExpr) (string, ast.ArithExpr) {
	switch x := e.(type) {
	case *ast.ArithVariable:
		return x.Name, x
	case *ast.ArithArrayElement:
		return x.Name, x
	default:
		return "", e
	}
}

func arithStore(cfg *Config, target ast.ArithExpr, val int64) error {
	str := strconv.FormatInt(val, 10)
	switch x := target.(type) {
	case *ast.ArithVariable:
		return cfg.Env.Set(x.Name, Variable{Set: true, Kind: String, Str: str})
	case *ast.ArithArrayElement:
		vr := cfg.Env.Get(x.Name)
		idx, err := Arith(context.Background(), cfg, x.Index)
		if err != nil {
			return err
		}
		if vr.Kind != Indexed {
			vr = Variable{Set: true, Kind: Indexed, List: map[int]string{}}
		}
		if vr.List == nil {
			vr.List = map[int]string{}
		}
		vr.List[int(idx)] = str
		return cfg.Env.Set(x.Name, vr)
	default:
		return fmt.Errorf("expand: invalid arithmetic assignment target")
	}
}

func arithAssign(ctx context.Context, cfg *Config, n *ast.ArithAssign) (int64, error) {
	name, target := arithTargetName(n.Target)
	old := arithVarValue(cfg, name)
	arg, err := Arith(ctx, cfg, n.Value)
	if err != nil {
		return 0, err
	}
	val := old
	switch n.Op {
	case token.ASSIGN:
		val = arg
	case token.ADDASSGN:
		val += arg
	case token.SUBASSGN:
		val -= arg
	case token.MULASSGN:
		val *= arg
	case token.QUOASSGN:
		if arg == 0 {
			return 0, fmt.Errorf("expand: division by zero")
		}
		val /= arg
	case token.REMASSGN:
		if arg == 0 {
			return 0, fmt.Errorf("expand: division by zero")
		}
		val %= arg
	case token.ANDASSGN:
		val &= arg
	case token.ORASSGN:
		val |= arg
	case token.XORASSGN:
		val ^= arg
	case token.SHLASSGN:
		val <<= uint(arg)
	case token.SHRASSGN:
		val >>= uint(arg)
	}
	if err := arithStore(cfg, target, val); err != nil {
		return 0, err
	}
	return val, nil
}

func intPow(a, b int64) int64 {
	var p int64 = 1
	for b > 0 {
		if b&1 != 0 {
			p *= a
		}
		b >>= 1
		a *= a
	}
	return p
}

func arithBinary(ctx context.Context, cfg *Config, n *ast.ArithBinary) (int64, error) {
	x, err := Arith(ctx, cfg, n.X)
	if err != nil {
		return 0, err
	}
	// Short-circuit && and || without evaluating Y unless needed.
	switch n.Op {
	case token.LAND:
		if x == 0 {
			return 0, nil
		}
		y, err := Arith(ctx, cfg, n.Y)
		if err != nil {
			return 0, err
		}
		return oneIf(y != 0), nil
	case token.LOR:
		if x != 0 {
			return 1, nil
		}
		y, err := Arith(ctx, cfg, n.Y)
		if err != nil {
			return 0, err
		}
		return oneIf(y != 0), nil
	}
	y, err := Arith(ctx, cfg, n.Y)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return 0, nil
		}
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, nil
		}
		return x % y, nil
	case token.POW:
		return intPow(x, y), nil
	case token.EQL:
		return oneIf(x == y), nil
	case token.NEQ:
		return oneIf(x != y), nil
	case token.LEQ:
		return oneIf(x <= y), nil
	case token.GEQ:
		return oneIf(x >= y), nil
	case token.TLSS, token.LSS:
		return oneIf(x < y), nil
	case token.TGTR, token.GTR:
		return oneIf(x > y), nil
	case token.XOR:
		return x ^ y, nil
	case token.AND:
		return x & y, nil
	case token.OR:
		return x | y, nil
	case token.SHL:
		return x << uint(y), nil
	case token.SHR:
		return x >> uint(y), nil
	case token.COMMA:
		return y, nil
	default:
		return 0, fmt.Errorf("expand: unhandled arithmetic operator %v", n.Op)
	}
}

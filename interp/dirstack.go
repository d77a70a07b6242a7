package interp

import (
	"context"
	"fmt"
	"strings"
)

// dirstackBuiltins implements pushd/popd/dirs, ported from the teacher's
// interp/builtin.go pushd/popd/dirs cases: dirs prints the stack
// newest-first; pushd/popd accept an optional leading -n to suppress the
// actual cd; pushd with no args swaps the top two entries.
func dirstackBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"dirs":  BuiltinFunc(builtinDirs),
		"pushd": BuiltinFunc(builtinPushd),
		"popd":  BuiltinFunc(builtinPopd),
	}
}

func builtinDirs(ctx context.Context, s *State, args []string) (int, error) {
	entries := append([]string{s.Dir}, s.DirStack...)
	fmt.Fprintln(s.Stdout, strings.Join(entries, " "))
	return 0, nil
}

func builtinPushd(ctx context.Context, s *State, args []string) (int, error) {
	noCd := false
	if len(args) > 0 && args[0] == "-n" {
		noCd = true
		args = args[1:]
	}

	switch len(args) {
	case 0:
		if len(s.DirStack) == 0 {
			fmt.Fprintln(s.Stderr, "pushd: no other directory")
			return 1, nil
		}
		top := s.DirStack[0]
		s.DirStack[0] = s.Dir
		if !noCd {
			s.Dir = top
		}
	case 1:
		target := s.FS.ResolvePath(s.Dir, args[0])
		if noCd {
			s.DirStack = append([]string{target}, s.DirStack...)
		} else {
			s.DirStack = append([]string{s.Dir}, s.DirStack...)
			s.Dir = target
		}
	default:
		fmt.Fprintln(s.Stderr, "pushd: too many arguments")
		return 2, nil
	}
	return builtinDirs(ctx, s, nil)
}

func builtinPopd(ctx context.Context, s *State, args []string) (int, error) {
	noCd := false
	if len(args) > 0 && args[0] == "-n" {
		noCd = true
		args = args[1:]
	}
	if len(args) > 0 {
		fmt.Fprintln(s.Stderr, "popd: invalid argument")
		return 2, nil
	}
	if len(s.DirStack) == 0 {
		fmt.Fprintln(s.Stderr, "popd: directory stack empty")
		return 1, nil
	}
	top := s.DirStack[0]
	s.DirStack = s.DirStack[1:]
	if noCd {
		if len(s.DirStack) > 0 {
			s.DirStack[0] = top
		}
	} else {
		s.Dir = top
	}
	return builtinDirs(ctx, s, nil)
}

package interp

import (
	"context"
	"sort"
	"strconv"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/expand"
)

// savedVar records a variable's value before a `local` declaration
// overwrote it, so it can be restored when the function returns. Had is false when
// the name had no previous binding at all (restore deletes it).
type savedVar struct {
	name string
	had  bool
	val  expand.Variable
}

// GetVar looks up a variable by name, honoring the special names that
// aren't ordinary Vars entries.
func (s *State) GetVar(name string) expand.Variable {
	switch name {
	case "?":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(s.Exit)}
	case "$":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(s.pidCounter)}
	case "RANDOM":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.FormatInt(s.randomInt(), 10)}
	case "SECONDS":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(int(s.elapsed()))}
	case "PWD":
		return expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: s.Dir}
	}
	if v, ok := s.CmdVars[name]; ok {
		return expand.Variable{Set: true, Kind: expand.String, Str: v}
	}
	return s.Vars[name]
}

// SetVar assigns vr to name, enforcing the readonly invariant per spec.md
// §4.4's assignment rules.
func (s *State) SetVar(name string, vr expand.Variable) error {
	if old, ok := s.Vars[name]; ok && old.ReadOnly {
		return &BadSubstitutionError{Message: name + ": readonly variable"}
	}
	if old, ok := s.Vars[name]; ok {
		vr.Exported = vr.Exported || old.Exported
	}
	vr.Set = true
	s.Vars[name] = vr
	if name == "PWD" {
		s.Dir = vr.Str
	}
	return nil
}

// save snapshots the current bindings of names, for later restore when a
// local-variable scope ends. (Prefix assignments live in CmdVars instead.)
func (s *State) save(names ...string) []savedVar {
	out := make([]savedVar, len(names))
	for i, n := range names {
		v, ok := s.Vars[n]
		out[i] = savedVar{name: n, had: ok, val: v}
	}
	return out
}

func (s *State) restore(saved []savedVar) {
	for _, sv := range saved {
		if sv.had {
			s.Vars[sv.name] = sv.val
		} else {
			delete(s.Vars, sv.name)
		}
	}
}

// declareLocal records name as local to the current function invocation
// (per the `local` builtin), saving its previous binding for restoration on
// return. Outside a function body it simply assigns the global variable.
func (s *State) declareLocal(name string, vr expand.Variable) {
	if len(s.localStack) == 0 {
		s.Vars[name] = vr
		return
	}
	frame := s.localStack[len(s.localStack)-1]
	frame = append(frame, s.save(name)...)
	s.localStack[len(s.localStack)-1] = frame
	s.Vars[name] = vr
}

func (s *State) pushFuncScope() {
	s.localStack = append(s.localStack, nil)
}

func (s *State) popFuncScope() {
	n := len(s.localStack)
	if n == 0 {
		return
	}
	frame := s.localStack[n-1]
	s.localStack = s.localStack[:n-1]
	// Restore in reverse so repeated `local x` within one function unwinds
	// to the original pre-function value, not an intermediate one.
	for i := len(frame) - 1; i >= 0; i-- {
		sv := frame[i]
		if sv.had {
			s.Vars[sv.name] = sv.val
		} else {
			delete(s.Vars, sv.name)
		}
	}
}

// applyAssignment evaluates and stores one `name=value`/array assignment,
// per spec.md §4.3's non-field-splitting assignment-RHS rule.
func (s *State) applyAssignment(ctx context.Context, a *ast.Assignment) error {
	cfg := s.expandConfig(ctx)

	if a.Index != nil {
		return s.assignIndexed(ctx, cfg, a)
	}

	if a.Array != nil {
		return s.assignArray(ctx, cfg, a)
	}

	val := ""
	if a.Value != nil {
		v, err := expand.Literal(ctx, cfg, a.Value)
		if err != nil {
			return err
		}
		val = v
	}

	existing, hasExisting := s.Vars[a.Name]
	if hasExisting && a.Append {
		switch existing.Kind {
		case expand.Indexed:
			n := 0
			for k := range existing.List {
				if k >= n {
					n = k + 1
				}
			}
			existing.List[n] = val
			return s.SetVar(a.Name, existing)
		case expand.Associative:
			existing.Map["0"] = existing.Map["0"] + val
			return s.SetVar(a.Name, existing)
		default:
			val = existing.Str + val
		}
		return s.SetVar(a.Name, expand.Variable{Kind: expand.String, Str: val})
	}

	// A plain scalar assignment to an existing array only replaces index 0
	// (or key "0"); the rest of the array survives, matching bash's "an
	// array's scalar binding does not coexist with array elements" rule.
	switch existing.Kind {
	case expand.Indexed:
		existing.List[0] = val
		return s.SetVar(a.Name, existing)
	case expand.Associative:
		existing.Map["0"] = val
		return s.SetVar(a.Name, existing)
	}
	return s.SetVar(a.Name, expand.Variable{Kind: expand.String, Str: val})
}

func (s *State) assignIndexed(ctx context.Context, cfg *expand.Config, a *ast.Assignment) error {
	existing := s.Vars[a.Name]
	val := ""
	if a.Value != nil {
		v, err := expand.Literal(ctx, cfg, a.Value)
		if err != nil {
			return err
		}
		val = v
	}
	if existing.Kind == expand.Associative {
		key, err := expand.Literal(ctx, cfg, a.Index)
		if err != nil {
			return err
		}
		if existing.Map == nil {
			existing.Map = map[string]string{}
		}
		if a.Append {
			val = existing.Map[key] + val
		}
		existing.Map[key] = val
		return s.SetVar(a.Name, existing)
	}
	idxWord, err := expand.Literal(ctx, cfg, a.Index)
	if err != nil {
		return err
	}
	idx, _ := strconv.Atoi(idxWord)
	if existing.Kind != expand.Indexed {
		existing = expand.Variable{Kind: expand.Indexed, List: map[int]string{}}
	}
	if existing.List == nil {
		existing.List = map[int]string{}
	}
	if a.Append {
		val = existing.List[idx] + val
	}
	existing.List[idx] = val
	return s.SetVar(a.Name, existing)
}

func (s *State) assignArray(ctx context.Context, cfg *expand.Config, a *ast.Assignment) error {
	existing := s.Vars[a.Name]
	assoc := existing.Kind == expand.Associative
	for _, elem := range a.Array {
		if elem.Index != nil {
			if lit, ok := elem.Index.Lit(); ok {
				if _, err := strconv.Atoi(lit); err != nil {
					assoc = true
				}
			}
		}
	}
	if assoc {
		m := map[string]string{}
		if a.Append && existing.Kind == expand.Associative {
			for k, v := range existing.Map {
				m[k] = v
			}
		}
		next := 0
		for _, elem := range a.Array {
			v, err := expand.Literal(ctx, cfg, elem.Value)
			if err != nil {
				return err
			}
			key := strconv.Itoa(next)
			if elem.Index != nil {
				k, err := expand.Literal(ctx, cfg, elem.Index)
				if err != nil {
					return err
				}
				key = k
			}
			m[key] = v
			next++
		}
		return s.SetVar(a.Name, expand.Variable{Kind: expand.Associative, Map: m})
	}

	list := map[int]string{}
	if a.Append && existing.Kind == expand.Indexed {
		for k, v := range existing.List {
			list[k] = v
		}
	}
	next := 0
	for _, elem := range a.Array {
		v, err := expand.Literal(ctx, cfg, elem.Value)
		if err != nil {
			return err
		}
		idx := next
		if elem.Index != nil {
			iw, err := expand.Literal(ctx, cfg, elem.Index)
			if err != nil {
				return err
			}
			idx, _ = strconv.Atoi(iw)
		}
		list[idx] = v
		next = idx + 1
	}
	return s.SetVar(a.Name, expand.Variable{Kind: expand.Indexed, List: list})
}

// namesByPrefix lists, sorted, the names in s.Vars that start with prefix.
// Special names served by GetVar (`?`, `$`, RANDOM, SECONDS, PWD) and
// prefix assignments in CmdVars are not included.
func (s *State) namesByPrefix(prefix string) []string {
	var names []string
	for name := range s.Vars {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

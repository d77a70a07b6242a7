package expand

import "strings"

// ValueKind tags which field of a Variable holds its value, mirroring the
// teacher's expand.ValueKind but collapsed to the shapes spec.md §3's shell
// state actually needs (scalar, indexed array, associative array, nameref).
type ValueKind uint8

const (
	Unknown ValueKind = iota
	String
	NameRef
	Indexed
	Associative
)

// Variable is a resolved shell variable, passed across the Environ boundary
// so the expansion engine never needs to know how interp.State stores it.
type Variable struct {
	Set      bool
	Exported bool
	ReadOnly bool
	Integer  bool

	Kind ValueKind
	Str  string            // String or NameRef
	List map[int]string    // Indexed: sparse, absent indices read as ""
	Map  map[string]string // Associative
}

func (v Variable) IsSet() bool { return v.Set }

// String renders the variable the way unquoted `$x` does: the scalar value,
// or element 0 of an indexed array, or empty for an associative array.
func (v Variable) String() string {
	switch v.Kind {
	case String, NameRef:
		return v.Str
	case Indexed:
		return v.List[0]
	default:
		return ""
	}
}

// maxNameRefDepth bounds nameref-chasing, guarding against reference loops.
const maxNameRefDepth = 100

// Environ fetches variables by name and iterates over all set ones.
type Environ interface {
	Get(name string) Variable
	Each(func(name string, vr Variable) bool)
}

// WriteEnviron extends Environ with assignment, used by the side-effecting
// parameter-expansion operators (`${x:=w}`) and the arithmetic evaluator's
// assignment operators.
type WriteEnviron interface {
	Environ
	Set(name string, vr Variable) error
}

// Resolve follows a chain of NameRef variables to the variable they
// ultimately name.
func Resolve(env Environ, v Variable) (string, Variable) {
	name := ""
	for i := 0; i < maxNameRefDepth; i++ {
		if v.Kind != NameRef {
			return name, v
		}
		name = v.Str
		v = env.Get(name)
	}
	return name, v
}

// namesByPrefix lists variable names starting with prefix, for
// `${!prefix*}`/`${!prefix@}`. It skips names containing "__", the
// separator bash's own array-storage encoding would otherwise leak, even
// though this module stores arrays structurally rather than under mangled
// keys.
func namesByPrefix(env Environ, prefix string) []string {
	var names []string
	env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) && !strings.Contains(name, "__") {
			names = append(names, name)
		}
		return true
	})
	return names
}

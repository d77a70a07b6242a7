// Package vfs defines the virtual filesystem interface spec.md §6 names as
// an external collaborator ("exists, stat, readFile, writeFile,
// resolvePath"), plus an in-memory implementation (memfs.go) for sandboxed
// execution and an optional host-backed one (hostfs.go) for trusted callers.
package vfs

import "errors"

// ErrNotExist reports a missing path, mirroring os.ErrNotExist so callers
// can use errors.Is across either FS implementation.
var ErrNotExist = errors.New("vfs: no such file or directory")

// ErrIsDir and ErrNotDir report shape mismatches between the caller's
// expectation and what resides at a path.
var (
	ErrIsDir  = errors.New("vfs: is a directory")
	ErrNotDir = errors.New("vfs: not a directory")
)

// FileInfo is the subset of stat(2) metadata the interpreter's builtins
// (test operators, `stat`, `ls`-like commands) need.
type FileInfo struct {
	IsDir bool
	Mode  uint32
	Size  int64
}

// FS is the filesystem interface consumed by the interpreter and its
// registry of commands, per spec.md §6. resolvePath must not touch the
// backing store: it is pure path arithmetic (collapsing "." and "..").
type FS interface {
	Exists(path string) bool
	Stat(path string) (FileInfo, error)
	ReadFile(path string) (string, error)
	WriteFile(path string, content string, append bool) error
	ResolvePath(base, target string) string

	// ReadDir lists the immediate entries of a directory, used by the glob
	// expander (expand/glob.go) to enumerate candidates; it is not named in
	// spec.md's filesystem contract but is required to implement §4.5
	// without assuming a real OS directory walk is available.
	ReadDir(path string) ([]string, error)

	// Mkdir and Remove back the `mkdir`/`rm`/`cd` builtin contracts (out of
	// scope individually per spec.md §1, but the vfs must expose mutation
	// primitives for whichever registry entries a host wires in).
	Mkdir(path string) error
	Remove(path string) error
}

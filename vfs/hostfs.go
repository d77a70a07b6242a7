package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"
)

// HostFS backs the interpreter with the real filesystem, rooted at Root, for
// trusted hosts that intentionally opt out of the sandbox. Every path is
// resolved relative to Root before touching the OS, the same jailing trick
// the teacher's own formatter entry points rely on when walking a tree.
type HostFS struct {
	Root string
}

// NewHostFS returns a FS rooted at root. root must already exist.
func NewHostFS(root string) *HostFS {
	return &HostFS{Root: root}
}

func (h *HostFS) real(p string) string {
	return filepath.Join(h.Root, filepath.FromSlash(h.ResolvePath("/", p)))
}

func (h *HostFS) ResolvePath(base, target string) string {
	return (&MemFS{}).ResolvePath(base, target)
}

func (h *HostFS) Exists(p string) bool {
	_, err := os.Stat(h.real(p))
	return err == nil
}

func (h *HostFS) Stat(p string) (FileInfo, error) {
	info, err := os.Stat(h.real(p))
	if err != nil {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return FileInfo{IsDir: info.IsDir(), Mode: uint32(info.Mode()), Size: info.Size()}, nil
}

func (h *HostFS) ReadFile(p string) (string, error) {
	data, err := os.ReadFile(h.real(p))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return string(data), nil
}

// WriteFile uses renameio for a truncating write (atomic rename into place,
// so a crash mid-write never leaves a half-written file visible), matching
// the teacher's own use of renameio for its formatter's in-place rewrites.
// An append write has no atomic-rename equivalent and falls back to a
// regular OpenFile.
func (h *HostFS) WriteFile(p string, content string, append bool) error {
	real := h.real(p)
	if append {
		f, err := os.OpenFile(real, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteString(content)
		return err
	}
	return renameio.WriteFile(real, []byte(content), 0o644)
}

func (h *HostFS) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(h.real(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (h *HostFS) Mkdir(p string) error {
	return os.Mkdir(h.real(p), 0o755)
}

func (h *HostFS) Remove(p string) error {
	return os.Remove(h.real(p))
}

package expand

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sandboshell/sandboshell/pattern"
	"github.com/sandboshell/sandboshell/vfs"
)

func mode(cfg *Config) pattern.Mode {
	m := pattern.Filenames
	if cfg.ExtGlob {
		m |= pattern.ExtGlob
	}
	return m
}

// expandGlobField runs the pathname-expansion phase (spec.md §4.3/§4.5) on
// one already-split field's raw pattern text. rawPattern carries quoted
// segments pre-escaped by quoteMetaLiteral and unquoted Glob segments raw, so
// a field that was entirely quoted never matches doublestar's metacharacters
// and returns didGlob=false.
func expandGlobField(cfg *Config, rawPattern string) (matches []string, didGlob bool, err error) {
	if cfg.NoGlob || !pattern.HasMeta(rawPattern, mode(cfg)) {
		return nil, false, nil
	}

	pat := rawPattern
	if !cfg.GlobStar {
		pat = strings.ReplaceAll(pat, "**", "*")
	}

	dir := cfg.CWD
	if dir == "" {
		dir = "/"
	}
	rel := pat
	if strings.HasPrefix(pat, "/") {
		dir = "/"
		rel = strings.TrimPrefix(pat, "/")
	}

	candidates, err := walkFS(cfg.FS, dir, cfg.DotGlob)
	if err != nil {
		return nil, false, err
	}

	prefix := strings.TrimSuffix(dir, "/")
	var out []string
	for _, full := range candidates {
		candidate := strings.TrimPrefix(full, prefix+"/")
		if prefix == "" || prefix == "/" {
			candidate = strings.TrimPrefix(full, "/")
		}
		ok, err := doublestar.Match(rel, candidate)
		if err != nil || !ok {
			continue
		}
		if strings.HasPrefix(pat, "/") {
			out = append(out, "/"+candidate)
		} else {
			out = append(out, candidate)
		}
	}
	sort.Strings(out)

	if len(out) == 0 {
		switch {
		case cfg.FailGlob:
			return nil, false, &GlobError{Pattern: rawPattern}
		case cfg.NullGlob:
			return []string{}, true, nil
		default:
			return nil, false, nil
		}
	}
	return out, true, nil
}

// walkFS lists every path under root (relative descendants included),
// fanning subdirectory reads out concurrently via errgroup since the
// filesystem backing a sandboxed run may be a real, latency-bearing HostFS.
func walkFS(fs vfs.FS, root string, dotglob bool) ([]string, error) {
	var mu sync.Mutex
	var results []string

	var walk func(ctx context.Context, dir string) error
	walk = func(ctx context.Context, dir string) error {
		names, err := fs.ReadDir(dir)
		if err != nil {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range names {
			name := name
			if !dotglob && strings.HasPrefix(name, ".") {
				continue
			}
			full := path.Join(dir, name)
			mu.Lock()
			results = append(results, full)
			mu.Unlock()

			info, statErr := fs.Stat(full)
			if statErr == nil && info.IsDir {
				g.Go(func() error {
					return walk(gctx, full)
				})
			}
		}
		return g.Wait()
	}

	if err := walk(context.Background(), root); err != nil {
		return nil, err
	}
	return results, nil
}

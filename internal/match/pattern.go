// Package match compiles path globs with globstar semantics and expands them
// against the filesystem.
//
// A "**" path segment matches zero or more directories, so "sass/**/*.scss"
// matches both "sass/style.scss" and "sass/base/_reset.scss".
package match

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

const metaChars = "*?[{"

// Pattern is a compiled glob anchored at an absolute base directory.
type Pattern struct {
	raw  string
	base string
	g    glob.Glob
}

// Compile makes pattern absolute and compiles it.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, errors.New("empty glob pattern")
	}

	base := staticBase(pattern)
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving base of %q: %w", pattern, err)
	}

	rest := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(pattern)), filepath.ToSlash(filepath.Clean(base)))
	rest = strings.TrimPrefix(rest, "/")

	// The base is literal; only the rest of the pattern is glob syntax.
	full := glob.QuoteMeta(filepath.ToSlash(absBase))
	if rest != "" {
		full = strings.TrimSuffix(full, "/") + "/" + rest
	}

	g, err := glob.Compile(expandGlobstar(full), '/')
	if err != nil {
		return nil, fmt.Errorf("compiling glob %q: %w", pattern, err)
	}

	return &Pattern{raw: pattern, base: absBase, g: g}, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as given to Compile.
func (p *Pattern) String() string { return p.raw }

// Base returns the absolute directory that holds every possible match.
func (p *Pattern) Base() string { return p.base }

// Match reports whether path (absolute or relative to the working directory)
// matches the pattern.
func (p *Pattern) Match(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return p.g.Match(filepath.ToSlash(abs))
}

// Rel returns path relative to the pattern base.
func (p *Pattern) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Rel(p.base, abs)
}

// Expand walks the base directory and returns the matching regular files,
// sorted. A missing base directory yields no files and no error.
func (p *Pattern) Expand() ([]string, error) {
	var files []string

	err := filepath.WalkDir(p.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if p.g.Match(filepath.ToSlash(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("expanding %q: %w", p.raw, err)
	}

	sort.Strings(files)
	return files, nil
}

// Exists reports whether the base directory exists.
func (p *Pattern) Exists() bool {
	info, err := os.Stat(p.base)
	return err == nil && info.IsDir()
}

// staticBase returns the longest leading directory of pattern that contains
// no glob metacharacters. A segment with metacharacters that names an
// existing directory, such as a project checked out under "site [v2]", is
// taken literally.
func staticBase(pattern string) string {
	clean := filepath.Clean(pattern)
	parts := strings.Split(filepath.ToSlash(clean), "/")

	var static []string
	for i, part := range parts {
		if strings.ContainsAny(part, metaChars) {
			candidate := filepath.FromSlash(strings.Join(append(static, part), "/"))
			if info, err := os.Stat(candidate); i == len(parts)-1 || err != nil || !info.IsDir() {
				break
			}
		}
		static = append(static, part)
	}

	if len(static) == len(parts) {
		// No metacharacters: the pattern names a file, watch its directory.
		return filepath.Dir(clean)
	}
	if len(static) == 0 {
		return "."
	}
	base := strings.Join(static, "/")
	if base == "" {
		return "/"
	}
	return filepath.FromSlash(base)
}

// expandGlobstar rewrites "/**/" so it also matches a single separator, and a
// leading "**/" so it also matches nothing.
func expandGlobstar(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "/**/", "{/,/**/}")
	if strings.HasPrefix(pattern, "**/") {
		pattern = "{,**/}" + strings.TrimPrefix(pattern, "**/")
	}
	return pattern
}

package toolchain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aristath/assetpipe/internal/match"
)

// globRule matches an @use, @forward or @import whose URL holds a glob, e.g.
// `@use "foundation/*";` or `@forward "object/**/*" show button;`.
var globRule = regexp.MustCompile(`(?m)^([ \t]*)@(use|forward|import)[ \t]+(["'])([^"'\n]*[*?\[{][^"'\n]*)(["'])([^;\n]*);`)

var sassExts = []string{".scss", ".sass", ".css"}

// ExpandGlobImports rewrites glob rules in src into one rule per matching
// stylesheet. Globs resolve against the entry's directory first, then each
// load path in order; the first root with matches wins. Expanded rules stay on
// the original line so reported line numbers are unchanged. The second result
// reports whether anything was rewritten.
func ExpandGlobImports(entry string, src []byte, loadPaths []string) ([]byte, bool, error) {
	roots := append([]string{filepath.Dir(entry)}, loadPaths...)
	self, _ := filepath.Abs(entry)

	var expandErr error
	changed := false
	out := globRule.ReplaceAllFunc(src, func(rule []byte) []byte {
		if expandErr != nil {
			return rule
		}
		m := globRule.FindSubmatch(rule)
		indent, keyword, url, tail := string(m[1]), string(m[2]), string(m[4]), string(m[6])

		urls, err := resolveGlob(url, roots, self)
		if err != nil {
			expandErr = err
			return rule
		}
		changed = true

		parts := make([]string, len(urls))
		for i, u := range urls {
			parts[i] = fmt.Sprintf("@%s %q%s;", keyword, u, tail)
		}
		if len(parts) == 0 {
			// Nothing matched; an empty rule keeps the line.
			return []byte(indent + "/* " + url + ": no matches */")
		}
		return []byte(indent + strings.Join(parts, " "))
	})
	if expandErr != nil {
		return nil, false, expandErr
	}
	return out, changed, nil
}

// resolveGlob returns the module URLs matching url under the first root that
// has any, in sorted order.
func resolveGlob(url string, roots []string, self string) ([]string, error) {
	for _, root := range roots {
		pattern, err := match.Compile(filepath.Join(root, filepath.FromSlash(url)))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", url, err)
		}
		files, err := pattern.Expand()
		if err != nil {
			return nil, err
		}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var urls []string
		for _, f := range files {
			if f == self || !isStylesheet(f) {
				continue
			}
			rel, err := filepath.Rel(absRoot, f)
			if err != nil {
				continue
			}
			u := moduleURL(rel)
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}
	return nil, nil
}

func isStylesheet(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range sassExts {
		if ext == e {
			return true
		}
	}
	return false
}

// moduleURL turns "object/_button.scss" into "object/button".
func moduleURL(rel string) string {
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	dir, name := "", rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		dir, name = rel[:i+1], rel[i+1:]
	}
	return dir + strings.TrimPrefix(name, "_")
}

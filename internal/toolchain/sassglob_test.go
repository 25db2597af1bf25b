package toolchain

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandGlobImports(t *testing.T) {
	dir := t.TempDir()
	sass := filepath.Join(dir, "sass")
	vendor := filepath.Join(dir, "vendor")
	writeFile(t, filepath.Join(sass, "foundation", "_reset.scss"), "")
	writeFile(t, filepath.Join(sass, "foundation", "_base.scss"), "")
	writeFile(t, filepath.Join(sass, "object", "component", "_button.scss"), "")
	writeFile(t, filepath.Join(sass, "object", "project", "_card.scss"), "")
	writeFile(t, filepath.Join(sass, "object", "notes.txt"), "")
	writeFile(t, filepath.Join(vendor, "mixins", "_grid.scss"), "")
	entry := filepath.Join(sass, "style.scss")

	tests := []struct {
		name    string
		src     string
		want    string
		changed bool
	}{
		{
			name:    "use with single star",
			src:     "@use \"foundation/*\";\n.a { color: red; }\n",
			want:    "@use \"foundation/base\"; @use \"foundation/reset\";\n.a { color: red; }\n",
			changed: true,
		},
		{
			name:    "forward with globstar keeps modifiers",
			src:     "  @forward 'object/**/*' show button;\n",
			want:    "  @forward \"object/component/button\" show button; @forward \"object/project/card\" show button;\n",
			changed: true,
		},
		{
			name:    "import falls back to load path",
			src:     "@import \"mixins/*\";\n",
			want:    "@import \"mixins/grid\";\n",
			changed: true,
		},
		{
			name:    "no matches leaves a comment on the line",
			src:     "@use \"layout/*\";\n.b {}\n",
			want:    "/* layout/*: no matches */\n.b {}\n",
			changed: true,
		},
		{
			name:    "plain rules untouched",
			src:     "@use \"sass:math\";\n@use \"foundation/reset\";\n",
			want:    "@use \"sass:math\";\n@use \"foundation/reset\";\n",
			changed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := ExpandGlobImports(entry, []byte(tt.src), []string{vendor})
			if err != nil {
				t.Fatalf("ExpandGlobImports failed: %v", err)
			}
			if changed != tt.changed {
				t.Errorf("Expected changed=%v, got %v", tt.changed, changed)
			}
			if string(got) != tt.want {
				t.Errorf("Expected:\n%s\ngot:\n%s", tt.want, got)
			}
			if strings.Count(string(got), "\n") != strings.Count(tt.src, "\n") {
				t.Error("Expected line count to be preserved")
			}
		})
	}
}

func TestExpandGlobImports_SkipsEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "_a.scss"), "")
	entry := filepath.Join(dir, "style.scss")
	writeFile(t, entry, "")

	got, _, err := ExpandGlobImports(entry, []byte("@use \"*\";\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "@use \"a\";\n" {
		t.Errorf("Expected only the partial, got %q", got)
	}
}

func TestModuleURL(t *testing.T) {
	tests := map[string]string{
		"_reset.scss":                   "reset",
		"object/component/_button.scss": "object/component/button",
		"layout/header.sass":            "layout/header",
		"vendor/normalize.css":          "vendor/normalize",
	}
	for in, want := range tests {
		if got := moduleURL(filepath.FromSlash(in)); got != want {
			t.Errorf("moduleURL(%q) = %q, want %q", in, got, want)
		}
	}
}

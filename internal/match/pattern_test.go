package match

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPatternMatch(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"globstar zero dirs", "src/sass/**/*.scss", "src/sass/style.scss", true},
		{"globstar nested", "src/sass/**/*.scss", "src/sass/base/_reset.scss", true},
		{"wrong extension", "src/sass/**/*.scss", "src/sass/style.css", false},
		{"outside base", "src/sass/**/*.scss", "src/js/style.scss", false},
		{"any file", "src/images/**/*", "src/images/icons/logo.svg", true},
		{"html anywhere", "dist/**/*.html", "dist/index.html", true},
		{"html nested", "dist/**/*.html", "dist/about/team/index.html", true},
		{"single star does not cross dirs", "src/js/*.js", "src/js/lib/a.js", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(filepath.Join(root, tt.pattern))
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := p.Match(filepath.Join(root, tt.path)); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestPatternBase(t *testing.T) {
	root := t.TempDir()
	p := MustCompile(filepath.Join(root, "src", "sass", "**", "*.scss"))

	if want := filepath.Join(root, "src", "sass"); p.Base() != want {
		t.Errorf("Base() = %q, want %q", p.Base(), want)
	}

	rel, err := p.Rel(filepath.Join(root, "src", "sass", "pages", "home.scss"))
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if want := filepath.Join("pages", "home.scss"); rel != want {
		t.Errorf("Rel = %q, want %q", rel, want)
	}
}

func TestPatternExpand(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"js/app.js", "js/lib/util.js", "js/readme.md", "css/x.js"} {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	p := MustCompile(filepath.Join(root, "js", "**", "*.js"))
	files, err := p.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []string{
		filepath.Join(root, "js", "app.js"),
		filepath.Join(root, "js", "lib", "util.js"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expand = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestPatternExpand_MissingBase(t *testing.T) {
	p := MustCompile(filepath.Join(t.TempDir(), "nope", "**", "*"))
	files, err := p.Expand()
	if err != nil {
		t.Fatalf("expected no error for missing base, got %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
	if p.Exists() {
		t.Error("Exists() = true for missing base")
	}
}

func TestPatternLiteralBase(t *testing.T) {
	root := filepath.Join(t.TempDir(), "site [v2]", "{theme}")
	app := filepath.Join(root, "src", "js", "lib", "app.js")
	if err := os.MkdirAll(filepath.Dir(app), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(app, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Compile(filepath.Join(root, "src", "js", "**", "*.js"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if want := filepath.Join(root, "src", "js"); p.Base() != want {
		t.Errorf("Base() = %q, want %q", p.Base(), want)
	}
	if !p.Match(app) {
		t.Errorf("Match(%q) = false, want true", app)
	}
	if p.Match(filepath.Join(root, "src", "js", "app.css")) {
		t.Error("Match on wrong extension = true")
	}

	files, err := p.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(files) != 1 || files[0] != app {
		t.Errorf("Expand = %v, want [%s]", files, app)
	}
}

package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuildSassArgs(t *testing.T) {
	got := buildSassArgs("src/sass/style.scss", []string{"src/sass", "vendor"})
	want := []string{
		"--style=expanded",
		"--embed-source-map",
		"--embed-sources",
		"--no-error-css",
		"--color=false",
		"--load-path=src/sass",
		"--load-path=vendor",
		"src/sass/style.scss",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildSassArgs() = %v, want %v", got, want)
	}
}

func TestBuildSassStdinArgs(t *testing.T) {
	got := buildSassStdinArgs("src/sass/style.scss", []string{"vendor"})
	want := []string{
		"--style=expanded",
		"--embed-source-map",
		"--embed-sources",
		"--no-error-css",
		"--color=false",
		"--load-path=src/sass",
		"--load-path=vendor",
		"--stdin",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildSassStdinArgs() = %v, want %v", got, want)
	}
	if got := buildSassStdinArgs("src/sass/style.sass", nil); got[len(got)-2] != "--indented" {
		t.Errorf("Expected --indented for .sass entries, got %v", got)
	}
}

func TestParseSassError(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		file    string
		line    int
		col     int
		message string
	}{
		{
			name: "with location",
			stderr: `Error: expected ";".
  ╷
3 │   color: red
  │             ^
  ╵
  src/sass/_base.scss 3:13  @use
  src/sass/style.scss 1:1   root stylesheet`,
			file:    "src/sass/_base.scss",
			line:    3,
			col:     13,
			message: `expected ";".`,
		},
		{
			name:    "no location",
			stderr:  "Error: Can't find stylesheet to import.",
			file:    "src/sass/style.scss",
			message: "Can't find stylesheet to import.",
		},
		{
			name: "stdin entry",
			stderr: `Error: expected ";".
  - 4:1  root stylesheet`,
			file:    "src/sass/style.scss",
			line:    4,
			col:     1,
			message: `expected ";".`,
		},
		{
			name:    "empty stderr",
			stderr:  "",
			file:    "src/sass/style.scss",
			message: "compilation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := parseSassError("src/sass/style.scss", []byte(tt.stderr))
			if ce.Tool != "sass" {
				t.Errorf("Tool = %q, want sass", ce.Tool)
			}
			if ce.File != tt.file {
				t.Errorf("File = %q, want %q", ce.File, tt.file)
			}
			if ce.Line != tt.line || ce.Column != tt.col {
				t.Errorf("position = %d:%d, want %d:%d", ce.Line, ce.Column, tt.line, tt.col)
			}
			if ce.Message != tt.message {
				t.Errorf("Message = %q, want %q", ce.Message, tt.message)
			}
		})
	}
}

func TestNewSassCompiler_Missing(t *testing.T) {
	_, err := NewSassCompiler("assetpipe-no-such-sass", nil)
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("Expected ErrToolMissing, got: %v", err)
	}
}

// TestSassCompiler_Compile runs the real Dart Sass CLI when it is installed.
func TestSassCompiler_Compile(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("sass not installed")
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "_vars.scss"), "$brand: #336699;\n")
	writeFile(t, filepath.Join(dir, "style.scss"), "@use 'vars';\n.a { color: vars.$brand; }\n")
	writeFile(t, filepath.Join(dir, "broken.scss"), ".a { color: red\n")

	s, err := NewSassCompiler("sass", NewProcessManager())
	if err != nil {
		t.Fatal(err)
	}

	css, err := s.Compile(context.Background(), filepath.Join(dir, "style.scss"), []string{dir})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !strings.Contains(string(css.Code), "#336699") {
		t.Errorf("Expected compiled color, got:\n%s", css.Code)
	}
	if !strings.Contains(string(css.Code), "sourceMappingURL=data:") {
		t.Error("Expected an embedded source map")
	}

	writeFile(t, filepath.Join(dir, "foundation", "_reset.scss"), "html { margin: 0; }\n")
	writeFile(t, filepath.Join(dir, "foundation", "_base.scss"), "body { color: #112233; }\n")
	writeFile(t, filepath.Join(dir, "globbed.scss"), "@use \"foundation/*\";\n")
	css, err = s.Compile(context.Background(), filepath.Join(dir, "globbed.scss"), nil)
	if err != nil {
		t.Fatalf("Compile with glob rules failed: %v", err)
	}
	if !strings.Contains(string(css.Code), "#112233") || !strings.Contains(string(css.Code), "margin: 0") {
		t.Errorf("Expected both globbed partials, got:\n%s", css.Code)
	}

	_, err = s.Compile(context.Background(), filepath.Join(dir, "broken.scss"), nil)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *CompileError, got: %v", err)
	}
	if ce.Line == 0 {
		t.Errorf("Expected a line number, got %+v", ce)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

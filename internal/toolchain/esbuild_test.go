package toolchain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
)

func TestParseTargets(t *testing.T) {
	engines, err := ParseTargets([]string{"chrome58", "iOS8", " safari11.1 "})
	if err != nil {
		t.Fatalf("ParseTargets failed: %v", err)
	}
	want := []api.Engine{
		{Name: api.EngineChrome, Version: "58"},
		{Name: api.EngineIOS, Version: "8"},
		{Name: api.EngineSafari, Version: "11.1"},
	}
	if len(engines) != len(want) {
		t.Fatalf("Expected %d engines, got %d", len(want), len(engines))
	}
	for i := range want {
		if engines[i] != want[i] {
			t.Errorf("engine %d = %+v, want %+v", i, engines[i], want[i])
		}
	}

	for _, bad := range []string{"chrome", "netscape4", "58"} {
		if _, err := ParseTargets([]string{bad}); err == nil {
			t.Errorf("Expected error for target %q", bad)
		}
	}
}

func TestESBuild_ProcessAddsPrefixes(t *testing.T) {
	e, err := NewESBuild([]string{"safari11", "ie11"}, false)
	if err != nil {
		t.Fatal(err)
	}

	css, err := e.Process(context.Background(), []byte(".a {\n  user-select: none;\n}\n"), "style.css")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !strings.Contains(string(css.Code), "-webkit-user-select") {
		t.Errorf("Expected vendor prefix, got:\n%s", css.Code)
	}
	if len(css.Map) == 0 {
		t.Error("Expected an external source map")
	}
}

func TestESBuild_MinifyCSS(t *testing.T) {
	e, err := NewESBuild(nil, false)
	if err != nil {
		t.Fatal(err)
	}

	src := ".a {\n  color: #ff0000;\n}\n\n.b {\n  margin: 0px;\n}\n/*# sourceMappingURL=style.css.map */\n"
	out, err := e.Minify(context.Background(), []byte(src), "style.css")
	if err != nil {
		t.Fatalf("Minify failed: %v", err)
	}
	got := string(out)
	if strings.Contains(got, "sourceMappingURL") {
		t.Errorf("Expected source map comment stripped, got: %s", got)
	}
	if strings.Contains(got, "\n  ") {
		t.Errorf("Expected whitespace removed, got: %s", got)
	}
	if len(out) >= len(src) {
		t.Errorf("Expected smaller output, got %d >= %d", len(out), len(src))
	}
}

func TestESBuild_MinifyScript(t *testing.T) {
	e, err := NewESBuild(nil, false)
	if err != nil {
		t.Fatal(err)
	}

	src := "function greet(name) {\n  var message = 'hello ' + name;\n  return message;\n}\n"
	out, err := e.Scripts().Minify(context.Background(), []byte(src), "app.js")
	if err != nil {
		t.Fatalf("Minify failed: %v", err)
	}
	if !strings.Contains(string(out), "function greet(") {
		t.Errorf("Expected top-level name kept, got: %s", out)
	}
	if len(out) >= len(src) {
		t.Errorf("Expected smaller output, got %d >= %d", len(out), len(src))
	}

	_, err = e.MinifyScript(context.Background(), []byte("function ( {"), "bad.js")
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *CompileError, got: %v", err)
	}
	if ce.Line != 1 {
		t.Errorf("Line = %d, want 1", ce.Line)
	}
}

func TestESBuild_CanceledContext(t *testing.T) {
	e, err := NewESBuild(nil, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.MinifyScript(ctx, []byte("var a = 1;"), "a.js"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

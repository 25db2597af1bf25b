package tasks

import (
	"context"
	"path/filepath"
	"testing"
)

// TestScriptTask_CopyAndMinify verifies the copy is byte-identical and the
// minified sibling is no larger.
func TestScriptTask_CopyAndMinify(t *testing.T) {
	te := newTestEnv(t)
	src := "function add(a, b) {\n  return a + b;\n}\n"
	mustWrite(t, filepath.Join(te.src, "js", "app.js"), src)
	mustWrite(t, filepath.Join(te.src, "js", "lib", "util.js"), "var x = 1;\n")

	task, err := NewScriptTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() {
		t.Fatalf("Expected success, got %v", res.Failures)
	}
	if res.Notice == "" {
		t.Error("Expected a done notice")
	}

	copied := readFile(t, filepath.Join(te.dist, "js", "app.js"))
	if string(copied) != src {
		t.Errorf("copy differs from source: %q", copied)
	}
	minified := readFile(t, filepath.Join(te.dist, "js", "app.min.js"))
	if len(minified) > len(src) {
		t.Errorf("minified is larger: %d > %d", len(minified), len(src))
	}
	if !exists(filepath.Join(te.dist, "js", "lib", "util.min.js")) {
		t.Error("Expected nested script to be minified")
	}
	if len(res.Artifacts) != 4 {
		t.Errorf("Expected 4 artifacts, got %v", res.Artifacts)
	}
}

// TestScriptTask_SyntaxError verifies the failure names the file, the copy is
// refreshed and the previous minified file is untouched.
func TestScriptTask_SyntaxError(t *testing.T) {
	te := newTestEnv(t)
	src := filepath.Join(te.src, "js", "app.js")
	mustWrite(t, src, "var a = syntax error;\n")
	mustWrite(t, filepath.Join(te.dist, "js", "app.min.js"), "var a=1;")

	task, err := NewScriptTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned fatal error: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %v", res.Failures)
	}
	if res.Failures[0].TaskID != IDScripts {
		t.Errorf("TaskID = %q, want %q", res.Failures[0].TaskID, IDScripts)
	}
	if got := res.Failures[0].File; got != src {
		t.Errorf("File = %q, want %q", got, src)
	}

	if got := string(readFile(t, filepath.Join(te.dist, "js", "app.js"))); got != "var a = syntax error;\n" {
		t.Errorf("copy = %q", got)
	}
	if got := string(readFile(t, filepath.Join(te.dist, "js", "app.min.js"))); got != "var a=1;" {
		t.Errorf("previous minified file changed: %q", got)
	}
}

func TestScriptTask_AlreadyMinified(t *testing.T) {
	te := newTestEnv(t)
	mustWrite(t, filepath.Join(te.src, "js", "vendor.min.js"), "var v=1;")

	task, err := NewScriptTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil || !res.OK() {
		t.Fatalf("Run failed: %v %v", err, res.Failures)
	}
	if !exists(filepath.Join(te.dist, "js", "vendor.min.js")) {
		t.Error("Expected vendor.min.js to be copied")
	}
	if exists(filepath.Join(te.dist, "js", "vendor.min.min.js")) {
		t.Error("Expected no vendor.min.min.js")
	}
}

func TestScriptTask_NoSources(t *testing.T) {
	te := newTestEnv(t)
	task, err := NewScriptTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil || !res.OK() || len(res.Artifacts) != 0 {
		t.Errorf("Expected empty successful run, got %+v, %v", res, err)
	}
}

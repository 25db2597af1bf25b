package tasks

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func TestStyleTask_BuildsArtifacts(t *testing.T) {
	te := newTestEnv(t)
	mustWrite(t, filepath.Join(te.src, "sass", "style.scss"), ".a {\n  color: red;\n}\n")
	mustWrite(t, filepath.Join(te.src, "sass", "_vars.scss"), "$x: 1;\n")
	mustWrite(t, filepath.Join(te.src, "sass", "pages", "about.scss"), ".b { margin: 0; }\n")

	task, err := NewStyleTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() {
		t.Fatalf("Expected success, got failures: %v", res.Failures)
	}
	if res.Notice == "" {
		t.Error("Expected a done notice")
	}

	got := listFiles(t, filepath.Join(te.dist, "css"))
	sort.Strings(got)
	want := []string{
		"pages/about.css",
		"pages/about.css.map",
		"pages/about.min.css",
		"style.css",
		"style.css.map",
		"style.min.css",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("artifacts = %v, want %v", got, want)
	}
	if len(res.Artifacts) != len(want) {
		t.Errorf("Expected %d artifacts in result, got %d", len(want), len(res.Artifacts))
	}

	css := string(readFile(t, filepath.Join(te.dist, "css", "style.css")))
	if !strings.HasSuffix(css, "/*# sourceMappingURL=style.css.map */\n") {
		t.Errorf("Expected trailing source map comment, got:\n%s", css)
	}
	if !strings.Contains(css, "/* processed */") {
		t.Error("Expected post-processed output")
	}
}

// TestStyleTask_Idempotent verifies two runs on unchanged input produce identical output.
func TestStyleTask_Idempotent(t *testing.T) {
	te := newTestEnv(t)
	mustWrite(t, filepath.Join(te.src, "sass", "style.scss"), ".a {\n  color: red;\n}\n")

	task, err := NewStyleTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := func() map[string][]byte {
		out := map[string][]byte{}
		for _, f := range listFiles(t, te.dist) {
			out[f] = readFile(t, filepath.Join(te.dist, filepath.FromSlash(f)))
		}
		return out
	}

	if _, err := task.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := snapshot()
	if _, err := task.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := snapshot()

	if len(first) == 0 {
		t.Fatal("Expected artifacts after first run")
	}
	for name, data := range first {
		if !bytes.Equal(data, second[name]) {
			t.Errorf("%s changed between runs", name)
		}
	}
	if len(first) != len(second) {
		t.Errorf("artifact count changed: %d -> %d", len(first), len(second))
	}
}

// TestStyleTask_SyntaxErrorKeepsPrevious verifies a failing entry leaves its
// previous artifacts alone and reports the file, while other entries build.
func TestStyleTask_SyntaxErrorKeepsPrevious(t *testing.T) {
	te := newTestEnv(t)
	broken := filepath.Join(te.src, "sass", "style.scss")
	mustWrite(t, broken, ".a {\n  !error\n")
	mustWrite(t, filepath.Join(te.src, "sass", "print.scss"), ".p { color: black; }\n")

	previous := filepath.Join(te.dist, "css", "style.css")
	mustWrite(t, previous, ".a{color:red}\n")

	task, err := NewStyleTask(te.Env)
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
	f := res.Failures[0]
	if f.TaskID != IDStyles || f.File != broken {
		t.Errorf("failure = %+v, want task %s file %s", f, IDStyles, broken)
	}
	if !strings.Contains(f.Message, "2:1") {
		t.Errorf("Expected position in message, got %q", f.Message)
	}
	if res.Notice != "" {
		t.Errorf("Expected no done notice on failure, got %q", res.Notice)
	}
	if res.Err() == nil {
		t.Error("Expected Err() to be non-nil")
	}

	if got := string(readFile(t, previous)); got != ".a{color:red}\n" {
		t.Errorf("previous artifact changed: %q", got)
	}
	if exists(filepath.Join(te.dist, "css", "style.min.css")) {
		t.Error("Expected no minified output for the failing entry")
	}
	if !exists(filepath.Join(te.dist, "css", "print.css")) {
		t.Error("Expected the valid entry to build")
	}
}

func TestStyleTask_NoSources(t *testing.T) {
	te := newTestEnv(t)

	task, err := NewStyleTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() || len(res.Artifacts) != 0 || res.Notice != "" {
		t.Errorf("Expected empty successful result, got %+v", res)
	}
	if exists(te.dist) {
		t.Error("Expected dist not to be created")
	}
}

func TestStyleTask_Cancelled(t *testing.T) {
	te := newTestEnv(t)
	mustWrite(t, filepath.Join(te.src, "sass", "style.scss"), ".a{}\n")

	task, err := NewStyleTask(te.Env)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := task.Run(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

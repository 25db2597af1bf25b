package tasks

import (
	"context"
	"path/filepath"
	"testing"
)

func TestCleanTask_RemovesTargets(t *testing.T) {
	te := newTestEnv(t)
	css := filepath.Join(te.dist, "css")
	mustWrite(t, filepath.Join(css, "style.css"), "a{}")
	mustWrite(t, filepath.Join(css, "style.css.map"), "{}")
	mustWrite(t, filepath.Join(css, "style.min.css"), "a{}")
	mustWrite(t, filepath.Join(te.dist, "images", "nested", "a.png"), "png")
	mustWrite(t, filepath.Join(te.dist, "index.html"), "<html></html>")

	task := NewCleanTask(te.Env)
	res, err := task.Run(context.Background())
	if err != nil || !res.OK() {
		t.Fatalf("Run failed: %v %v", err, res.Failures)
	}

	for _, gone := range []string{
		filepath.Join(css, "style.css"),
		filepath.Join(css, "style.css.map"),
		filepath.Join(te.dist, "images"),
	} {
		if exists(gone) {
			t.Errorf("Expected %s removed", gone)
		}
	}
	// Only the fixed targets are removed.
	for _, kept := range []string{
		filepath.Join(css, "style.min.css"),
		filepath.Join(te.dist, "index.html"),
	} {
		if !exists(kept) {
			t.Errorf("Expected %s kept", kept)
		}
	}
}

// TestCleanTask_EmptyDist verifies clean tolerates missing targets.
func TestCleanTask_EmptyDist(t *testing.T) {
	te := newTestEnv(t)

	res, err := NewCleanTask(te.Env).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() {
		t.Errorf("Expected no failures, got %v", res.Failures)
	}
}

func TestCleanTask_Outputs(t *testing.T) {
	te := newTestEnv(t)
	outs := NewCleanTask(te.Env).Outputs()
	if len(outs) != 3 {
		t.Fatalf("Expected 3 targets, got %v", outs)
	}
	if outs[0] != filepath.Join(te.dist, "css", "style.css") {
		t.Errorf("first target = %q", outs[0])
	}
}

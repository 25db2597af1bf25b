package tasks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/resilience"
	"github.com/aristath/assetpipe/internal/toolchain"
)

// fakeStyles "compiles" by reading the file; a file containing "!error"
// fails with a CompileError on line 2.
type fakeStyles struct{}

func (fakeStyles) Compile(_ context.Context, path string, _ []string) (toolchain.CSS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return toolchain.CSS{}, err
	}
	if bytes.Contains(data, []byte("!error")) {
		return toolchain.CSS{}, &toolchain.CompileError{Tool: "sass", File: path, Line: 2, Column: 1, Message: "expected \";\""}
	}
	return toolchain.CSS{Code: data}, nil
}

type fakeCSS struct{}

func (fakeCSS) Process(_ context.Context, css []byte, filename string) (toolchain.CSS, error) {
	return toolchain.CSS{
		Code: append([]byte("/* processed */\n"), css...),
		Map:  []byte(`{"version":3,"file":"` + filename + `","mappings":""}`),
	}, nil
}

func (fakeCSS) Minify(_ context.Context, css []byte, _ string) ([]byte, error) {
	return squeeze(css), nil
}

// fakeScripts strips whitespace; sources containing "syntax error" fail.
type fakeScripts struct{}

func (fakeScripts) Minify(_ context.Context, src []byte, filename string) ([]byte, error) {
	if bytes.Contains(src, []byte("syntax error")) {
		return nil, &toolchain.CompileError{Tool: "esbuild", File: filename, Line: 1, Column: 9, Message: "Unexpected \"error\""}
	}
	return squeeze(src), nil
}

func squeeze(b []byte) []byte {
	return []byte(strings.Join(strings.Fields(string(b)), ""))
}

// fakeImages halves JPEG/PNG data, reports no gain for files starting with
// "tiny", fails for files starting with "corrupt" and rejects other formats.
type fakeImages struct{}

func (fakeImages) Compress(_ context.Context, data []byte, filename string) ([]byte, error) {
	base := filepath.Base(filename)
	switch {
	case strings.HasPrefix(base, "corrupt"):
		return nil, errors.New("decoding image: invalid format")
	case strings.HasPrefix(base, "tiny"):
		return nil, toolchain.ErrNoGain
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".jpg", ".jpeg", ".png", ".svg":
		return data[:len(data)/2], nil
	default:
		return nil, toolchain.ErrUnsupported
	}
}

type fakeWebP struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeWebP) Convert(_ context.Context, data []byte, _ string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return append([]byte("RIFF"), data...), nil
}

func (f *fakeWebP) Ext() string { return ".webp" }

func (f *fakeWebP) Supports(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

type testEnv struct {
	*Env
	src, dist string

	mu     sync.Mutex
	output []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.SrcBase = filepath.Join(dir, "src")
	cfg.Paths.DistBase = filepath.Join(dir, "dist")
	cfg.Images.Workers = 2

	te := &testEnv{
		src:  cfg.Paths.SrcBase,
		dist: cfg.Paths.DistBase,
	}
	te.Env = &Env{
		Config: cfg,
		Tools: &toolchain.Toolchain{
			Styles:  fakeStyles{},
			CSS:     fakeCSS{},
			Scripts: fakeScripts{},
			Images:  fakeImages{},
			WebP:    &fakeWebP{},
		},
		Logger: zerolog.Nop(),
		Retry: resilience.RetryConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxElapsedTime:  5 * time.Millisecond,
			Multiplier:      2,
		},
		Output: func(_ string, line string) {
			te.mu.Lock()
			te.output = append(te.output, line)
			te.mu.Unlock()
		},
	}
	return te
}

func (te *testEnv) lines() []string {
	te.mu.Lock()
	defer te.mu.Unlock()
	return append([]string(nil), te.output...)
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// listFiles returns the regular files under dir, relative and slash-separated.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files
}

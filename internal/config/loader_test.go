package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name         string
		globalName   string
		global       string
		projectName  string
		project      string
		expectPort   int
		expectQual   int
		expectDist   string
		expectNotify bool
	}{
		{
			name:         "No config files - returns defaults",
			expectPort:   3000,
			expectQual:   80,
			expectDist:   "../dist",
			expectNotify: true,
		},
		{
			name:         "Global JSON only",
			globalName:   "config.json",
			global:       `{"server": {"port": 4000}}`,
			expectPort:   4000,
			expectQual:   80,
			expectDist:   "../dist",
			expectNotify: true,
		},
		{
			name:         "Project TOML overrides global JSON",
			globalName:   "config.json",
			global:       `{"server": {"port": 4000}, "images": {"jpeg_quality": 60}}`,
			projectName:  "assetpipe.toml",
			project:      "[server]\nport = 5000\n",
			expectPort:   5000,
			expectQual:   60,
			expectDist:   "../dist",
			expectNotify: true,
		},
		{
			name:         "Project YAML can switch booleans off",
			projectName:  "assetpipe.yaml",
			project:      "notify:\n  desktop: false\npaths:\n  dist_base: public\n",
			expectPort:   3000,
			expectQual:   80,
			expectDist:   "public",
			expectNotify: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalName != "" {
				globalPath = writeFile(t, tmpDir, tt.globalName, tt.global)
			}
			projectPath := ""
			if tt.projectName != "" {
				projectPath = writeFile(t, tmpDir, tt.projectName, tt.project)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.Server.Port != tt.expectPort {
				t.Errorf("port = %d, want %d", cfg.Server.Port, tt.expectPort)
			}
			if cfg.Images.JPEGQuality != tt.expectQual {
				t.Errorf("jpeg quality = %d, want %d", cfg.Images.JPEGQuality, tt.expectQual)
			}
			if cfg.Paths.DistBase != tt.expectDist {
				t.Errorf("dist base = %q, want %q", cfg.Paths.DistBase, tt.expectDist)
			}
			if cfg.Notify.Desktop != tt.expectNotify {
				t.Errorf("desktop notify = %v, want %v", cfg.Notify.Desktop, tt.expectNotify)
			}
			if got := len(cfg.Paths.Categories); got != 4 {
				t.Errorf("categories count = %d, want 4", got)
			}
		})
	}
}

func TestLoad_MalformedFiles(t *testing.T) {
	for _, tc := range []struct{ name, content string }{
		{"global.json", "{invalid json"},
		{"global.toml", "[server\nport ="},
		{"global.yaml", "server: [unclosed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tc.name, tc.content)
			if _, err := Load(path, ""); err == nil {
				t.Fatal("expected error for malformed config, got nil")
			}
		})
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/assetpipe.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if cfg.MinSuffix != ".min" {
		t.Errorf("min suffix = %q, want .min", cfg.MinSuffix)
	}
}

func TestLoad_CategoryWithoutDestRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "assetpipe.json",
		`{"paths": {"categories": {"styles": {"source": "scss/**/*.scss"}}}}`)

	_, err := Load("", path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cfg := DefaultConfig()

	styles, err := cfg.Resolve(CategoryStyles)
	if err != nil {
		t.Fatalf("Resolve(styles): %v", err)
	}
	if want := filepath.Join("../src", "sass/**/*.scss"); styles.Glob != want {
		t.Errorf("styles glob = %q, want %q", styles.Glob, want)
	}
	if want := filepath.Join("../dist", "css"); styles.Dest != want {
		t.Errorf("styles dest = %q, want %q", styles.Dest, want)
	}

	markup, err := cfg.Resolve(CategoryMarkup)
	if err != nil {
		t.Fatalf("Resolve(markup): %v", err)
	}
	if want := filepath.Join("../dist", "**/*.html"); markup.Glob != want {
		t.Errorf("markup glob = %q, want %q", markup.Glob, want)
	}
	if markup.Dest != "" {
		t.Errorf("markup dest = %q, want empty", markup.Dest)
	}
}

func TestCleanTargets(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.CleanTargets()
	want := []string{
		filepath.Join("../dist", "css/style.css"),
		filepath.Join("../dist", "css/style.css.map"),
		filepath.Join("../dist", "images"),
	}
	if len(got) != len(want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("target[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFingerprintChangesWithConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	fa, err := a.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fb, _ := b.Fingerprint()
	if fa != fb {
		t.Error("identical configs should have identical fingerprints")
	}

	b.Images.JPEGQuality = 70
	fb, _ = b.Fingerprint()
	if fa == fb {
		t.Error("fingerprint should change when config changes")
	}
}

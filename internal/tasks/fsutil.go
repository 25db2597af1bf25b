package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/assetpipe/internal/match"
)

// writeFile replaces path atomically through a temp file in the same
// directory that is renamed over the target.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// staged is a set of output files written together once all of them exist.
type staged struct {
	paths []string
	data  [][]byte
}

func (s *staged) add(path string, data []byte) {
	s.paths = append(s.paths, path)
	s.data = append(s.data, data)
}

// commit writes every staged file and returns the paths written.
func (s *staged) commit() ([]string, error) {
	written := make([]string, 0, len(s.paths))
	for i, p := range s.paths {
		if err := writeFile(p, s.data[i]); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

// destFor maps a source file to its location under dest, keeping the
// directory structure below the pattern base.
func destFor(p *match.Pattern, src, dest string) (string, error) {
	rel, err := p.Rel(src)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", src, p.Base())
	}
	return filepath.Join(dest, rel), nil
}

// withSuffix inserts suffix before the extension: "app.js" + ".min" is
// "app.min.js".
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// replaceExt swaps the extension: "a/photo.jpg" + ".webp" is "a/photo.webp".
func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func sources(glob string) (*match.Pattern, []string, error) {
	p, err := match.Compile(glob)
	if err != nil {
		return nil, nil, err
	}
	files, err := p.Expand()
	if err != nil {
		return nil, nil, err
	}
	return p, files, nil
}

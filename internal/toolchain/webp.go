package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CWebP converts JPEG and PNG images to WebP with the cwebp CLI.
type CWebP struct {
	binary  string
	quality int
	procMgr *ProcessManager
}

// NewCWebP creates a converter for the given cwebp binary.
func NewCWebP(binary string, quality int, procMgr *ProcessManager) (*CWebP, error) {
	path, err := lookTool(binary)
	if err != nil {
		return nil, err
	}
	return &CWebP{binary: path, quality: quality, procMgr: procMgr}, nil
}

// Ext returns ".webp".
func (c *CWebP) Ext() string { return ".webp" }

// Supports reports whether filename is a JPEG or PNG.
func (c *CWebP) Supports(filename string) bool {
	k := imageKind(filename)
	return k == kindJPEG || k == kindPNG
}

// Convert runs cwebp on a temporary copy of data and returns the WebP bytes.
func (c *CWebP) Convert(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if !c.Supports(filename) {
		return nil, ErrUnsupported
	}

	dir, err := os.MkdirTemp("", "assetpipe-webp-")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in"+filepath.Ext(filename))
	out := filepath.Join(dir, "out.webp")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return nil, fmt.Errorf("writing temp input: %w", err)
	}

	cmd := newCommand(ctx, c.binary, "-quiet", "-q", strconv.Itoa(c.quality), in, "-o", out)
	if _, _, err := executeCommand(ctx, cmd, c.procMgr); err != nil {
		return nil, fmt.Errorf("cwebp %s: %w", filename, err)
	}

	webp, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading cwebp output: %w", err)
	}
	return webp, nil
}

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMediaType = "image/svg+xml"

// pngquant exit statuses that mean "left the image alone".
const (
	pngquantSkippedLarger = 98
	pngquantQualityTooLow = 99
)

// Compressor recompresses JPEG, PNG and SVG images. JPEG is re-encoded at a
// fixed quality, PNG goes through pngquant when available and otherwise
// through a lossless maximum-compression re-encode, SVG is minified.
type Compressor struct {
	jpegQuality int
	pngquant    string // resolved binary path; empty when unavailable
	procMgr     *ProcessManager
	svg         *minify.M
}

// NewCompressor creates an image compressor. pngquantBinary may be empty; a
// configured binary that is missing from PATH also falls back to lossless PNG.
func NewCompressor(jpegQuality int, pngquantBinary string, procMgr *ProcessManager) *Compressor {
	m := minify.New()
	m.Add(svgMediaType, &svg.Minifier{})

	c := &Compressor{
		jpegQuality: jpegQuality,
		procMgr:     procMgr,
		svg:         m,
	}
	if pngquantBinary != "" {
		if path, err := lookTool(pngquantBinary); err == nil {
			c.pngquant = path
		}
	}
	return c
}

// LossyPNG reports whether pngquant is in use.
func (c *Compressor) LossyPNG() bool { return c.pngquant != "" }

// Compress returns the recompressed image, ErrUnsupported for formats it does
// not handle, or ErrNoGain when the result would not be smaller.
func (c *Compressor) Compress(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out []byte
		err error
	)
	switch imageKind(filename) {
	case kindJPEG:
		out, err = c.reencode(data, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality))
	case kindPNG:
		if c.pngquant != "" {
			out, err = c.quantize(ctx, data)
			if err == nil || errors.Is(err, ErrNoGain) || ctx.Err() != nil {
				break
			}
			// A pngquant crash should not cost the file its lossless pass.
		}
		out, err = c.reencode(data, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case kindSVG:
		out, err = c.svg.Bytes(svgMediaType, data)
		if err != nil {
			err = fmt.Errorf("minifying svg: %w", err)
		}
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}

	if len(out) >= len(data) {
		return nil, ErrNoGain
	}
	return out, nil
}

func (c *Compressor) reencode(data []byte, format imaging.Format, opts ...imaging.EncodeOption) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}

// quantize pipes data through pngquant (stdin to stdout).
func (c *Compressor) quantize(ctx context.Context, data []byte) ([]byte, error) {
	cmd := newCommand(ctx, c.pngquant, "--skip-if-larger", "--strip", "-")
	cmd.Stdin = bytes.NewReader(data)

	stdout, _, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) && (ee.Code == pngquantSkippedLarger || ee.Code == pngquantQualityTooLow) {
			return nil, ErrNoGain
		}
		return nil, fmt.Errorf("pngquant: %w", err)
	}
	return stdout, nil
}

type kind int

const (
	kindOther kind = iota
	kindJPEG
	kindPNG
	kindSVG
)

func imageKind(filename string) kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return kindJPEG
	case ".png":
		return kindPNG
	case ".svg":
		return kindSVG
	default:
		return kindOther
	}
}

package toolchain

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by an ImageCompressor or ImageConverter for a
// format it does not handle. Callers pass such files through unchanged.
var ErrUnsupported = errors.New("unsupported format")

// ErrNoGain is returned when optimisation would not shrink the input.
var ErrNoGain = errors.New("no size gain")

// CSS is compiled stylesheet text plus an optional source map.
type CSS struct {
	Code []byte
	Map  []byte
}

// CompileError is a syntax or transform failure in one source file.
type CompileError struct {
	Tool    string
	File    string
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s: %s:%d:%d: %s", e.Tool, e.File, e.Line, e.Column, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s: %s", e.Tool, e.File, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Tool, e.Message)
	}
}

// StyleCompiler compiles a stylesheet-language entry file to CSS with an
// inline source map.
type StyleCompiler interface {
	Compile(ctx context.Context, path string, includePaths []string) (CSS, error)
}

// CSSProcessor post-processes compiled CSS for browser targets and minifies it.
type CSSProcessor interface {
	Process(ctx context.Context, css []byte, filename string) (CSS, error)
	Minify(ctx context.Context, css []byte, filename string) ([]byte, error)
}

// ScriptMinifier minifies script source text.
type ScriptMinifier interface {
	Minify(ctx context.Context, src []byte, filename string) ([]byte, error)
}

// ImageCompressor recompresses an image. filename selects the format.
type ImageCompressor interface {
	Compress(ctx context.Context, data []byte, filename string) ([]byte, error)
}

// ImageConverter derives a modern-format image (WebP).
type ImageConverter interface {
	Convert(ctx context.Context, data []byte, filename string) ([]byte, error)
	// Ext is the extension of converted files, including the dot.
	Ext() string
	// Supports reports whether filename's format can be converted.
	Supports(filename string) bool
}

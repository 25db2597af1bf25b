package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SassCompiler compiles SCSS by running the Dart Sass CLI once per entry file.
type SassCompiler struct {
	binary  string
	procMgr *ProcessManager
}

// NewSassCompiler creates a compiler for the given sass binary.
// The ProcessManager is optional; if nil, subprocesses aren't tracked.
func NewSassCompiler(binary string, procMgr *ProcessManager) (*SassCompiler, error) {
	path, err := lookTool(binary)
	if err != nil {
		return nil, err
	}
	return &SassCompiler{binary: path, procMgr: procMgr}, nil
}

// Compile writes expanded CSS with an embedded source map to stdout and
// returns it. On a syntax error the returned error is a *CompileError.
// Glob rules such as `@use "foundation/*"` are expanded first; the rewritten
// entry is fed through stdin with its own directory as the first load path.
func (s *SassCompiler) Compile(ctx context.Context, path string, includePaths []string) (CSS, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return CSS{}, fmt.Errorf("reading %s: %w", path, err)
	}
	expanded, globbed, err := ExpandGlobImports(path, src, includePaths)
	if err != nil {
		return CSS{}, &CompileError{Tool: "sass", File: path, Message: err.Error()}
	}

	args := buildSassArgs(path, includePaths)
	if globbed {
		args = buildSassStdinArgs(path, includePaths)
	}
	cmd := newCommand(ctx, s.binary, args...)
	if globbed {
		cmd.Stdin = bytes.NewReader(expanded)
	}

	stdout, stderr, err := executeCommand(ctx, cmd, s.procMgr)
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return CSS{}, parseSassError(path, stderr)
		}
		return CSS{}, err
	}

	return CSS{Code: stdout}, nil
}

func buildSassArgs(path string, includePaths []string) []string {
	args := []string{
		"--style=expanded",
		"--embed-source-map",
		"--embed-sources",
		"--no-error-css",
		"--color=false",
	}
	for _, p := range includePaths {
		args = append(args, "--load-path="+p)
	}
	return append(args, path)
}

// buildSassStdinArgs is buildSassArgs for an entry read from stdin.
func buildSassStdinArgs(path string, includePaths []string) []string {
	args := buildSassArgs(path, append([]string{filepath.Dir(path)}, includePaths...))
	args = args[:len(args)-1]
	if filepath.Ext(path) == ".sass" {
		args = append(args, "--indented")
	}
	return append(args, "--stdin")
}

// sassLocation matches the trailer Dart Sass prints under an error,
// e.g. "  src/sass/style.scss 3:12  root stylesheet".
var sassLocation = regexp.MustCompile(`(\S+\.(?:scss|sass|css)|-) (\d+):(\d+)`)

// parseSassError turns Dart Sass stderr into a CompileError.
func parseSassError(path string, stderr []byte) *CompileError {
	ce := &CompileError{Tool: "sass", File: path}

	text := strings.TrimSpace(string(stderr))
	first, _, _ := strings.Cut(text, "\n")
	ce.Message = strings.TrimSpace(strings.TrimPrefix(first, "Error:"))
	if ce.Message == "" {
		ce.Message = "compilation failed"
	}

	if m := sassLocation.FindStringSubmatch(text); m != nil {
		if m[1] != "-" {
			// "-" is stdin, which is the entry itself.
			ce.File = m[1]
		}
		ce.Line, _ = strconv.Atoi(m[2])
		ce.Column, _ = strconv.Atoi(m[3])
	}
	return ce
}

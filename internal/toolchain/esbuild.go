package toolchain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ESBuild implements CSSProcessor and ScriptMinifier with esbuild's
// transform API.
type ESBuild struct {
	engines           []api.Engine
	keepLegalComments bool
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"hermes":  api.EngineHermes,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"rhino":   api.EngineRhino,
	"safari":  api.EngineSafari,
}

var targetPattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

// ParseTargets converts targets such as "chrome58" or "ios8" to esbuild engines.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := targetPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", m[1], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// NewESBuild creates the processor for the given browser targets.
func NewESBuild(targets []string, keepLegalComments bool) (*ESBuild, error) {
	engines, err := ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return &ESBuild{engines: engines, keepLegalComments: keepLegalComments}, nil
}

func (e *ESBuild) legalComments() api.LegalComments {
	if e.keepLegalComments {
		return api.LegalCommentsInline
	}
	return api.LegalCommentsNone
}

// Process lowers CSS for the configured targets, adding vendor prefixes where
// needed. An inline input source map is merged into the returned external map.
func (e *ESBuild) Process(ctx context.Context, css []byte, filename string) (CSS, error) {
	if err := ctx.Err(); err != nil {
		return CSS{}, err
	}

	result := api.Transform(string(css), api.TransformOptions{
		Loader:        api.LoaderCSS,
		Engines:       e.engines,
		Sourcefile:    filename,
		Sourcemap:     api.SourceMapExternal,
		LegalComments: api.LegalCommentsInline,
	})
	if len(result.Errors) > 0 {
		return CSS{}, messageError("esbuild", filename, result.Errors)
	}

	return CSS{Code: result.Code, Map: result.Map}, nil
}

// Minify minifies CSS without a source map.
func (e *ESBuild) Minify(ctx context.Context, css []byte, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := api.Transform(string(stripSourceMapComment(css)), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          e.engines,
		Sourcefile:       filename,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    e.legalComments(),
	})
	if len(result.Errors) > 0 {
		return nil, messageError("esbuild", filename, result.Errors)
	}
	return result.Code, nil
}

// MinifyScript minifies JavaScript. Top-level names are left alone because no
// output format is set, so the result behaves like the input when loaded as a
// classic script.
func (e *ESBuild) MinifyScript(ctx context.Context, src []byte, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := api.Transform(string(src), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        filename,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     e.legalComments(),
	})
	if len(result.Errors) > 0 {
		return nil, messageError("esbuild", filename, result.Errors)
	}
	return result.Code, nil
}

// scriptMinifier adapts ESBuild.MinifyScript to the ScriptMinifier interface.
type scriptMinifier struct{ e *ESBuild }

func (s scriptMinifier) Minify(ctx context.Context, src []byte, filename string) ([]byte, error) {
	return s.e.MinifyScript(ctx, src, filename)
}

// Scripts returns e as a ScriptMinifier.
func (e *ESBuild) Scripts() ScriptMinifier { return scriptMinifier{e} }

var sourceMapComment = regexp.MustCompile(`(?m)\n?/\*# sourceMappingURL=[^*]*\*/\s*$`)

func stripSourceMapComment(css []byte) []byte {
	return sourceMapComment.ReplaceAll(css, nil)
}

func messageError(tool, filename string, msgs []api.Message) *CompileError {
	msg := msgs[0]
	ce := &CompileError{Tool: tool, File: filename, Message: msg.Text}
	if msg.Location != nil {
		if msg.Location.File != "" {
			ce.File = msg.Location.File
		}
		ce.Line = msg.Location.Line
		ce.Column = msg.Location.Column
	}
	if len(msgs) > 1 {
		ce.Message = fmt.Sprintf("%s (and %d more)", ce.Message, len(msgs)-1)
	}
	return ce
}

package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/resilience"
)

// ScriptTask copies every script to the destination and writes a minified
// sibling next to it.
type ScriptTask struct {
	env  *Env
	path config.ResolvedPath
}

// NewScriptTask creates the script build task.
func NewScriptTask(env *Env) (*ScriptTask, error) {
	rp, err := env.Config.Resolve(config.CategoryScripts)
	if err != nil {
		return nil, err
	}
	return &ScriptTask{env: env, path: rp}, nil
}

func (t *ScriptTask) ID() string        { return IDScripts }
func (t *ScriptTask) Name() string      { return "Script Build" }
func (t *ScriptTask) Outputs() []string { return []string{t.path.Dest} }

// Run writes the unminified copy of each script before minifying it, so a
// syntax error still leaves a fresh copy while the previous minified file
// stays untouched.
func (t *ScriptTask) Run(ctx context.Context) (Result, error) {
	var res Result

	pattern, files, err := sources(t.path.Glob)
	if err != nil {
		return res, err
	}

	minSuffix := t.env.Config.MinSuffix
	built := 0
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := t.env.Logger.With().Str("task", IDScripts).Str("file", src).Logger()

		out, err := destFor(pattern, src, t.path.Dest)
		if err != nil {
			res.fail(IDScripts, src, err)
			continue
		}

		data, err := resilience.ReadFile(ctx, t.env.Retry, src)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Msg("reading script failed")
			res.fail(IDScripts, src, err)
			continue
		}

		if err := writeFile(out, data); err != nil {
			res.fail(IDScripts, src, err)
			continue
		}
		res.Artifacts = append(res.Artifacts, out)

		// Already minified upstream; the copy is the minified artifact.
		if strings.HasSuffix(strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)), minSuffix) {
			built++
			continue
		}

		minified, err := t.env.Tools.Scripts.Minify(ctx, data, src)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Msg("minifying script failed")
			res.fail(IDScripts, src, err)
			continue
		}
		if len(minified) > len(data) {
			minified = data
		}

		minPath := withSuffix(out, minSuffix)
		if err := writeFile(minPath, minified); err != nil {
			res.fail(IDScripts, src, err)
			continue
		}
		res.Artifacts = append(res.Artifacts, minPath)
		built++
		log.Debug().Int("bytes", len(data)).Int("minified", len(minified)).Msg("script built")
	}

	if built > 0 && res.OK() {
		res.Notice = fmt.Sprintf("Compiled and minified %d script(s)", built)
	}
	return res, nil
}

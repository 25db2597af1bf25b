package tasks

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/assetpipe/internal/config"
)

// StyleTask compiles every non-partial stylesheet into
// <name>.css, <name>.css.map and <name><min>.css.
type StyleTask struct {
	env  *Env
	path config.ResolvedPath
}

// NewStyleTask creates the style build task.
func NewStyleTask(env *Env) (*StyleTask, error) {
	rp, err := env.Config.Resolve(config.CategoryStyles)
	if err != nil {
		return nil, err
	}
	return &StyleTask{env: env, path: rp}, nil
}

func (t *StyleTask) ID() string        { return IDStyles }
func (t *StyleTask) Name() string      { return "Style Build" }
func (t *StyleTask) Outputs() []string { return []string{t.path.Dest} }

// Run builds every entry stylesheet. An entry that fails leaves its previous
// artifacts in place; the other entries still build.
func (t *StyleTask) Run(ctx context.Context) (Result, error) {
	var res Result

	pattern, files, err := sources(t.path.Glob)
	if err != nil {
		return res, err
	}

	built := 0
	for _, src := range files {
		if strings.HasPrefix(filepath.Base(src), "_") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := t.env.Logger.With().Str("task", IDStyles).Str("file", src).Logger()

		out, err := destFor(pattern, src, t.path.Dest)
		if err != nil {
			res.fail(IDStyles, src, err)
			continue
		}

		stage, err := t.build(ctx, src, replaceExt(out, ".css"))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Msg("stylesheet build failed")
			res.fail(IDStyles, src, err)
			continue
		}

		written, err := stage.commit()
		res.Artifacts = append(res.Artifacts, written...)
		if err != nil {
			log.Error().Err(err).Msg("writing stylesheet failed")
			res.fail(IDStyles, src, err)
			continue
		}
		built++
		log.Debug().Strs("artifacts", written).Msg("stylesheet built")
	}

	if built > 0 && res.OK() {
		res.Notice = fmt.Sprintf("Compiled and minified %d stylesheet(s)", built)
	}
	return res, nil
}

// build compiles, post-processes and minifies one entry file in memory.
func (t *StyleTask) build(ctx context.Context, src, cssPath string) (*staged, error) {
	cfg := t.env.Config

	compiled, err := t.env.Tools.Styles.Compile(ctx, src, cfg.Styles.IncludePaths)
	if err != nil {
		return nil, err
	}

	cssName := filepath.Base(cssPath)
	processed, err := t.env.Tools.CSS.Process(ctx, compiled.Code, cssName)
	if err != nil {
		return nil, err
	}

	minPath := withSuffix(cssPath, cfg.MinSuffix)
	minified, err := t.env.Tools.CSS.Minify(ctx, processed.Code, filepath.Base(minPath))
	if err != nil {
		return nil, err
	}

	code := append([]byte(nil), bytes.TrimRight(processed.Code, "\n")...)
	stage := &staged{}
	if len(processed.Map) > 0 {
		mapPath := cssPath + ".map"
		code = append(code, fmt.Sprintf("\n/*# sourceMappingURL=%s */", filepath.Base(mapPath))...)
		stage.add(cssPath, append(code, '\n'))
		stage.add(mapPath, processed.Map)
	} else {
		stage.add(cssPath, append(code, '\n'))
	}
	stage.add(minPath, minified)
	return stage, nil
}

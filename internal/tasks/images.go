package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/match"
	"github.com/aristath/assetpipe/internal/resilience"
	"github.com/aristath/assetpipe/internal/toolchain"
)

// ImageTask optimizes every image and writes a WebP derivative for formats
// the converter supports.
type ImageTask struct {
	env  *Env
	path config.ResolvedPath
}

// NewImageTask creates the image optimization task.
func NewImageTask(env *Env) (*ImageTask, error) {
	rp, err := env.Config.Resolve(config.CategoryImages)
	if err != nil {
		return nil, err
	}
	return &ImageTask{env: env, path: rp}, nil
}

func (t *ImageTask) ID() string        { return IDImages }
func (t *ImageTask) Name() string      { return "Image Optimization" }
func (t *ImageTask) Outputs() []string { return []string{t.path.Dest} }

type imageStats struct {
	optimized     int
	before, after int64
}

// Run processes the images on a bounded worker group. A file that cannot be
// optimized is copied through unchanged.
func (t *ImageTask) Run(ctx context.Context) (Result, error) {
	var res Result

	pattern, files, err := sources(t.path.Glob)
	if err != nil {
		return res, err
	}

	workers := t.env.Config.Images.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		stats imageStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range files {
		src := src // per-iteration copy (go1.22 loop semantics on go1.21)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			one, st, err := t.process(gctx, pattern, src)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			res.Artifacts = append(res.Artifacts, one.Artifacts...)
			res.Failures = append(res.Failures, one.Failures...)
			stats.optimized += st.optimized
			stats.before += st.before
			stats.after += st.after
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if len(files) > 0 {
		summary := ""
		if saved := savings(stats.before, stats.after); saved != "" {
			summary = " (saved " + saved + ")"
		}
		t.env.output(IDImages, "Minified %d of %d image(s)%s", stats.optimized, len(files), summary)
	}
	return res, nil
}

// process handles one image. The returned error is only non-nil when ctx was
// cancelled mid-way.
func (t *ImageTask) process(ctx context.Context, pattern *match.Pattern, src string) (Result, imageStats, error) {
	var (
		res Result
		st  imageStats
	)
	log := t.env.Logger.With().Str("task", IDImages).Str("file", src).Logger()

	out, err := destFor(pattern, src, t.path.Dest)
	if err != nil {
		res.fail(IDImages, src, err)
		return res, st, nil
	}
	rel, _ := pattern.Rel(src)

	data, err := resilience.ReadFile(ctx, t.env.Retry, src)
	if err != nil {
		if ctx.Err() != nil {
			return res, st, ctx.Err()
		}
		log.Error().Err(err).Msg("reading image failed")
		res.fail(IDImages, src, err)
		return res, st, nil
	}

	optimized, err := t.env.Tools.Images.Compress(ctx, data, src)
	switch {
	case err == nil:
		st.optimized = 1
		t.env.output(IDImages, "%s: saved %s", rel, savings(int64(len(data)), int64(len(optimized))))
	case errors.Is(err, toolchain.ErrNoGain), errors.Is(err, toolchain.ErrUnsupported):
		optimized = data
		t.env.output(IDImages, "%s: already optimized", rel)
	default:
		if ctx.Err() != nil {
			return res, st, ctx.Err()
		}
		log.Warn().Err(err).Msg("image optimization failed, copying original")
		t.env.output(IDImages, "%s: %v", rel, err)
		optimized = data
	}
	st.before = int64(len(data))
	st.after = int64(len(optimized))

	if err := writeFile(out, optimized); err != nil {
		res.fail(IDImages, src, err)
		return res, st, nil
	}
	res.Artifacts = append(res.Artifacts, out)

	conv := t.env.Tools.WebP
	if conv == nil || !conv.Supports(src) {
		return res, st, nil
	}

	webp, err := conv.Convert(ctx, optimized, src)
	if err != nil {
		if ctx.Err() != nil {
			return res, st, ctx.Err()
		}
		log.Warn().Err(err).Msg("webp conversion failed")
		t.env.output(IDImages, "%s: webp: %v", rel, err)
		return res, st, nil
	}

	webpPath := replaceExt(out, conv.Ext())
	if err := writeFile(webpPath, webp); err != nil {
		res.fail(IDImages, src, err)
		return res, st, nil
	}
	res.Artifacts = append(res.Artifacts, webpPath)
	return res, st, nil
}

// savings renders "12 kB - 34.2%", or "" when nothing was saved.
func savings(before, after int64) string {
	if before <= 0 || after >= before {
		return ""
	}
	saved := before - after
	pct := float64(saved) * 100 / float64(before)
	return humanize.Bytes(uint64(saved)) + " - " + humanize.FtoaWithDigits(pct, 1) + "%"
}

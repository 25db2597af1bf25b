package toolchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/assetpipe/internal/config"
)

// Toolchain bundles the transformers the build tasks run.
type Toolchain struct {
	Styles  StyleCompiler
	CSS     CSSProcessor
	Scripts ScriptMinifier
	Images  ImageCompressor
	WebP    ImageConverter // nil when WebP derivatives are disabled or cwebp is missing

	// Missing names the external binaries that could not be resolved.
	Missing []string
}

// New builds a Toolchain from configuration. A missing sass binary does not
// fail construction: the style compiler reports ErrToolMissing for every entry
// so the style task fails while the other tasks still run.
func New(cfg *config.Config, pm *ProcessManager) (*Toolchain, error) {
	esb, err := NewESBuild(cfg.Styles.Targets, cfg.Scripts.KeepLegalComments)
	if err != nil {
		return nil, fmt.Errorf("configuring css processor: %w", err)
	}

	images := NewCompressor(cfg.Images.JPEGQuality, cfg.Images.PNGQuantBinary, pm)
	tc := &Toolchain{
		CSS:     esb,
		Scripts: esb.Scripts(),
		Images:  images,
	}

	sass, err := NewSassCompiler(cfg.Styles.SassBinary, pm)
	switch {
	case err == nil:
		tc.Styles = sass
	case errors.Is(err, ErrToolMissing):
		tc.Styles = missingCompiler{err: err}
		tc.Missing = append(tc.Missing, cfg.Styles.SassBinary)
	default:
		return nil, err
	}

	if !cfg.Images.SkipWebP {
		webp, err := NewCWebP(cfg.Images.CWebPBinary, cfg.Images.WebPQuality, pm)
		switch {
		case err == nil:
			tc.WebP = webp
		case errors.Is(err, ErrToolMissing):
			tc.Missing = append(tc.Missing, cfg.Images.CWebPBinary)
		default:
			return nil, err
		}
	}

	if cfg.Images.PNGQuantBinary != "" && !images.LossyPNG() {
		tc.Missing = append(tc.Missing, cfg.Images.PNGQuantBinary)
	}

	return tc, nil
}

type missingCompiler struct{ err error }

func (m missingCompiler) Compile(_ context.Context, path string, _ []string) (CSS, error) {
	return CSS{}, fmt.Errorf("compiling %s: %w", path, m.err)
}

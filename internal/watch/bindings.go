package watch

import (
	"path/filepath"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/tasks"
)

// DefaultBindings returns the standard watch set: each source category
// rebuilds its own task and reloads, while generated markup and scripts in
// the dist tree only reload.
func DefaultBindings(cfg *config.Config) ([]Binding, error) {
	var bindings []Binding

	for _, c := range []struct {
		cat    config.Category
		taskID string
	}{
		{config.CategoryStyles, tasks.IDStyles},
		{config.CategoryImages, tasks.IDImages},
		{config.CategoryScripts, tasks.IDScripts},
	} {
		rp, err := cfg.Resolve(c.cat)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, Binding{
			Name:   c.taskID,
			Glob:   rp.Glob,
			Tasks:  []string{c.taskID},
			Writes: []string{rp.Dest},
			Reload: true,
		})
	}

	markup, err := cfg.Resolve(config.CategoryMarkup)
	if err != nil {
		return nil, err
	}
	bindings = append(bindings, Binding{
		Name:   "markup",
		Glob:   markup.Glob,
		Reload: true,
	})

	scripts, err := cfg.Resolve(config.CategoryScripts)
	if err != nil {
		return nil, err
	}
	bindings = append(bindings, Binding{
		Name:   "dist-scripts",
		Glob:   filepath.Join(scripts.Dest, "**", "*.js"),
		Reload: true,
	})

	return bindings, nil
}

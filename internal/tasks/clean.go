package tasks

import (
	"context"
	"fmt"
	"os"
)

// CleanTask removes the configured generated artifacts. Missing targets are
// not an error.
type CleanTask struct {
	env     *Env
	targets []string
}

// NewCleanTask creates the clean task.
func NewCleanTask(env *Env) *CleanTask {
	return &CleanTask{env: env, targets: env.Config.CleanTargets()}
}

func (t *CleanTask) ID() string        { return IDClean }
func (t *CleanTask) Name() string      { return "Clean" }
func (t *CleanTask) Outputs() []string { return t.targets }

// Run removes every target and returns once all removals finished.
func (t *CleanTask) Run(ctx context.Context) (Result, error) {
	var res Result
	for _, target := range t.targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := os.RemoveAll(target); err != nil {
			res.fail(IDClean, target, fmt.Errorf("removing: %w", err))
			continue
		}
		t.env.Logger.Debug().Str("task", IDClean).Str("file", target).Msg("removed")
	}
	return res, nil
}

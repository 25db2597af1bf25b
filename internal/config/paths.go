package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mitchellh/hashstructure/v2"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ResolvedPath is a path set entry with the bases applied.
type ResolvedPath struct {
	Category Category
	Glob     string // source glob joined onto its base
	Dest     string // destination directory joined onto the dist base; empty for markup
}

// buildCategories are the categories a build task reads from and writes to.
var buildCategories = []Category{CategoryStyles, CategoryImages, CategoryScripts}

// Resolve returns the path set entry for a category.
func (c *Config) Resolve(cat Category) (ResolvedPath, error) {
	entry, ok := c.Paths.Categories[string(cat)]
	if !ok || entry.Source == "" {
		return ResolvedPath{}, fmt.Errorf("%w: category %q has no source glob", ErrInvalidConfig, cat)
	}

	base := c.Paths.SrcBase
	if entry.InDist {
		base = c.Paths.DistBase
	}

	rp := ResolvedPath{
		Category: cat,
		Glob:     filepath.Join(base, entry.Source),
	}
	if entry.Dest != "" {
		rp.Dest = filepath.Join(c.Paths.DistBase, entry.Dest)
	}
	return rp, nil
}

// CleanTargets returns the clean targets joined onto the dist base.
func (c *Config) CleanTargets() []string {
	targets := make([]string, 0, len(c.Clean.Targets))
	for _, t := range c.Clean.Targets {
		targets = append(targets, filepath.Join(c.Paths.DistBase, t))
	}
	return targets
}

// Validate checks the path set invariant (every build category has both a
// source glob and a destination) and the numeric knobs.
func (c *Config) Validate() error {
	if c.Paths.SrcBase == "" || c.Paths.DistBase == "" {
		return fmt.Errorf("%w: src_base and dist_base are required", ErrInvalidConfig)
	}

	for _, cat := range buildCategories {
		rp, err := c.Resolve(cat)
		if err != nil {
			return err
		}
		if rp.Dest == "" {
			return fmt.Errorf("%w: category %q has no destination", ErrInvalidConfig, cat)
		}
	}
	if _, err := c.Resolve(CategoryMarkup); err != nil {
		return err
	}

	if c.MinSuffix == "" {
		return fmt.Errorf("%w: min_suffix must not be empty", ErrInvalidConfig)
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg_quality %d out of range 1-100", ErrInvalidConfig, c.Images.JPEGQuality)
	}
	if c.Images.WebPQuality < 0 || c.Images.WebPQuality > 100 {
		return fmt.Errorf("%w: webp_quality %d out of range 0-100", ErrInvalidConfig, c.Images.WebPQuality)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Watch.DebounceMillis < 0 || c.Watch.SuppressMillis < 0 {
		return fmt.Errorf("%w: watch windows must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Fingerprint hashes the effective configuration. It is recorded with each
// build run so history entries can be grouped by config.
func (c *Config) Fingerprint() (uint64, error) {
	return hashstructure.Hash(c, hashstructure.FormatV2, nil)
}

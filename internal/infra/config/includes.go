package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fsbridge/internal/domain"
)

const maxIncludeDepth = 10

// includeLoader overlays included files onto one Config. Every file is
// loaded at most once per Load, which also rejects include cycles.
type includeLoader struct {
	cfg     *Config
	visited map[string]bool
}

func includeError(format string, args ...any) error {
	return domain.NewDomainError("config.includes", domain.ErrConfigLoad, fmt.Sprintf(format, args...))
}

// processIncludes merges the files named by cfg.Includes (globs allowed,
// relative to baseDir) into cfg. Later files override earlier ones.
func processIncludes(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if visited == nil {
		visited = make(map[string]bool)
	}
	l := &includeLoader{cfg: cfg, visited: visited}
	return l.include(cfg.Includes, baseDir, depth)
}

func (l *includeLoader) include(patterns []string, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return includeError("max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := l.merge(p, depth+1); err != nil {
				return err
			}
		}
	}
	l.cfg.Includes = nil
	return nil
}

func (l *includeLoader) merge(path string, depth int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return includeError("abs path %q: %v", path, err)
	}
	if l.visited[abs] {
		return includeError("circular include detected for %q", abs)
	}
	l.visited[abs] = true

	if err := validatePermissions(abs); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return includeError("read %q: %v", abs, err)
	}
	if len(data) == 0 {
		return nil
	}

	// Only this file's includes list should survive the decode.
	l.cfg.Includes = nil
	if err := decode(abs, data, l.cfg); err != nil {
		return includeError("%v", err)
	}
	if len(l.cfg.Includes) == 0 {
		return nil
	}
	return l.include(l.cfg.Includes, filepath.Dir(abs), depth)
}

// expandInclude resolves pattern against baseDir. A relative pattern must
// stay inside baseDir. A literal path is returned even when missing so the
// read reports it; a glob that matches nothing yields no paths.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, includeError("path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, includeError("glob %q: %v", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	return matches, nil
}

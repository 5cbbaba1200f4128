package corpus

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude selects the file types the loader understands.
var DefaultInclude = []string{"**/*.jsonl", "**/*.md", "**/*.txt"}

// skippedDirs are never descended into.
var skippedDirs = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
}

func shouldSkipDir(name string) bool {
	for _, d := range skippedDirs {
		if strings.EqualFold(name, d) {
			return true
		}
	}
	return false
}

// MatchesInclude returns true if relPath matches any pattern. An empty
// pattern list includes everything.
func MatchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// MatchesExclude returns true if relPath matches any pattern. An empty
// pattern list excludes nothing.
func MatchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny tries each pattern against the slash-separated path and then
// against the base name alone.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	base := filepath.Base(normalized)

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

package watcher

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is read from the watched directory when a detector is created.
// Each line is a pattern in gitignore syntax matched against file names:
// '#' starts a comment, a leading '!' re-includes names an earlier pattern
// excluded, and the last matching pattern decides.
const IgnoreFile = ".mosaicwatchignore"

// ignoreRule is one compiled exclude pattern.
type ignoreRule struct {
	pattern  string
	negation bool
}

// ignoreList matches file names of a flat directory. Patterns naming
// directories (trailing '/') never match, since tiles are always files.
type ignoreList struct {
	rules []ignoreRule
}

func (l *ignoreList) add(pattern string) {
	// "\ " at the end keeps a literal trailing space.
	escapedSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}
	if escapedSpace {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	var r ignoreRule
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		return
	}
	// The watched directory is the root, so anchoring changes nothing.
	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "**/")
	if pattern == "" || strings.Contains(pattern, "/") {
		return
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return
	}
	r.pattern = pattern
	l.rules = append(l.rules, r)
}

func (l *ignoreList) addFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		l.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// match reports whether name is excluded.
func (l *ignoreList) match(name string) bool {
	ignored := false
	for _, r := range l.rules {
		if ok, _ := filepath.Match(r.pattern, name); ok {
			ignored = !r.negation
		}
	}
	return ignored
}

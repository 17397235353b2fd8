// Package pattern matches watched paths against glob patterns.
//
// Paths are always matched in slash form relative to the watch root, so
// "**/*.md" behaves the same on every platform. The only dialect shipped is
// doublestar ("**" spans directories); other dialects plug in through the
// Matcher interface.
package pattern

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher reports whether a relative slash path matches.
type Matcher interface {
	Match(path string) bool
	Pattern() string
}

// Glob is a doublestar glob.
type Glob struct {
	pattern string
}

// NewGlob validates and returns a glob matcher.
func NewGlob(p string) (*Glob, error) {
	p = Normalize(p)
	if p == "" {
		return nil, ErrEmptyPattern
	}
	if !doublestar.ValidatePattern(p) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
	}
	return &Glob{pattern: p}, nil
}

// Match implements Matcher.
func (g *Glob) Match(path string) bool {
	ok, err := doublestar.Match(g.pattern, Normalize(path))
	return err == nil && ok
}

// Pattern implements Matcher.
func (g *Glob) Pattern() string {
	return g.pattern
}

// Normalize converts a path or pattern to slash form without a leading "./".
func Normalize(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	return strings.TrimPrefix(p, "./")
}

// Set is an include/exclude filter.
//
// A path is allowed when it matches at least one include and no exclude.
type Set struct {
	include []Matcher
	exclude []Matcher
}

// NewSet compiles include and exclude globs.
func NewSet(include, exclude []string) (*Set, error) {
	s := &Set{}
	for _, p := range include {
		g, err := NewGlob(p)
		if err != nil {
			return nil, fmt.Errorf("include pattern: %w", err)
		}
		s.include = append(s.include, g)
	}
	for _, p := range exclude {
		g, err := NewGlob(p)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern: %w", err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Allow reports whether path should be surfaced.
func (s *Set) Allow(path string) bool {
	if s.Excluded(path) {
		return false
	}
	for _, m := range s.include {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// Excluded reports whether path matches an exclude pattern.
func (s *Set) Excluded(path string) bool {
	for _, m := range s.exclude {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// ExcludedDir reports whether a whole directory is excluded, so a walk can
// prune it. "node_modules/**" excludes "node_modules" because a descendant
// at any depth would be excluded. "docs/*" does not: "docs/sub/a.md" can
// still be allowed.
func (s *Set) ExcludedDir(dir string) bool {
	dir = strings.TrimSuffix(Normalize(dir), "/")
	if dir == "" || dir == "." {
		return false
	}
	child := dir + "/" + probeName
	grandchild := child + "/" + probeName
	for _, m := range s.exclude {
		if m.Match(child) && m.Match(grandchild) {
			return true
		}
	}
	return false
}

// probeName stands in for "any entry" when testing directory exclusion.
const probeName = "\x00probe"

// Rules is an ordered list of patterns, matched first to last.
type Rules[T any] struct {
	entries []rule[T]
}

type rule[T any] struct {
	matcher Matcher
	value   T
}

// Add appends a pattern and its value. Order of Add calls is match order.
func (r *Rules[T]) Add(p string, value T) error {
	g, err := NewGlob(p)
	if err != nil {
		return err
	}
	r.entries = append(r.entries, rule[T]{matcher: g, value: value})
	return nil
}

// First returns the value of the first pattern matching path.
func (r *Rules[T]) First(path string) (T, string, bool) {
	for _, e := range r.entries {
		if e.matcher.Match(path) {
			return e.value, e.matcher.Pattern(), true
		}
	}
	var zero T
	return zero, "", false
}

// Len returns the number of rules.
func (r *Rules[T]) Len() int {
	return len(r.entries)
}

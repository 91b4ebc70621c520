// Package filter implements the rsync-style include/exclude matching engine used by connectors
// to scope enumeration. A filter is parsed once from a single expression string and can then be
// applied to any number of candidate paths relative to an asset root.
//
// Pattern syntax: '?' matches one non-separator character, '*' matches zero or more non-separator
// characters, and '**' matches zero or more characters including separators. A pattern containing
// a '/' is anchored to the asset root; a bare pattern matches a path segment at any depth.
//
// Rules are evaluated in declaration order and the first matching rule decides a path. A path with
// no matching rule is included, so excluding everything outside an include set requires an explicit
// trailing catch-all such as "+Finance/**, -**".
package filter

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Rule is a single include or exclude pattern in declaration order.
type Rule struct {
	Include bool
	Pattern string

	// full matches the whole candidate prefix for anchored patterns, or a single path
	// segment for unanchored ones.
	full glob.Glob
	// anchored is true when the pattern contains a separator and therefore only matches
	// relative to the asset root.
	anchored bool
	// prefixes holds depth-indexed globs used to decide whether a directory prefix could
	// still lead to paths matched by an anchored include pattern. prefixes[k] covers a
	// prefix of k+1 segments.
	prefixes []glob.Glob
	// segmentCount is the number of '/'-separated segments in an anchored pattern.
	segmentCount int
	// doubleStarIndex is the index of the first pattern segment containing "**", or -1.
	// Segments at or below that index match arbitrarily deep prefixes.
	doubleStarIndex int
	// doubleStarPrefix matches the literal segments leading up to doubleStarIndex.
	doubleStarPrefix glob.Glob
}

// Filter is a parsed, immutable rule set.
type Filter struct {
	rules []Rule
}

// Parse builds a filter from a single expression string such as "sub1 -tmp" or
// "+Finance/**, -**". A nil error guarantees the filter is usable for any path.
func Parse(expr string) (*Filter, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	f := &Filter{}
	pendingSense := 0 // 0 none, 1 include, -1 exclude (set by a --include/--exclude flag token)

	for _, token := range tokens {
		include := true
		pattern := token

		switch {
		case pendingSense != 0:
			include = pendingSense > 0
			pendingSense = 0
		case token == "--include":
			pendingSense = 1
			continue
		case token == "--exclude":
			pendingSense = -1
			continue
		case strings.HasPrefix(token, "--include="):
			pattern = strings.TrimPrefix(token, "--include=")
		case strings.HasPrefix(token, "--exclude="):
			include = false
			pattern = strings.TrimPrefix(token, "--exclude=")
		case strings.HasPrefix(token, "+"):
			pattern = token[1:]
		case strings.HasPrefix(token, "-"):
			include = false
			pattern = token[1:]
		}

		if pattern == "" {
			return nil, errors.Errorf("empty pattern in filter expression %q", expr)
		}

		rule, err := compileRule(include, pattern)
		if err != nil {
			return nil, err
		}

		f.rules = append(f.rules, *rule)
	}

	if pendingSense != 0 {
		return nil, errors.Errorf("dangling --include/--exclude in filter expression %q", expr)
	}

	return f, nil
}

func compileRule(include bool, pattern string) (*Rule, error) {
	pattern = strings.TrimPrefix(strings.ReplaceAll(pattern, "\\", "/"), "/")

	full, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, errors.Wrapf(err, "invalid filter pattern %q", pattern)
	}

	rule := &Rule{
		Include:         include,
		Pattern:         pattern,
		full:            full,
		anchored:        strings.Contains(pattern, "/"),
		doubleStarIndex: -1,
	}

	if rule.anchored && include {
		segments := strings.Split(pattern, "/")
		rule.segmentCount = len(segments)
		rule.prefixes = make([]glob.Glob, 0, len(segments)-1)
		for k := 1; k < len(segments); k++ {
			g, err := glob.Compile(strings.Join(segments[:k], "/"), '/')
			if err != nil {
				return nil, errors.Wrapf(err, "invalid filter pattern %q", pattern)
			}
			rule.prefixes = append(rule.prefixes, g)
		}

		for i, seg := range segments {
			if strings.Contains(seg, "**") {
				rule.doubleStarIndex = i
				if i > 0 {
					g, err := glob.Compile(strings.Join(segments[:i], "/"), '/')
					if err != nil {
						return nil, errors.Wrapf(err, "invalid filter pattern %q", pattern)
					}
					rule.doubleStarPrefix = g
				}
				break
			}
		}
	}

	return rule, nil
}

// matchesPrefix reports whether the rule decides the given path prefix. descend is true when an
// include rule does not match the prefix itself but could still match deeper paths, which keeps
// traversal alive for anchored patterns like "Finance/**" when evaluating the prefix "Finance".
func (r *Rule) matchesPrefix(prefix string, depth int) (matched bool, descend bool) {
	if r.anchored {
		if r.full.Match(prefix) {
			return true, false
		}

		if !r.Include {
			return false, false
		}

		if depth < r.segmentCount && r.prefixes[depth-1].Match(prefix) {
			return false, true
		}

		// A "**" segment matches arbitrarily deep prefixes, so anything under the
		// literal lead-in can still produce matches.
		if r.doubleStarIndex >= 0 && depth > r.doubleStarIndex {
			if r.doubleStarIndex == 0 {
				return false, true
			}

			segments := strings.SplitN(prefix, "/", r.doubleStarIndex+1)
			if len(segments) > r.doubleStarIndex &&
				r.doubleStarPrefix.Match(strings.Join(segments[:r.doubleStarIndex], "/")) {
				return false, true
			}
		}

		return false, false
	}

	// Unanchored patterns match against the final segment at any depth.
	segment := prefix
	if idx := strings.LastIndexByte(prefix, '/'); idx >= 0 {
		segment = prefix[idx+1:]
	}

	return r.full.Match(segment), false
}

// Includes decides a root-relative path. Evaluation walks the path's ancestor prefixes from the
// root down; at each prefix the first rule to match decides that prefix. An excluded ancestor
// excludes the whole subtree. A path with no deciding rule is included.
func (f *Filter) Includes(path string) bool {
	if len(f.rules) == 0 {
		return true
	}

	path = strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "/")
	path = strings.TrimPrefix(path, "./")
	if path == "" {
		return true
	}

	segments := strings.Split(path, "/")
	for depth := 1; depth <= len(segments); depth++ {
		prefix := strings.Join(segments[:depth], "/")
		final := depth == len(segments)

		// An earlier include rule that could still match deeper paths shields this prefix
		// from later subtree excludes, without deciding the prefix itself. At the final
		// depth there is nothing deeper, so only actual matches count.
		shielded := false

		for i := range f.rules {
			rule := &f.rules[i]
			matched, descend := rule.matchesPrefix(prefix, depth)
			if matched {
				if rule.Include {
					break
				}
				if final || !shielded {
					return false
				}
				break
			}
			if descend && !final {
				shielded = true
			}
		}
	}

	return true
}

// Rules exposes the parsed rules in declaration order, for diagnostics.
func (f *Filter) Rules() []Rule {
	return f.rules
}

package router

import "strings"

// MatcherOptions configures pattern matching on action types.
type MatcherOptions struct {
	Separator        string // segment separator, "." by default
	OnlyFinalSegment bool   // "#" is only allowed as the last segment
}

// MakeMatcher returns a func(pattern, actionType string) bool. "*" and "+"
// match one segment, "#" matches zero or more.
func MakeMatcher(opts ...MatcherOptions) func(pattern, actionType string) bool {
	separator := "."
	onlyFinal := false
	if len(opts) > 0 {
		if opts[0].Separator != "" {
			separator = opts[0].Separator
		}
		onlyFinal = opts[0].OnlyFinalSegment
	}

	return func(pattern, actionType string) bool {
		if pattern == actionType {
			return true
		}
		p := strings.Split(pattern, separator)
		t := strings.Split(actionType, separator)
		if onlyFinal {
			for i, part := range p {
				if part == "#" && i != len(p)-1 {
					return false
				}
			}
		}
		return matchSegments(p, t)
	}
}

// matchSegments walks the pattern keeping the set of reachable type
// prefixes.
func matchSegments(pattern, segments []string) bool {
	n := len(segments)
	reach := make([]bool, n+1)
	next := make([]bool, n+1)
	reach[0] = true

	for _, part := range pattern {
		for j := range next {
			next[j] = false
		}
		switch part {
		case "#":
			seen := false
			for j := 0; j <= n; j++ {
				seen = seen || reach[j]
				next[j] = seen
			}
		case "*", "+":
			for j := 1; j <= n; j++ {
				next[j] = reach[j-1]
			}
		default:
			for j := 1; j <= n; j++ {
				next[j] = reach[j-1] && part == segments[j-1]
			}
		}
		reach, next = next, reach
	}
	return reach[n]
}

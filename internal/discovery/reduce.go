package discovery

import (
	"sort"
	"strings"
)

// maxReduceRounds caps Discover on pathological inputs.
const maxReduceRounds = 64

// CommonPrefix returns the longest common prefix of s and t.
func CommonPrefix(s, t string) string {
	n := len(s)
	if len(t) < n {
		n = len(t)
	}
	for i := 0; i < n; i++ {
		if s[i] != t[i] {
			return s[:i]
		}
	}
	return s[:n]
}

// Reduce maps every URI to the longest prefix it shares with any other URI
// in the set and returns the resulting prefix set, sorted. A shared prefix
// that does not reach past the URI's scheme and host is not a namespace
// candidate; such a URI stands for itself.
func Reduce(uris []string) []string {
	set := dedupe(uris)
	if len(set) < 2 {
		return set
	}
	found := make(map[string]struct{})
	for i, u := range set {
		best := ""
		for j, v := range set {
			if i == j {
				continue
			}
			if p := CommonPrefix(u, v); len(p) > len(best) {
				best = p
			}
		}
		if len(best) < minPrefixLen(u) {
			best = u
		}
		found[best] = struct{}{}
	}
	return sortedKeys(found)
}

// minPrefixLen is the shortest useful namespace prefix of u: past the
// authority for URLs, one character otherwise.
func minPrefixLen(u string) int {
	scheme := strings.Index(u, "://")
	if scheme < 0 {
		return 1
	}
	rest := u[scheme+3:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return len(u)
	}
	return scheme + 3 + slash + 1
}

// Discover applies Reduce until the candidate set stops shrinking and returns
// the last set. The result is a clustering aid for curators of unmapped
// identifiers, not a finished mapping.
func Discover(uris []string) []string {
	current := dedupe(uris)
	for round := 0; round < maxReduceRounds; round++ {
		next := Reduce(current)
		if len(next) >= len(current) {
			return current
		}
		current = next
	}
	return current
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

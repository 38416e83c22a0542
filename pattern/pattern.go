// Package pattern matches routing keys against queue binding patterns.
package pattern

// Match reports whether key matches the binding pattern. Every '*' in the
// pattern matches any possibly empty substring; all other bytes match
// themselves. Matching is anchored at both ends.
func Match(key, pattern string) bool {
	ki, pi := 0, 0
	star, mark := -1, 0

	for ki < len(key) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, ki
			pi++
		case pi < len(pattern) && pattern[pi] == key[ki]:
			pi++
			ki++
		case star >= 0:
			// Backtrack: widen the last wildcard by one byte.
			mark++
			ki = mark
			pi = star + 1
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

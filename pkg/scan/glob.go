// Clients list resident keys with Redis style glob patterns; the following module implements glob matching.

package scan

import (
	"fmt"
	"iter"

	"v.io/v23/glob"
)

// MatchGlob filters the `keys` stream down to the keys matching the `pattern` glob.
func MatchGlob(pattern string, keys iter.Seq[string]) (iter.Seq[string], error) {
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
	}
	return func(yield func(string) bool) {
		for key := range keys {
			if parsedPattern.Head().Match(key) {
				if !yield(key) {
					return
				}
			}
		}
	}, nil
}

package typeahead

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"

	"sunnyside/weather"
)

// normalize case-folds s. Casers are stateful, so each call gets its own.
func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// rank drops candidates whose label repeats an earlier one, orders the rest
// by Jaro-Winkler similarity of name to query (stable for ties) and keeps at
// most limit.
func rank(query string, cities []weather.City, limit int) []weather.City {
	q := normalize(query)
	seen := make(map[string]bool, len(cities))

	type scored struct {
		city  weather.City
		score float64
	}
	var list []scored
	for _, c := range cities {
		key := normalize(c.Label())
		if seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, scored{city: c, score: matchr.JaroWinkler(q, normalize(c.Name), false)})
	}

	slices.SortStableFunc(list, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]weather.City, len(list))
	for i, s := range list {
		out[i] = s.city
	}
	return out
}

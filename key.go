package cassync

import "reflect"

// Key is the ordered tuple a request is cached under. Order and length are
// significant: invalidation matches keys position by position, and prefix
// invalidation relies on shorter keys being prefixes of longer ones.
type Key []any

type wildcard struct{}

func (wildcard) String() string { return "*" }

// Wildcard stands in for a params field that could not be validated. In an
// invalidation pattern it matches any value at its position.
var Wildcard any = wildcard{}

// Matches reports whether live is selected by the pattern k.
// Every position of k must equal live's value there or be Wildcard. With
// exact, the lengths must also match; otherwise k selects every live key
// it is a prefix of.
func (k Key) Matches(live Key, exact bool) bool {
	if exact && len(live) != len(k) {
		return false
	}
	for i, part := range k {
		if part == Wildcard {
			continue
		}
		if i >= len(live) || !reflect.DeepEqual(part, live[i]) {
			return false
		}
	}
	return true
}

// HasWildcard reports whether any position of k is Wildcard.
func (k Key) HasWildcard() bool {
	for _, part := range k {
		if part == Wildcard {
			return true
		}
	}
	return false
}

package event

// Filter selects events by kind, author, and tag, matching spec.md
// §6's "filter supports at minimum kinds, authors, and #p/#d tag
// filters". A zero-value field means "don't filter on this".
type Filter struct {
	Kinds   []uint16
	Authors []PublicKey
	Tags    map[string][]string // e.g. {"p": [...]} for a "#p" filter
}

// MatchFilter reports whether e satisfies every non-empty constraint
// in f. Per spec.md §6, MatchFilter is total: it never panics or
// errors, only returns a boolean.
func MatchFilter(f Filter, e *Event) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsAuthor(f.Authors, e.PubKey) {
		return false
	}
	for name, wanted := range f.Tags {
		if len(wanted) == 0 {
			continue
		}
		if !anyTagMatches(e, name, wanted) {
			return false
		}
	}
	return true
}

func containsKind(kinds []uint16, k uint16) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func containsAuthor(authors []PublicKey, pk PublicKey) bool {
	for _, a := range authors {
		if a == pk {
			return true
		}
	}
	return false
}

func anyTagMatches(e *Event, name string, wanted []string) bool {
	values := e.TagValues(name)
	for _, v := range values {
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	}
	return false
}

package scan

// SeenSet tracks which entity ids a run has already encountered, across
// every view the run scans. Not safe for concurrent use; the crawl runs a
// single logical thread.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet returns an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// MarkIfNew records the id and reports whether this was its first sighting.
// Blank ids are never new.
func (s *SeenSet) MarkIfNew(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Has reports whether the id was seen before.
func (s *SeenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len reports how many distinct ids have been seen.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

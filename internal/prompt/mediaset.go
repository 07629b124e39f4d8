package prompt

import "github.com/clementinehq/clementine/internal/session"

// mediaSet is an insertion-ordered set of media references keyed by
// MediaAssetID. The order references are added is the order images are
// attached to the AI request, which affects model output, so insertion must
// follow template-scan order (left to right) and duplicates keep their
// first-seen position.
type mediaSet struct {
	seen map[string]struct{}
	refs []session.MediaReference
}

func newMediaSet() *mediaSet {
	return &mediaSet{seen: make(map[string]struct{})}
}

// Add inserts the reference unless its MediaAssetID is already present.
func (s *mediaSet) Add(ref session.MediaReference) {
	if _, ok := s.seen[ref.MediaAssetID]; ok {
		return
	}
	s.seen[ref.MediaAssetID] = struct{}{}
	s.refs = append(s.refs, ref)
}

// Refs returns the references in insertion order.
func (s *mediaSet) Refs() []session.MediaReference {
	return s.refs
}

// Package selection tracks which documents scope the next question.
package selection

import (
	"errors"

	"kb-assistant-be/internal/entity"
)

var ErrUnknownDocument = errors.New("document is not in the current document list")

// Set is the document selection of one session. It is not safe for
// concurrent use; the owning orchestrator serializes access.
//
// The selection is always a subset of the ids returned by the last Refresh.
type Set struct {
	docs     []entity.DocumentRef
	known    map[entity.DocumentID]struct{}
	selected map[entity.DocumentID]struct{}

	initialized bool

	// ids restored from a saved conversation before the first listing arrived
	pending []entity.DocumentID
}

func New() *Set {
	return &Set{
		known:    make(map[entity.DocumentID]struct{}),
		selected: make(map[entity.DocumentID]struct{}),
	}
}

// Refresh replaces the known document list. The first refresh selects every
// document; later refreshes only prune ids that disappeared.
func (s *Set) Refresh(docs []entity.DocumentRef) {
	s.docs = make([]entity.DocumentRef, 0, len(docs))
	s.known = make(map[entity.DocumentID]struct{}, len(docs))
	for _, d := range docs {
		if d.Id == "" {
			continue
		}
		if _, dup := s.known[d.Id]; dup {
			continue
		}
		s.known[d.Id] = struct{}{}
		s.docs = append(s.docs, d)
	}

	if !s.initialized {
		s.initialized = true
		if s.pending != nil {
			s.selected = make(map[entity.DocumentID]struct{})
			s.restoreKnown(s.pending)
			s.pending = nil
			return
		}
		s.selectAll()
		return
	}

	for id := range s.selected {
		if _, ok := s.known[id]; !ok {
			delete(s.selected, id)
		}
	}
}

// Toggle flips membership of a known document.
func (s *Set) Toggle(id entity.DocumentID) error {
	if _, ok := s.known[id]; !ok {
		return ErrUnknownDocument
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	return nil
}

func (s *Set) SelectAll() {
	s.selectAll()
}

func (s *Set) Clear() {
	s.selected = make(map[entity.DocumentID]struct{})
}

// AdoptUploaded selects a freshly uploaded document. If the listing that
// followed the upload does not contain it yet, the document is added to the
// known list, since the store has just confirmed it exists.
func (s *Set) AdoptUploaded(doc entity.DocumentRef) {
	if doc.Id == "" {
		return
	}
	if _, ok := s.known[doc.Id]; !ok {
		s.known[doc.Id] = struct{}{}
		s.docs = append(s.docs, doc)
	}
	s.selected[doc.Id] = struct{}{}
}

// Restore replaces the selection with the given ids, keeping only those that
// are present in the last listing. Before the first listing the ids are held
// and applied by the first Refresh.
func (s *Set) Restore(ids []entity.DocumentID) {
	if !s.initialized {
		s.pending = append([]entity.DocumentID{}, ids...)
		return
	}
	s.selected = make(map[entity.DocumentID]struct{})
	s.restoreKnown(ids)
}

func (s *Set) Contains(id entity.DocumentID) bool {
	_, ok := s.selected[id]
	return ok
}

func (s *Set) Len() int {
	return len(s.selected)
}

func (s *Set) Initialized() bool {
	return s.initialized
}

// Selected returns the selected ids in document-list order. Ids restored
// before the first listing are returned as-is until they can be checked.
func (s *Set) Selected() []entity.DocumentID {
	if !s.initialized && s.pending != nil {
		return append([]entity.DocumentID{}, s.pending...)
	}
	out := make([]entity.DocumentID, 0, len(s.selected))
	for _, d := range s.docs {
		if _, ok := s.selected[d.Id]; ok {
			out = append(out, d.Id)
		}
	}
	return out
}

func (s *Set) Documents() []entity.DocumentRef {
	return append([]entity.DocumentRef(nil), s.docs...)
}

func (s *Set) selectAll() {
	s.selected = make(map[entity.DocumentID]struct{}, len(s.docs))
	for _, d := range s.docs {
		s.selected[d.Id] = struct{}{}
	}
}

func (s *Set) restoreKnown(ids []entity.DocumentID) {
	for _, id := range ids {
		if _, ok := s.known[id]; ok {
			s.selected[id] = struct{}{}
		}
	}
}

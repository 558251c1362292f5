// Package graph owns the shared point set and the at-most-one upload
// session that can replace it wholesale. Every operation is serialized
// behind a single lock covering both, so concurrent connection workers
// observe a linearizable history.
package graph

import (
	"sync"

	"github.com/pkg/errors"

	"hulld/geo"
)

var (
	// ErrBusy means another connection owns the active upload session.
	ErrBusy = errors.New("upload in progress")
	// ErrInvalidCount means the announced point count is not positive.
	ErrInvalidCount = errors.New("point count must be positive")
	// ErrNoUpload and ErrNotOwner signal coordinator bugs, not user input:
	// the per-connection gating should make them unreachable.
	ErrNoUpload = errors.New("no upload in progress")
	ErrNotOwner = errors.New("upload owned by another connection")
)

// uploadSession tracks an in-progress bulk replacement of the point set.
type uploadSession struct {
	owner     string
	remaining int
	buffer    []geo.Point
}

// Store is the single shared mutable state of the process. The zero value
// is not usable, call NewStore.
type Store struct {
	mu        sync.Mutex
	points    []geo.Point
	session   *uploadSession
	observers []func(area float64)
}

// NewStore returns a Store with an empty point set and no upload session.
func NewStore() *Store {
	return &Store{points: make([]geo.Point, 0)}
}

// BeginUpload installs a fresh upload session owned by owner, expecting n
// points. The busy check is repeated here under the lock even though the
// session coordinator gates first, so racing Newgraph commands from
// different connections cannot both win.
func (s *Store) BeginUpload(owner string, n int) error {
	if n <= 0 {
		return ErrInvalidCount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.owner != owner {
		return ErrBusy
	}
	s.session = &uploadSession{owner: owner, remaining: n, buffer: make([]geo.Point, 0, n)}
	return nil
}

// ContributePoint appends p to the active session owned by owner. When the
// expected count is reached the point set is swapped for the buffer, the
// session is cleared, and done is true.
func (s *Store) ContributePoint(owner string, p geo.Point) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.session == nil:
		return false, ErrNoUpload
	case s.session.owner != owner:
		return false, ErrNotOwner
	}
	s.session.buffer = append(s.session.buffer, p)
	s.session.remaining--
	if s.session.remaining == 0 {
		s.points = s.session.buffer
		s.session = nil
		return true, nil
	}
	return false, nil
}

// AbandonUpload discards the session iff owned by owner, leaving the point
// set at its prior value. A no-op otherwise, so it is always safe to call
// on connection teardown.
func (s *Store) AbandonUpload(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.owner == owner {
		s.session = nil
	}
}

// UploadOwner reports the owner of the active upload session, if any.
func (s *Store) UploadOwner() (owner string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return "", false
	}
	return s.session.owner, true
}

// AddPoint appends p to the point set. Duplicates are allowed and the
// operation is independent of any upload session.
func (s *Store) AddPoint(p geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

// RemovePoint removes every point exactly equal to p and returns how many
// were removed. Removing an absent point is not an error.
func (s *Store) RemovePoint(p geo.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.points[:0]
	for _, q := range s.points {
		if q != p {
			kept = append(kept, q)
		}
	}
	removed := len(s.points) - len(kept)
	s.points = kept
	return removed
}

// HullArea computes the convex hull area over a point-in-time snapshot of
// the point set. The computation runs under the lock so it never observes
// a half-applied mutation. Observers are notified under the same lock, so
// concurrent queries deliver their areas in computation order.
func (s *Store) HullArea() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	hull := geo.ConvexHull(s.points)
	area := geo.PolygonArea(hull)
	for _, fn := range s.observers {
		fn(area)
	}
	return area
}

// Points returns a copy of the current point set.
func (s *Store) Points() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geo.Point(nil), s.points...)
}

// OnHullArea subscribes fn to be called after every HullArea query. The
// callback runs while the store lock is held and must not call back into
// the store. Subscriptions cannot be removed; register them before
// serving traffic.
func (s *Store) OnHullArea(fn func(area float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

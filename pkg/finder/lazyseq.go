// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package finder

// LazySequence is a pull-based sequence that memoizes what it has produced:
// the underlying iterator is advanced only as far as a caller has asked, and
// each element is produced exactly once no matter how many times the
// sequence is walked.
type LazySequence[T any] struct {
	pull  func() (T, bool)
	cache []T
	done  bool
}

// NewLazySequence wraps a pull function; pull returns the next element and
// true, or a zero value and false when exhausted.  pull is never called
// again after it reports exhaustion.
func NewLazySequence[T any](pull func() (T, bool)) *LazySequence[T] {
	return &LazySequence[T]{pull: pull}
}

// LazySliceSequence is a LazySequence over an already-materialized slice.
func LazySliceSequence[T any](elems []T) *LazySequence[T] {
	return &LazySequence[T]{cache: elems, done: true}
}

// Get returns the i'th element, advancing the underlying iterator as needed.
func (s *LazySequence[T]) Get(i int) (T, bool) {
	for !s.done && len(s.cache) <= i {
		s.advance()
	}
	if i < len(s.cache) {
		return s.cache[i], true
	}
	var zero T
	return zero, false
}

// First is Get(0).
func (s *LazySequence[T]) First() (T, bool) {
	return s.Get(0)
}

// Empty reports whether the sequence has no elements, pulling at most one.
func (s *LazySequence[T]) Empty() bool {
	_, ok := s.Get(0)
	return !ok
}

// All drains the underlying iterator and returns every element.  The
// returned slice is the cache itself; callers must not mutate it.
func (s *LazySequence[T]) All() []T {
	for !s.done {
		s.advance()
	}
	return s.cache
}

func (s *LazySequence[T]) advance() {
	elem, ok := s.pull()
	if !ok {
		s.done = true
		s.pull = nil
		return
	}
	s.cache = append(s.cache, elem)
}

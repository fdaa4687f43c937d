// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implements a small generic set over map[T]struct{}.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

// Set of comparable values.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set, optionally with room reserved for capacity[0] elements.
func Make[T comparable](capacity ...int) Set[T] {
	var n int
	if len(capacity) > 0 {
		n = capacity[0]
	}
	return make(Set[T], n)
}

// MakeWith returns a Set holding the given elements.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has reports whether element is in the set.
func (s Set[T]) Has(element T) bool {
	_, found := s[element]
	return found
}

// Insert adds the elements to the set.
func (s Set[T]) Insert(elements ...T) {
	for _, element := range elements {
		s[element] = struct{}{}
	}
}

// Sub returns a new Set with the elements of s that are not in other.
func (s Set[T]) Sub(other Set[T]) Set[T] {
	diff := Make[T]()
	for element := range s {
		if !other.Has(element) {
			diff.Insert(element)
		}
	}
	return diff
}

// Sorted returns the elements of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stats accumulates batch outcomes across workers. All methods are safe for
// concurrent use.
type Stats struct {
	mu        sync.Mutex
	succeeded int
	skipped   int
	failures  map[ErrorKind]int
}

// Success records one successful paper.
func (s *Stats) Success() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
}

// Skip records one paper skipped by batch filters.
func (s *Stats) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// Failure records one failed paper under its error kind.
func (s *Stats) Failure(kind ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[ErrorKind]int)
	}
	s.failures[kind]++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Succeeded int
	Skipped   int
	Failures  map[ErrorKind]int
}

// Total returns the number of papers accounted for.
func (s Snapshot) Total() int {
	n := s.Succeeded + s.Skipped
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// Failed returns the number of failed papers.
func (s Snapshot) Failed() int {
	n := 0
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// HasFailures reports whether any paper failed.
func (s Snapshot) HasFailures() bool {
	return s.Failed() > 0
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Succeeded: s.succeeded, Skipped: s.skipped}
	if len(s.failures) > 0 {
		snap.Failures = make(map[ErrorKind]int, len(s.failures))
		for k, v := range s.failures {
			snap.Failures[k] = v
		}
	}
	return snap
}

// String renders the snapshot as a one-line summary for batch output.
func (s Snapshot) String() string {
	parts := []string{
		fmt.Sprintf("succeeded=%d", s.Succeeded),
		fmt.Sprintf("skipped=%d", s.Skipped),
	}
	kinds := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.Failures[ErrorKind(k)]))
	}
	return strings.Join(parts, " ")
}

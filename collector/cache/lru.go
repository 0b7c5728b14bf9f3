// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"strings"
	"sync"
	"time"
)

// lruNode is one resident entry in the memory tier's recency list.
type lruNode struct {
	key   string
	entry Entry
	size  int64
	prev  *lruNode
	next  *lruNode
}

// lruStore is the in-memory tier: a byte-budgeted LRU over cache entries.
// The list head is the most recently used node. Expired entries are dropped
// lazily on read.
type lruStore struct {
	mu        sync.Mutex
	maxBytes  int64
	curBytes  int64
	items     map[string]*lruNode
	head      *lruNode
	tail      *lruNode
	evictions int64
	clock     Clock
}

func newLRUStore(maxBytes int64, clock Clock) *lruStore {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &lruStore{
		maxBytes: maxBytes,
		items:    make(map[string]*lruNode),
		clock:    clock,
	}
}

// get returns the entry if resident and unexpired, updating recency.
func (s *lruStore) get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	if !node.entry.Deadline.IsZero() && !s.clock.Now().Before(node.entry.Deadline) {
		s.unlink(node)
		delete(s.items, key)
		s.curBytes -= node.size
		return Entry{}, false
	}
	s.moveToFront(node)
	return node.entry, true
}

// set inserts or replaces an entry, evicting from the tail until the byte
// budget holds.
func (s *lruStore) set(key string, entry Entry) {
	size := entrySize(key, entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.items[key]; ok {
		s.curBytes += size - node.size
		node.entry = entry
		node.size = size
		s.moveToFront(node)
	} else {
		node = &lruNode{key: key, entry: entry, size: size}
		s.items[key] = node
		s.pushFront(node)
		s.curBytes += size
	}

	for s.curBytes > s.maxBytes && s.tail != nil {
		victim := s.tail
		s.unlink(victim)
		delete(s.items, victim.key)
		s.curBytes -= victim.size
		s.evictions++
	}
}

func (s *lruStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.items[key]; ok {
		s.unlink(node)
		delete(s.items, key)
		s.curBytes -= node.size
	}
}

// sweepPrefix removes every entry whose key starts with prefix, returning
// the count. An empty prefix clears the tier.
func (s *lruStore) sweepPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, node := range s.items {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		s.unlink(node)
		delete(s.items, key)
		s.curBytes -= node.size
		removed++
	}
	return removed
}

// sweepNegative removes negative entries under prefix, returning the count.
func (s *lruStore) sweepNegative(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, node := range s.items {
		if !node.entry.Negative {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		s.unlink(node)
		delete(s.items, key)
		s.curBytes -= node.size
		removed++
	}
	return removed
}

func (s *lruStore) evictionCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func (s *lruStore) bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curBytes
}

func (s *lruStore) pushFront(node *lruNode) {
	node.prev = nil
	node.next = s.head
	if s.head != nil {
		s.head.prev = node
	}
	s.head = node
	if s.tail == nil {
		s.tail = node
	}
}

func (s *lruStore) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		s.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		s.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

func (s *lruStore) moveToFront(node *lruNode) {
	if s.head == node {
		return
	}
	s.unlink(node)
	s.pushFront(node)
}

// entrySize approximates resident bytes: payload plus key and fixed
// bookkeeping overhead.
func entrySize(key string, entry Entry) int64 {
	return int64(len(key) + len(entry.Payload) + len(entry.Reason) + 96)
}

// Clock abstracts time for deadline checks; tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Package dlinfo is the bounded per-task diagnostic-timing store (C10):
// a capacity-N LRU of Info records, populated by internal/worker when a
// task finishes (total time and resource size only) and read back for the
// debug API surface. Grounded on
// internal/lru.Map, generalized here the way the teacher's
// internal/api/server.go reads small bounded side-tables for its debug
// endpoints.
package dlinfo

import (
	"sync"

	"project-tachyon/internal/lru"
)

// Info is one task's timing/resource breakdown, matching §3's fields.
type Info struct {
	DNSMs        int64
	ConnectMs    int64
	TLSMs        int64
	FirstSendMs  int64
	FirstRecvMs  int64
	RedirectMs   int64
	TotalMs      int64
	ResourceSize int64
	ServerAddr   string
	DNSServers   []string
}

// Store is a capacity-bounded LRU of Info keyed by task id (§4.10).
type Store struct {
	mu       sync.Mutex
	m        *lru.Map[uint32, Info]
	capacity int
}

// New returns a Store with the given capacity. capacity == 0 drops every
// write (§4.10).
func New(capacity int) *Store {
	return &Store{m: lru.New[uint32, Info](), capacity: capacity}
}

// Insert records info for taskID, evicting the LRU entry first if the
// store is at capacity and taskID is new.
func (s *Store) Insert(taskID uint32, info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity == 0 {
		return
	}
	if !s.m.Contains(taskID) && s.m.Len() >= s.capacity {
		s.m.PopLRU()
	}
	s.m.Insert(taskID, info)
}

// Get returns taskID's Info, promoting it to most-recently-used.
func (s *Store) Get(taskID uint32) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Get(taskID)
}

// Resize changes capacity, atomically evicting overflow entries if n is
// smaller than the current size.
func (s *Store) Resize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = n
	for n > 0 && s.m.Len() > n {
		s.m.PopLRU()
	}
	if n == 0 {
		for s.m.Len() > 0 {
			s.m.PopLRU()
		}
	}
}

// Len reports the current number of tracked tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Len()
}

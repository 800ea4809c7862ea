// Package lru implements a generic least-recently-used map used as the
// eviction primitive for both the cache-download engine and the
// download-info store. Callers own the capacity policy; this package only
// tracks recency and exposes PopLRU for callers to evict against their own
// byte or item budgets.
package lru

import "container/list"

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Map is a recency-ordered map. It is not safe for concurrent use; callers
// that need concurrency safety wrap it in their own mutex, since the right
// lock granularity (e.g. "lock for the whole eviction loop") is a caller
// concern.
type Map[K comparable, V any] struct {
	ll    *list.List
	items map[K]*list.Element
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		ll:    list.New(),
		items: make(map[K]*list.Element),
	}
}

// Insert adds or updates key, moving it to most-recently-used.
func (m *Map[K, V]) Insert(key K, value V) {
	if el, ok := m.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		m.ll.MoveToFront(el)
		return
	}
	el := m.ll.PushFront(&entry[K, V]{key: key, value: value})
	m.items[key] = el
}

// Get returns the value for key and promotes it to most-recently-used.
func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V
	el, ok := m.items[key]
	if !ok {
		return zero, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Peek returns the value for key without altering recency order.
func (m *Map[K, V]) Peek(key K) (V, bool) {
	var zero V
	el, ok := m.items[key]
	if !ok {
		return zero, false
	}
	return el.Value.(*entry[K, V]).value, true
}

// Contains reports whether key is present, without altering recency order.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.items[key]
	return ok
}

// Remove deletes key if present and reports whether it was present.
func (m *Map[K, V]) Remove(key K) bool {
	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.ll.Remove(el)
	delete(m.items, key)
	return true
}

// PopLRU evicts and returns the least-recently-used entry.
func (m *Map[K, V]) PopLRU() (key K, value V, ok bool) {
	el := m.ll.Back()
	if el == nil {
		return key, value, false
	}
	e := el.Value.(*entry[K, V])
	m.ll.Remove(el)
	delete(m.items, e.key)
	return e.key, e.value, true
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return m.ll.Len()
}

// Keys returns keys ordered from most- to least-recently-used.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.ll.Len())
	for el := m.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

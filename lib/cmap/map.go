package cmap

import "sync"

// Map is a typed wrapper around sync.Map.
type Map[K comparable, V any] struct {
	cMap sync.Map
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, exists := m.cMap.Load(k)
	if !exists {
		var zero V
		return zero, false
	}

	return v.(V), true
}

func (m *Map[K, V]) Set(k K, v V) {
	m.cMap.Store(k, v)
}

func (m *Map[K, V]) Delete(k K) {
	m.cMap.Delete(k)
}

// Range calls f for each entry until f returns false. Deleting entries
// from inside f is allowed.
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	m.cMap.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

func (m *Map[K, V]) Len() int {
	n := 0
	m.cMap.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

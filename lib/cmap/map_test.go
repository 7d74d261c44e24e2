package cmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := NewMap[string, int]()

	_, ok := m.Get("a")
	require.False(t, ok)

	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	require.Equal(t, 3, m.Len())

	v, ok := m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)

	m.Range(func(k string, v int) bool {
		if v%2 == 1 {
			m.Delete(k)
		}
		return true
	})

	require.Equal(t, 1, m.Len())
	_, ok = m.Get("a")
	require.False(t, ok)
}

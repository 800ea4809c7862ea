package dlinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	s := New(2)
	s.Insert(1, Info{TotalMs: 100})
	info, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(100), info.TotalMs)
}

func TestZeroCapacityDropsWrites(t *testing.T) {
	s := New(0)
	s.Insert(1, Info{TotalMs: 100})
	_, ok := s.Get(1)
	require.False(t, ok)
}

func TestEvictsLRUAtCapacity(t *testing.T) {
	s := New(2)
	s.Insert(1, Info{TotalMs: 1})
	s.Insert(2, Info{TotalMs: 2})
	s.Insert(3, Info{TotalMs: 3})

	_, ok := s.Get(1)
	require.False(t, ok)
	_, ok = s.Get(2)
	require.True(t, ok)
	_, ok = s.Get(3)
	require.True(t, ok)
}

func TestUpdateInPlaceMovesToMRU(t *testing.T) {
	s := New(2)
	s.Insert(1, Info{TotalMs: 1})
	s.Insert(2, Info{TotalMs: 2})
	s.Insert(1, Info{TotalMs: 10})
	s.Insert(3, Info{TotalMs: 3})

	_, ok := s.Get(2)
	require.False(t, ok, "2 should have been evicted as LRU")
	info, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(10), info.TotalMs)
}

func TestResizeEvictsOverflow(t *testing.T) {
	s := New(3)
	s.Insert(1, Info{})
	s.Insert(2, Info{})
	s.Insert(3, Info{})
	s.Resize(1)
	require.Equal(t, 1, s.Len())
}

func TestResizeToZeroEmpties(t *testing.T) {
	s := New(3)
	s.Insert(1, Info{})
	s.Resize(0)
	require.Equal(t, 0, s.Len())
	s.Insert(2, Info{})
	require.Equal(t, 0, s.Len())
}

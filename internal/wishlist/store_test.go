package wishlist

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotent(t *testing.T) {
	s := NewStore()
	require.True(t, s.Add("p-1"))
	require.False(t, s.Add(" p-1 "))
	require.False(t, s.Add(""))
	require.Equal(t, 1, s.Count())
	require.True(t, s.Has("p-1"))
}

func TestToggleAndRemove(t *testing.T) {
	s := NewStore()
	require.True(t, s.Toggle("p-1"))
	require.True(t, s.Toggle("p-2"))
	require.False(t, s.Toggle("p-1"))
	require.False(t, s.Has("p-1"))
	require.Equal(t, []string{"p-2"}, ids(s.List()))

	require.True(t, s.Remove("p-2"))
	require.False(t, s.Remove("p-2"))
	require.Zero(t, s.Count())
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Add("p-1")
	s.Clear()
	s.Clear()
	require.Empty(t, s.List())
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore()
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	s.Add("p-1")
	s.Add("p-2")

	restored := NewStore()
	restored.Restore(append(s.Snapshot(), Entry{ProductID: "p-1"}, Entry{ProductID: "  "}))
	require.Equal(t, []string{"p-1", "p-2"}, ids(restored.List()))
	require.Equal(t, 2024, restored.List()[0].AddedAt.Year())
}

func TestConcurrentToggle(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Toggle("p-1")
		}()
	}
	wg.Wait()
	require.False(t, s.Has("p-1"))
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ProductID)
	}
	return out
}

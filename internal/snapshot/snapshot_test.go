package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

func TestStore_StoreAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path, 3)
	require.NoError(t, err)
	defer s.Close()

	ep := pool.NewEndpoint("127.0.0.1", 5432)
	for i := 0; i < 5; i++ {
		snap := map[pool.Endpoint]pool.Stats{ep: {Capacity: i + 1}}
		require.NoError(t, s.Store(snap))
	}

	recent, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recent, 3, "store should retain only the most recent 3 records")

	latest := recent[0]
	stats, ok := latest.Pools[ep.String()]
	require.True(t, ok)
	assert.Equal(t, 5, stats.Capacity, "most recent record should be first")
}

func TestStore_RecentEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path, 10)
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

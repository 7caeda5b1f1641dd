package gameid

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewShape(t *testing.T) {
	id := New()
	require.Len(t, id, Length)
	for _, r := range id {
		require.Contains(t, alphabet, string(r))
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIdsSortByTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, NewAt(base.Add(time.Duration(i)*time.Millisecond)))
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	require.Equal(t, ids, sorted, "later hands must sort after earlier ones")
}

func TestTimestampPrefixIsShared(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAt(ts)
	b := NewAt(ts)
	// 48 timestamp bits cover the first nine base32 characters
	require.Equal(t, a[:9], b[:9])
	require.NotEqual(t, a, b)
}

func TestNoPaddingOverflow(t *testing.T) {
	// the first character only carries the top 2 bits of the timestamp
	id := NewAt(time.UnixMilli(0))
	require.True(t, strings.HasPrefix(id, "0"))
}

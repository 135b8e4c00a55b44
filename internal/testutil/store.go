package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docpost/internal/docstore"
)

// OpenStore opens a docstore in t.TempDir(), closed on cleanup. Watchers
// poll every 10ms unless opts override it.
func OpenStore(t testing.TB, opts ...docstore.Option) *docstore.Store {
	t.Helper()
	all := append([]docstore.Option{docstore.WithPollInterval(10 * time.Millisecond)}, opts...)
	s, err := docstore.Open(filepath.Join(t.TempDir(), "test.db"), all...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

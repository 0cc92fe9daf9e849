package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndQuery(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "events.db"), "host-a")
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(base, "info", "sweep.started", "", map[string]interface{}{"folder": "run"}, "r1"))
	require.NoError(t, s.Append(base.Add(time.Second), "warn", "cell.failed", "boom", nil, "r1"))
	require.NoError(t, s.Append(base.Add(2*time.Second), "info", "system.startup", "", nil, ""))

	rows, err := s.Query(0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "system.startup", rows[0].Event)
	assert.Nil(t, rows[0].RunID)

	assert.Equal(t, "cell.failed", rows[1].Event)
	require.NotNil(t, rows[1].Message)
	assert.Equal(t, "boom", *rows[1].Message)

	assert.Equal(t, "sweep.started", rows[2].Event)
	assert.Equal(t, "run", rows[2].Fields["folder"])
	require.NotNil(t, rows[2].RunID)
	assert.Equal(t, "r1", *rows[2].RunID)
	assert.True(t, rows[2].Timestamp.Equal(base))
	assert.Equal(t, "host-a", rows[2].Instance)
}

func TestQueryScopedToInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	a, err := Open(path, "a")
	require.NoError(t, err)
	require.NoError(t, a.Append(time.Now(), "info", "sweep.started", "", nil, ""))
	require.NoError(t, a.Close())

	b, err := Open(path, "b")
	require.NoError(t, err)
	defer b.Close()
	rows, err := b.Query(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", "a")
	assert.Error(t, err)
}

package convo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	turn := TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q1", Response: "r1"}
	require.NoError(t, store.Append("s1", turn))

	turns, err := store.Load("s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "q1", turns[0].Query)

	meta, err := store.LoadMetadata("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TurnCount)
}

func TestLoadTruncatedLastLineIsDropped(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Append("s1", TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q1"}))

	path := filepath.Join(dir, "s1.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte(`{"turn_id":2,"query`)...), 0o644))

	turns, err := store.Load("s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

func TestListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Append("s1", TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q"}))
	require.NoError(t, store.Append("s2", TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q"}))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, store.Delete("s1"))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}

func TestRetentionSweepDeletesOldSessions(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Append("old", TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q"}))

	meta, err := store.LoadMetadata("old")
	require.NoError(t, err)
	meta.CreatedAt = time.Now().Add(-72 * time.Hour)
	require.NoError(t, store.SaveMetadata(meta))

	deleted, err := store.RetentionSweep(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, deleted)
}

func TestRetentionSweepDisabledAtZeroDays(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Append("s1", TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q"}))

	deleted, err := store.RetentionSweep(0)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

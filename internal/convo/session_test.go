package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSessionReplaysLogIntoPolicy(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	sess, err := OpenSession(store, "s1", PolicySliding, "feature", PolicyParams{MaxTurns: 5})
	require.NoError(t, err)
	_, err = sess.AddTurn("first query", "first response", TurnMetadata{Entities: []string{"login"}})
	require.NoError(t, err)
	_, err = sess.AddTurn("second query", "second response", TurnMetadata{})
	require.NoError(t, err)

	reopened, err := OpenSession(store, "s1", PolicySliding, "feature", PolicyParams{MaxTurns: 5})
	require.NoError(t, err)
	recent := reopened.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "first query", recent[0].Query)
	assert.Contains(t, reopened.EntitiesMentioned(), "login")
}

func TestAddTurnAssignsMonotonicTurnID(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	sess, err := OpenSession(store, "s1", PolicySliding, "general", PolicyParams{MaxTurns: 1})
	require.NoError(t, err)

	t1, err := sess.AddTurn("q1", "r1", TurnMetadata{})
	require.NoError(t, err)
	t2, err := sess.AddTurn("q2", "r2", TurnMetadata{})
	require.NoError(t, err)

	assert.Equal(t, 1, t1.TurnID)
	assert.Equal(t, 2, t2.TurnID)
	// sliding window keeps only 1, but turn_count keeps climbing.
	meta, err := store.LoadMetadata("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TurnCount)
	assert.Len(t, sess.Recent(0), 1)
}

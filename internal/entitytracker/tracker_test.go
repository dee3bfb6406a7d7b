package entitytracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntities []string

func (f fakeEntities) Names() []string { return f }

func TestRecordTurnCapturesSnippet(t *testing.T) {
	tr := New()
	tr.SetKnownEntities(fakeEntities{"login"})

	tr.RecordTurn("s1", 1, "show login()", "the login function checks the password hash", time.Now())

	mentions := tr.Mentions("login")
	require.Len(t, mentions, 1)
	assert.Contains(t, mentions[0].Context, "login")
}

func TestLastMentionPicksMostRecent(t *testing.T) {
	tr := New()
	tr.RecordMention("login", "s1", 1, "ctx1", time.Now().Add(-time.Hour))
	tr.RecordMention("login", "s1", 2, "ctx2", time.Now())

	last, ok := tr.LastMention("login")
	require.True(t, ok)
	assert.Equal(t, "ctx2", last.Context)
}

func TestRelatedRanksByCoOccurrence(t *testing.T) {
	tr := New()
	tr.RecordMention("login", "s1", 1, "ctx", time.Now())
	tr.RecordMention("logout", "s1", 1, "ctx", time.Now())
	tr.RecordMention("login", "s2", 1, "ctx", time.Now())
	tr.RecordMention("token", "s2", 1, "ctx", time.Now())

	related := tr.Related("login", 5)
	assert.Equal(t, []string{"logout", "token"}, related)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tr := New()
	tr.RecordMention("login", "s1", 1, "ctx", time.Now())

	path := filepath.Join(t.TempDir(), "entity_tracking.json")
	require.NoError(t, tr.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Mentions("login"), 1)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, loaded.Mentions("anything"))
}

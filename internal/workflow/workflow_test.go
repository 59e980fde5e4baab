// ABOUTME: Tests for the workflow context provider
// ABOUTME: Covers mention extraction, channel reads, inbox cursors, and documents

package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, agents ...string) *Provider {
	t.Helper()
	p, err := Open(t.TempDir(), "review", "pr-42", nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	for _, a := range agents {
		require.NoError(t, p.RegisterAgent(a))
	}
	return p
}

func TestExtractMentions_DedupOrderUnknownDropped(t *testing.T) {
	valid := map[string]bool{"alice": true, "bob": true}
	got := ExtractMentions("@alice @bob hi @alice ping @carol", valid)
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestExtractMentions_NoMentions(t *testing.T) {
	assert.Empty(t, ExtractMentions("plain text, email a@b not a mention", map[string]bool{"alice": true}))
}

func TestAppendChannel_StampsAndRoutes(t *testing.T) {
	p := newTestProvider(t, "alice", "bob")

	entry, err := p.AppendChannel("alice", "hey @bob can you review?")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.From)
	assert.Equal(t, []string{"bob"}, entry.Mentions)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestReadChannel_SinceExclusiveAndLimit(t *testing.T) {
	p := newTestProvider(t, "alice")

	e1, err := p.AppendChannel("alice", "first")
	require.NoError(t, err)
	_, err = p.AppendChannel("alice", "second")
	require.NoError(t, err)
	_, err = p.AppendChannel("alice", "third")
	require.NoError(t, err)

	all, err := p.ReadChannel(ReadOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Content)

	after, err := p.ReadChannel(ReadOptions{Since: e1.Timestamp})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "second", after[0].Content)

	last, err := p.ReadChannel(ReadOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "second", last[0].Content)
	assert.Equal(t, "third", last[1].Content)
}

func TestInbox_OnlyMentionsForAgent(t *testing.T) {
	p := newTestProvider(t, "alice", "bob")

	_, err := p.AppendChannel("alice", "@bob please review")
	require.NoError(t, err)
	_, err = p.AppendChannel("bob", "@alice done")
	require.NoError(t, err)
	_, err = p.AppendChannel("alice", "no mentions here")
	require.NoError(t, err)

	inbox, err := p.Inbox("bob")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "@bob please review", inbox[0].Entry.Content)
	assert.True(t, inbox[0].Unread)
	assert.Equal(t, PriorityNormal, inbox[0].Priority)
}

func TestInbox_PriorityRules(t *testing.T) {
	p := newTestProvider(t, "alice", "bob", "carol")

	_, err := p.AppendChannel("carol", "@alice @bob both of you")
	require.NoError(t, err)
	_, err = p.AppendChannel("carol", "@alice this is URGENT")
	require.NoError(t, err)
	_, err = p.AppendChannel("carol", "@alice whenever you get a chance")
	require.NoError(t, err)

	inbox, err := p.Inbox("alice")
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	assert.Equal(t, PriorityHigh, inbox[0].Priority, "multi-mention is high")
	assert.Equal(t, PriorityHigh, inbox[1].Priority, "urgency keyword is high")
	assert.Equal(t, PriorityNormal, inbox[2].Priority)
}

func TestAckInbox_Monotonic(t *testing.T) {
	p := newTestProvider(t, "alice", "bob")

	e1, err := p.AppendChannel("bob", "@alice first")
	require.NoError(t, err)
	e2, err := p.AppendChannel("bob", "@alice second")
	require.NoError(t, err)

	require.NoError(t, p.AckInbox("alice", e1.Timestamp))
	inbox, err := p.Inbox("alice")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, e2.ID, inbox[0].Entry.ID)

	// Acking backwards must not resurrect e1.
	require.NoError(t, p.AckInbox("alice", e1.Timestamp.Add(-time.Hour)))
	inbox, err = p.Inbox("alice")
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	require.NoError(t, p.AckInbox("alice", e2.Timestamp))
	inbox, err = p.Inbox("alice")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestPeekInbox_DoesNotAdvanceCursor(t *testing.T) {
	p := newTestProvider(t, "alice", "bob")
	_, err := p.AppendChannel("bob", "@alice look")
	require.NoError(t, err)

	peeked, err := p.PeekInbox("alice")
	require.NoError(t, err)
	require.Len(t, peeked, 1)

	inbox, err := p.Inbox("alice")
	require.NoError(t, err)
	assert.Len(t, inbox, 1, "peek must not consume")
}

func TestDocument_ReadWriteAppend(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.ReadDocument("")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	require.NoError(t, p.WriteDocument("# Plan", ""))
	content, err := p.ReadDocument("")
	require.NoError(t, err)
	assert.Equal(t, "# Plan", content)

	require.NoError(t, p.AppendDocument("- step one", ""))
	content, err = p.ReadDocument("")
	require.NoError(t, err)
	assert.Equal(t, "# Plan\n- step one", content)

	// Named documents are independent of the entry point document.
	require.NoError(t, p.WriteDocument("notes", "scratch"))
	scratch, err := p.ReadDocument("scratch")
	require.NoError(t, err)
	assert.Equal(t, "notes", scratch)
	main, err := p.ReadDocument("")
	require.NoError(t, err)
	assert.Equal(t, "# Plan\n- step one", main)
}

func TestDocument_MentionsNotExtracted(t *testing.T) {
	p := newTestProvider(t, "alice")
	require.NoError(t, p.WriteDocument("assigned to @alice", ""))

	inbox, err := p.Inbox("alice")
	require.NoError(t, err)
	assert.Empty(t, inbox, "documents must not route mentions")
}

func TestDocumentOutline(t *testing.T) {
	p := newTestProvider(t)
	require.NoError(t, p.WriteDocument("# Plan\n\nintro\n\n## Phase 1\n\n### Details\n\n## Phase 2\n", ""))

	outline, err := p.DocumentOutline("")
	require.NoError(t, err)
	require.Len(t, outline, 4)
	assert.Equal(t, Heading{Level: 1, Text: "Plan"}, outline[0])
	assert.Equal(t, Heading{Level: 2, Text: "Phase 1"}, outline[1])
	assert.Equal(t, Heading{Level: 3, Text: "Details"}, outline[2])
	assert.Equal(t, Heading{Level: 2, Text: "Phase 2"}, outline[3])
}

func TestAgents_RegisteredSet(t *testing.T) {
	p := newTestProvider(t, "bob", "alice")
	require.NoError(t, p.RegisterAgent("alice")) // idempotent

	agents, err := p.Agents()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, agents)
}

// ABOUTME: Tests for target address parsing, building, and display formatting
// ABOUTME: Covers defaults, round-trips, and invalid-name rejection

package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BareAgent(t *testing.T) {
	tgt, err := Parse("alice")
	require.NoError(t, err)
	assert.Equal(t, Target{Agent: "alice", Workflow: "global", Tag: "main"}, tgt)
}

func TestParse_AgentWorkflow(t *testing.T) {
	tgt, err := Parse("alice@review")
	require.NoError(t, err)
	assert.Equal(t, Target{Agent: "alice", Workflow: "review", Tag: "main"}, tgt)
}

func TestParse_AgentWorkflowTag(t *testing.T) {
	tgt, err := Parse("alice@review:pr-42")
	require.NoError(t, err)
	assert.Equal(t, Target{Agent: "alice", Workflow: "review", Tag: "pr-42"}, tgt)
}

func TestParse_WorkflowOnly(t *testing.T) {
	tgt, err := Parse("@review")
	require.NoError(t, err)
	assert.Equal(t, Target{Agent: "", Workflow: "review", Tag: "main"}, tgt)

	tgt, err = Parse("@review:pr-42")
	require.NoError(t, err)
	assert.Equal(t, Target{Agent: "", Workflow: "review", Tag: "pr-42"}, tgt)
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{"", "a lice", "alice@", "alice@re view", "alice@review:", "alice@review:b ad"}
	for _, c := range cases {
		_, err := Parse(c)
		assert.ErrorIs(t, err, ErrInvalidName, "input %q", c)
	}
}

func TestParse_LegacyDotNames(t *testing.T) {
	tgt, err := Parse("alice.v2@team.backend:rel.1")
	require.NoError(t, err)
	assert.Equal(t, "alice.v2", tgt.Agent)
	assert.Equal(t, "team.backend", tgt.Workflow)
	assert.Equal(t, "rel.1", tgt.Tag)
}

func TestString_OmitsDefaults(t *testing.T) {
	cases := []struct {
		in   Target
		want string
	}{
		{Target{Agent: "alice", Workflow: "global", Tag: "main"}, "alice"},
		{Target{Agent: "alice", Workflow: "review", Tag: "main"}, "alice@review"},
		{Target{Agent: "alice", Workflow: "review", Tag: "pr-42"}, "alice@review:pr-42"},
		{Target{Agent: "alice", Workflow: "global", Tag: "pr-42"}, "alice@global:pr-42"},
		{Target{Agent: "alice"}, "alice"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.in.String())
	}
}

func TestRoundTrip_FullForm(t *testing.T) {
	triples := []struct{ agent, workflow, tag string }{
		{"alice", "global", "main"},
		{"bob-2", "review", "pr-42"},
		{"c_d", "w_f", "t-g"},
	}
	for _, tr := range triples {
		built, err := Build(tr.agent, tr.workflow, tr.tag)
		require.NoError(t, err)
		parsed, err := Parse(built.Full())
		require.NoError(t, err)
		assert.Equal(t, built, parsed)
	}
}

func TestRoundTrip_DisplayForm(t *testing.T) {
	// The display form drops defaults, but parsing it restores them.
	built, err := Build("alice", "", "")
	require.NoError(t, err)
	parsed, err := Parse(built.String())
	require.NoError(t, err)
	assert.Equal(t, built, parsed)
}

func TestInstance(t *testing.T) {
	tgt := Target{Agent: "alice", Workflow: "review", Tag: "pr-42"}
	assert.Equal(t, "review:pr-42", tgt.Instance())
	assert.Equal(t, "global:main", Target{Agent: "alice"}.Instance())
}

func TestIsValidName(t *testing.T) {
	assert.True(t, IsValidName("alice-2_b.c"))
	assert.False(t, IsValidName("a@b"))
	assert.False(t, IsValidName(""))
	assert.False(t, IsValidName("a:b"))
}

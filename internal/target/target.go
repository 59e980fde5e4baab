// ABOUTME: Parsing, building, and display formatting for agent@workflow:tag addresses
// ABOUTME: Every other layer refers to agents and workflow instances through Target

package target

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultWorkflow is the workflow assumed when an address omits one.
const DefaultWorkflow = "global"

// DefaultTag is the tag assumed when an address omits one.
const DefaultTag = "main"

// ErrInvalidName indicates an agent, workflow, or tag component contains
// characters outside the allowed set.
var ErrInvalidName = errors.New("invalid name")

// namePattern allows alphanumerics, hyphen, underscore, and (for legacy
// addresses) dot.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Target identifies an agent within a workflow instance. Agent may be empty
// when the address refers to the workflow instance itself (e.g. "@review:pr-7").
type Target struct {
	Agent    string
	Workflow string
	Tag      string
}

// IsValidName reports whether s is usable as an agent, workflow, or tag
// component.
func IsValidName(s string) bool {
	return namePattern.MatchString(s)
}

// Parse interprets an address of one of the forms:
//
//	agent
//	agent@workflow
//	agent@workflow:tag
//	@workflow
//	@workflow:tag
//
// Omitted workflow defaults to "global" and omitted tag to "main".
func Parse(s string) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrInvalidName)
	}

	t := Target{Workflow: DefaultWorkflow, Tag: DefaultTag}

	rest := s
	if at := strings.Index(s, "@"); at >= 0 {
		t.Agent = s[:at]
		rest = s[at+1:]
		if rest == "" {
			return Target{}, fmt.Errorf("%w: missing workflow after @ in %q", ErrInvalidName, s)
		}
		if colon := strings.Index(rest, ":"); colon >= 0 {
			t.Workflow = rest[:colon]
			t.Tag = rest[colon+1:]
		} else {
			t.Workflow = rest
		}
	} else {
		t.Agent = s
	}

	if t.Agent != "" && !IsValidName(t.Agent) {
		return Target{}, fmt.Errorf("%w: agent %q", ErrInvalidName, t.Agent)
	}
	if !IsValidName(t.Workflow) {
		return Target{}, fmt.Errorf("%w: workflow %q", ErrInvalidName, t.Workflow)
	}
	if !IsValidName(t.Tag) {
		return Target{}, fmt.Errorf("%w: tag %q", ErrInvalidName, t.Tag)
	}

	return t, nil
}

// Build assembles a Target from components, applying defaults for empty
// workflow or tag.
func Build(agent, workflow, tag string) (Target, error) {
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	if tag == "" {
		tag = DefaultTag
	}
	t := Target{Agent: agent, Workflow: workflow, Tag: tag}
	if agent != "" && !IsValidName(agent) {
		return Target{}, fmt.Errorf("%w: agent %q", ErrInvalidName, agent)
	}
	if !IsValidName(workflow) {
		return Target{}, fmt.Errorf("%w: workflow %q", ErrInvalidName, workflow)
	}
	if !IsValidName(tag) {
		return Target{}, fmt.Errorf("%w: tag %q", ErrInvalidName, tag)
	}
	return t, nil
}

// String renders the canonical display form, omitting the default workflow
// and the default tag. A bare default target renders as just the agent name.
func (t Target) String() string {
	var b strings.Builder
	b.WriteString(t.Agent)

	workflow := t.Workflow
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	tag := t.Tag
	if tag == "" {
		tag = DefaultTag
	}

	if workflow != DefaultWorkflow || tag != DefaultTag {
		b.WriteString("@")
		b.WriteString(workflow)
		if tag != DefaultTag {
			b.WriteString(":")
			b.WriteString(tag)
		}
	}
	return b.String()
}

// Full renders the fully qualified form agent@workflow:tag with no defaults
// omitted. Parse(Full()) always reproduces the target.
func (t Target) Full() string {
	workflow := t.Workflow
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	tag := t.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return fmt.Sprintf("%s@%s:%s", t.Agent, workflow, tag)
}

// Instance returns the workflow:tag pair identifying the shared context this
// target participates in.
func (t Target) Instance() string {
	workflow := t.Workflow
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	tag := t.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return workflow + ":" + tag
}

// ABOUTME: Shared editable Documents, kept apart from Channel chatter
// ABOUTME: Includes a goldmark-based outline so agents can orient in large docs

package workflow

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultDocument is the entry point document used when no name is given.
const DefaultDocument = "main"

// Heading is one entry in a document outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ReadDocument returns the named document's content. No mention extraction is
// ever applied to documents.
func (p *Provider) ReadDocument(name string) (string, error) {
	if name == "" {
		name = DefaultDocument
	}
	var content string
	err := p.db.QueryRow(`SELECT content FROM documents WHERE name = ?`, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrDocumentNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return content, nil
}

// WriteDocument replaces the named document's content.
func (p *Provider) WriteDocument(content, name string) error {
	if name == "" {
		name = DefaultDocument
	}
	_, err := p.db.Exec(
		`INSERT INTO documents (name, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		name, content, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	p.logger.Debug("document written", "name", name, "bytes", len(content))
	return nil
}

// AppendDocument adds content to the end of the named document, creating it
// if needed. A newline separates the existing content from the addition.
func (p *Provider) AppendDocument(content, name string) error {
	if name == "" {
		name = DefaultDocument
	}
	existing, err := p.ReadDocument(name)
	if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		return err
	}
	if existing != "" {
		content = existing + "\n" + content
	}
	return p.WriteDocument(content, name)
}

// DocumentOutline parses the named document as markdown and returns its
// headings in order.
func (p *Provider) DocumentOutline(name string) ([]Heading, error) {
	content, err := p.ReadDocument(name)
	if err != nil {
		return nil, err
	}

	source := []byte(content)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var outline []Heading
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			outline = append(outline, Heading{
				Level: h.Level,
				Text:  string(headingText(h, source)),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking document: %w", err)
	}
	return outline, nil
}

// headingText collects the literal text under a heading node.
func headingText(h *ast.Heading, source []byte) []byte {
	var out []byte
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
		}
	}
	return out
}

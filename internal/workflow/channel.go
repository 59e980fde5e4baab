// ABOUTME: Append-only Channel log with @mention extraction and routing
// ABOUTME: The Channel is the durable record of what happened in a workflow

package workflow

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// mentionPattern matches @name tokens. The character class mirrors the
// target-address name rules.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9._-]+)`)

// ChannelEntry is one append-only record in the workflow's Channel.
type ChannelEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions"`
}

// ExtractMentions returns the @names in content that appear in validAgents,
// deduplicated and in first-occurrence order. Unknown names are dropped.
func ExtractMentions(content string, validAgents map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if !validAgents[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// AppendChannel stamps and appends an entry, extracting mentions against the
// instance's registered agents.
func (p *Provider) AppendChannel(from, content string) (*ChannelEntry, error) {
	agents, err := p.agentSet()
	if err != nil {
		return nil, err
	}

	entry := &ChannelEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		From:      from,
		Content:   content,
		Mentions:  ExtractMentions(content, agents),
	}

	mentionsJSON, err := json.Marshal(entry.Mentions)
	if err != nil {
		return nil, fmt.Errorf("encoding mentions: %w", err)
	}

	_, err = p.db.Exec(
		`INSERT INTO channel_entries (id, ts, sender, content, mentions) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixNano(), entry.From, entry.Content, string(mentionsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("appending channel entry: %w", err)
	}

	p.logger.Debug("channel entry appended", "from", from, "mentions", entry.Mentions)
	return entry, nil
}

// ReadOptions narrows a channel read. Since is exclusive; Limit keeps the
// most recent N entries after the Since filter.
type ReadOptions struct {
	Since time.Time
	Limit int
}

// ReadChannel returns entries in timestamp order without touching any read
// cursor, so it is safe for peeking.
func (p *Provider) ReadChannel(opts ReadOptions) ([]*ChannelEntry, error) {
	rows, err := p.db.Query(
		`SELECT id, ts, sender, content, mentions FROM channel_entries
		 WHERE ts > ? ORDER BY ts, id`,
		opts.Since.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("reading channel: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}
	return entries, nil
}

// scanEntries reads channel rows into entries.
func scanEntries(rows *sql.Rows) ([]*ChannelEntry, error) {
	var entries []*ChannelEntry
	for rows.Next() {
		var (
			entry        ChannelEntry
			ts           int64
			mentionsJSON string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.From, &entry.Content, &mentionsJSON); err != nil {
			return nil, err
		}
		entry.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(mentionsJSON), &entry.Mentions); err != nil {
			return nil, fmt.Errorf("decoding mentions: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

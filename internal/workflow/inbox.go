// ABOUTME: Derived per-agent Inbox computed from the Channel and a read cursor
// ABOUTME: Nothing is stored per inbox message; acking just advances the cursor

package workflow

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Priority values for inbox messages.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// urgencyPattern promotes an entry to high priority when its content signals
// time sensitivity.
var urgencyPattern = regexp.MustCompile(`(?i)urgent|asap|blocked|critical`)

// InboxMessage is a Channel entry as seen by one agent's inbox.
type InboxMessage struct {
	Entry    *ChannelEntry `json:"entry"`
	Unread   bool          `json:"unread"`
	Priority string        `json:"priority"`
}

// Inbox returns the unread entries mentioning agent, oldest first. The read
// cursor is not advanced; call AckInbox for that.
func (p *Provider) Inbox(agent string) ([]InboxMessage, error) {
	cursor, err := p.readCursor(agent)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.Query(
		`SELECT id, ts, sender, content, mentions FROM channel_entries
		 WHERE ts > ? ORDER BY ts, id`,
		cursor,
	)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	var inbox []InboxMessage
	for _, entry := range entries {
		if !mentionsAgent(entry, agent) {
			continue
		}
		inbox = append(inbox, InboxMessage{
			Entry:    entry,
			Unread:   true,
			Priority: priorityOf(entry),
		})
	}
	return inbox, nil
}

// PeekInbox is Inbox by another name; it exists so callers can state their
// intent not to ack.
func (p *Provider) PeekInbox(agent string) ([]InboxMessage, error) {
	return p.Inbox(agent)
}

// AckInbox advances the agent's read cursor to until. The cursor never moves
// backwards, so a stale ack cannot resurrect already-read entries.
func (p *Provider) AckInbox(agent string, until time.Time) error {
	_, err := p.db.Exec(
		`INSERT INTO read_cursors (agent, last_ack) VALUES (?, ?)
		 ON CONFLICT(agent) DO UPDATE SET last_ack = excluded.last_ack
		 WHERE excluded.last_ack > read_cursors.last_ack`,
		agent, until.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("acking inbox: %w", err)
	}
	return nil
}

// readCursor returns the agent's last-acknowledged timestamp in nanoseconds,
// or the zero-time sentinel when the agent has never acked.
func (p *Provider) readCursor(agent string) (int64, error) {
	var cursor int64
	err := p.db.QueryRow(`SELECT last_ack FROM read_cursors WHERE agent = ?`, agent).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}.UnixNano(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cursor: %w", err)
	}
	return cursor, nil
}

func mentionsAgent(entry *ChannelEntry, agent string) bool {
	for _, m := range entry.Mentions {
		if m == agent {
			return true
		}
	}
	return false
}

// priorityOf computes an entry's inbox priority: high when it fans out to
// multiple agents or carries an urgency keyword.
func priorityOf(entry *ChannelEntry) string {
	if len(entry.Mentions) > 1 || urgencyPattern.MatchString(entry.Content) {
		return PriorityHigh
	}
	return PriorityNormal
}

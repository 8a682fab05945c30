package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// InsertMessage stores a message row. Used by the import command and tests;
// the messages table is normally populated by the chat application.
func (db *DB) InsertMessage(m Message) error {
	_, err := db.conn.Exec(
		`INSERT INTO messages (id, session_id, user_id, role, content, timestamp, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.Timestamp, m.ToolCallID,
	)
	return err
}

// MessagesForSession returns a session's messages filtered to the given
// roles, in chronological order.
func (db *DB) MessagesForSession(sessionID string, roles []string) ([]Message, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, session_id, user_id, role, content, timestamp, tool_call_id
		FROM messages
		WHERE session_id = ? AND role IN (%s)
		ORDER BY timestamp ASC, id ASC`,
		placeholders(len(roles)),
	)
	args := make([]any, 0, len(roles)+1)
	args = append(args, sessionID)
	for _, r := range roles {
		args = append(args, r)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UnclassifiedMessages returns messages without a classification row,
// oldest first, optionally bounded by a timestamp and a row limit.
func (db *DB) UnclassifiedMessages(roles []string, since string, limit int) ([]Message, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT m.id, m.session_id, m.user_id, m.role, m.content, m.timestamp, m.tool_call_id
		FROM messages m
		LEFT JOIN message_classification mc ON mc.message_id = m.id
		WHERE mc.message_id IS NULL AND m.role IN (%s)`,
		placeholders(len(roles)),
	)
	var args []any
	for _, r := range roles {
		args = append(args, r)
	}
	if since != "" {
		query += " AND m.timestamp >= ?"
		args = append(args, since)
	}
	query += " ORDER BY m.timestamp ASC, m.id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ClassifiedMessageIDs returns the set of message ids already classified for
// a session.
func (db *DB) ClassifiedMessageIDs(sessionID string) (map[int64]struct{}, error) {
	rows, err := db.conn.Query(
		"SELECT message_id FROM message_classification WHERE session_id = ?", sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Timestamp, &m.ToolCallID); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

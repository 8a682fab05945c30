package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertSessionClassification writes a session-level result, replacing any
// prior row for the session. run_at is refreshed on every application, so
// re-applying the same result is a business no-op.
func (db *DB) UpsertSessionClassification(sc SessionClassification) error {
	scores, err := json.Marshal(sc.Scores)
	if err != nil {
		return fmt.Errorf("encoding scores: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO session_classification
			(session_id, primary_category, scores, processed_upto, model, instructions_version, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			primary_category = excluded.primary_category,
			scores = excluded.scores,
			processed_upto = excluded.processed_upto,
			run_at = datetime('now'),
			model = excluded.model,
			instructions_version = excluded.instructions_version,
			notes = excluded.notes`,
		sc.SessionID, sc.PrimaryCategory, string(scores), sc.ProcessedUpto,
		sc.Model, sc.InstructionsVersion, sc.Notes,
	)
	return err
}

// GetSessionClassification returns the stored result for a session, or nil.
func (db *DB) GetSessionClassification(sessionID string) (*SessionClassification, error) {
	row := db.conn.QueryRow(
		`SELECT session_id, primary_category, scores, processed_upto, run_at, model, instructions_version, notes
		FROM session_classification WHERE session_id = ?`, sessionID,
	)

	var sc SessionClassification
	var scores string
	err := row.Scan(&sc.SessionID, &sc.PrimaryCategory, &scores, &sc.ProcessedUpto,
		&sc.RunAt, &sc.Model, &sc.InstructionsVersion, &sc.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scores), &sc.Scores); err != nil {
		return nil, fmt.Errorf("decoding scores: %w", err)
	}
	return &sc, nil
}

// RecentSessionClassifications returns the most recently classified sessions,
// newest run first.
func (db *DB) RecentSessionClassifications(limit int) ([]SessionClassification, error) {
	query := `SELECT session_id, primary_category, scores, processed_upto, run_at, model, instructions_version, notes
		FROM session_classification ORDER BY run_at DESC, session_id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionClassification
	for rows.Next() {
		var sc SessionClassification
		var scores string
		err := rows.Scan(&sc.SessionID, &sc.PrimaryCategory, &scores, &sc.ProcessedUpto,
			&sc.RunAt, &sc.Model, &sc.InstructionsVersion, &sc.Notes)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &sc.Scores); err != nil {
			return nil, fmt.Errorf("decoding scores: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// CategoryCounts returns how many sessions carry each primary category,
// largest first.
func (db *DB) CategoryCounts() ([]CategoryCount, error) {
	rows, err := db.conn.Query(
		`SELECT primary_category, COUNT(*) FROM session_classification
		GROUP BY primary_category ORDER BY COUNT(*) DESC, primary_category ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Sessions); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// MessageClassificationsForSession returns a session's message-level results
// in message id order.
func (db *DB) MessageClassificationsForSession(sessionID string) ([]MessageClassification, error) {
	rows, err := db.conn.Query(
		`SELECT message_id, session_id, role, primary_category, scores, run_at, model, instructions_version
		FROM message_classification WHERE session_id = ? ORDER BY message_id ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MessageClassification
	for rows.Next() {
		var mc MessageClassification
		var scores string
		err := rows.Scan(&mc.MessageID, &mc.SessionID, &mc.Role, &mc.PrimaryCategory,
			&scores, &mc.RunAt, &mc.Model, &mc.InstructionsVersion)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &mc.Scores); err != nil {
			return nil, fmt.Errorf("decoding scores: %w", err)
		}
		results = append(results, mc)
	}
	return results, rows.Err()
}

// UpsertMessageClassification writes a message-level result keyed by
// message_id, replacing any prior row and refreshing run_at.
func (db *DB) UpsertMessageClassification(mc MessageClassification) error {
	scores, err := json.Marshal(mc.Scores)
	if err != nil {
		return fmt.Errorf("encoding scores: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO message_classification
			(message_id, session_id, role, primary_category, scores, model, instructions_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			primary_category = excluded.primary_category,
			scores = excluded.scores,
			run_at = datetime('now'),
			model = excluded.model,
			instructions_version = excluded.instructions_version`,
		mc.MessageID, mc.SessionID, mc.Role, mc.PrimaryCategory, string(scores),
		mc.Model, mc.InstructionsVersion,
	)
	return err
}

// GetMessageClassification returns the stored result for a message, or nil.
func (db *DB) GetMessageClassification(messageID int64) (*MessageClassification, error) {
	row := db.conn.QueryRow(
		`SELECT message_id, session_id, role, primary_category, scores, run_at, model, instructions_version
		FROM message_classification WHERE message_id = ?`, messageID,
	)

	var mc MessageClassification
	var scores string
	err := row.Scan(&mc.MessageID, &mc.SessionID, &mc.Role, &mc.PrimaryCategory,
		&scores, &mc.RunAt, &mc.Model, &mc.InstructionsVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scores), &mc.Scores); err != nil {
		return nil, fmt.Errorf("decoding scores: %w", err)
	}
	return &mc, nil
}

package database

// SessionsDue returns sessions needing (re)classification: sessions with no
// session_classification row, or whose latest message is newer than the
// recorded processed_upto watermark. Results are ordered oldest-due-first so
// a limited run makes forward progress instead of starving old sessions.
//
// When since is non-empty, only messages at or after that bound contribute
// to the per-session aggregation. When limit is positive, the ordered list
// is truncated to the first limit entries.
func (db *DB) SessionsDue(since string, limit int) ([]SessionWork, error) {
	query := `
		SELECT agg.session_id, agg.max_ts, agg.message_count
		FROM (
			SELECT session_id, MAX(timestamp) AS max_ts, COUNT(id) AS message_count
			FROM messages`
	var args []any
	if since != "" {
		query += `
			WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += `
			GROUP BY session_id
		) agg
		LEFT JOIN session_classification sc ON sc.session_id = agg.session_id
		WHERE sc.session_id IS NULL OR agg.max_ts > sc.processed_upto
		ORDER BY agg.max_ts ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []SessionWork
	for rows.Next() {
		var w SessionWork
		if err := rows.Scan(&w.SessionID, &w.MaxTimestamp, &w.MessageCount); err != nil {
			return nil, err
		}
		due = append(due, w)
	}
	return due, rows.Err()
}

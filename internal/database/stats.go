package database

// Stats summarizes store contents for the status command and stats server.
type Stats struct {
	Sessions           int `json:"sessions"`
	Messages           int `json:"messages"`
	ClassifiedSessions int `json:"classified_sessions"`
	ClassifiedMessages int `json:"classified_messages"`
	SessionsDue        int `json:"sessions_due"`
}

// GetStats computes summary counts across the store.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(DISTINCT session_id) FROM messages", &s.Sessions},
		{"SELECT COUNT(*) FROM messages", &s.Messages},
		{"SELECT COUNT(*) FROM session_classification", &s.ClassifiedSessions},
		{"SELECT COUNT(*) FROM message_classification", &s.ClassifiedMessages},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	due, err := db.SessionsDue("", 0)
	if err != nil {
		return nil, err
	}
	s.SessionsDue = len(due)
	return s, nil
}

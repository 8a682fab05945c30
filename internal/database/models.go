package database

// Message is one chat message from the conversation store. Timestamps are
// RFC3339 UTC text, so lexical order is chronological order.
type Message struct {
	ID         int64
	SessionID  string
	UserID     *string
	Role       string // user|assistant|tool
	Content    *string
	Timestamp  string
	ToolCallID *string
}

// SessionWork identifies a session due for (re)classification.
type SessionWork struct {
	SessionID    string
	MaxTimestamp string
	MessageCount int
}

// SessionClassification is a persisted session-level result. ProcessedUpto
// is the watermark: the max message timestamp included in the classification.
type SessionClassification struct {
	SessionID           string
	PrimaryCategory     string
	Scores              map[string]float64
	ProcessedUpto       string
	RunAt               *string
	Model               string
	InstructionsVersion *string
	Notes               *string
}

// CategoryCount is one row of the per-category session breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Sessions int    `json:"sessions"`
}

// MessageClassification is a persisted message-level result.
type MessageClassification struct {
	MessageID           int64
	SessionID           string
	Role                string
	PrimaryCategory     string
	Scores              map[string]float64
	RunAt               *string
	Model               string
	InstructionsVersion *string
}

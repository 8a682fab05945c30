package database

import "testing"

func TestSessionsDueNewSession(t *testing.T) {
	db := openTestDB(t)
	seedMessage(t, db, 1, "s1", "user", "a", "2026-01-01T10:00:00Z")
	seedMessage(t, db, 2, "s1", "assistant", "b", "2026-01-01T10:05:00Z")

	due, err := db.SessionsDue("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due session, got %d", len(due))
	}
	if due[0].SessionID != "s1" {
		t.Errorf("expected s1, got %q", due[0].SessionID)
	}
	if due[0].MaxTimestamp != "2026-01-01T10:05:00Z" {
		t.Errorf("expected watermark from latest message, got %q", due[0].MaxTimestamp)
	}
	if due[0].MessageCount != 2 {
		t.Errorf("expected 2 messages, got %d", due[0].MessageCount)
	}
}

func TestSessionsDueWatermark(t *testing.T) {
	db := openTestDB(t)
	// Session A: never classified, due.
	seedMessage(t, db, 1, "a", "user", "x", "2026-01-01T09:00:00Z")
	// Session B: classified up to its latest message, not due.
	seedMessage(t, db, 2, "b", "user", "y", "2026-01-01T10:00:00Z")
	err := db.UpsertSessionClassification(SessionClassification{
		SessionID: "b", PrimaryCategory: "other",
		Scores: map[string]float64{"other": 1}, ProcessedUpto: "2026-01-01T10:00:00Z",
		Model: "m",
	})
	if err != nil {
		t.Fatalf("upserting: %v", err)
	}

	due, err := db.SessionsDue("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 || due[0].SessionID != "a" {
		t.Fatalf("expected only session a due, got %v", due)
	}

	// A newer message re-surfaces session B.
	seedMessage(t, db, 3, "b", "user", "z", "2026-01-01T11:00:00Z")
	due, err = db.SessionsDue("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected both sessions due, got %v", due)
	}
}

func TestSessionsDueOldestFirst(t *testing.T) {
	db := openTestDB(t)
	seedMessage(t, db, 1, "new", "user", "x", "2026-01-03T00:00:00Z")
	seedMessage(t, db, 2, "old", "user", "y", "2026-01-01T00:00:00Z")
	seedMessage(t, db, 3, "mid", "user", "z", "2026-01-02T00:00:00Z")

	due, err := db.SessionsDue("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due sessions, got %d", len(due))
	}
	if due[0].SessionID != "old" || due[1].SessionID != "mid" || due[2].SessionID != "new" {
		t.Errorf("expected oldest-due-first, got %v", due)
	}
}

func TestSessionsDueLimit(t *testing.T) {
	db := openTestDB(t)
	seedMessage(t, db, 1, "a", "user", "x", "2026-01-01T00:00:00Z")
	seedMessage(t, db, 2, "b", "user", "y", "2026-01-02T00:00:00Z")
	seedMessage(t, db, 3, "c", "user", "z", "2026-01-03T00:00:00Z")

	due, err := db.SessionsDue("", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected limit to cap at 2, got %d", len(due))
	}
	if due[0].SessionID != "a" || due[1].SessionID != "b" {
		t.Errorf("expected the two oldest sessions, got %v", due)
	}
}

func TestSessionsDueSinceRestrictsAggregation(t *testing.T) {
	db := openTestDB(t)
	seedMessage(t, db, 1, "s1", "user", "old", "2026-01-01T00:00:00Z")
	seedMessage(t, db, 2, "s1", "user", "new", "2026-01-05T00:00:00Z")

	due, err := db.SessionsDue("2026-01-03T00:00:00Z", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due session, got %d", len(due))
	}
	// Only the in-window message contributes to the aggregation.
	if due[0].MessageCount != 1 {
		t.Errorf("expected message_count 1 within window, got %d", due[0].MessageCount)
	}
	if due[0].MaxTimestamp != "2026-01-05T00:00:00Z" {
		t.Errorf("unexpected watermark %q", due[0].MaxTimestamp)
	}

	// A window past all messages excludes the session entirely.
	due, err = db.SessionsDue("2026-02-01T00:00:00Z", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected no due sessions, got %v", due)
	}
}

func TestSessionsDueEmptyStore(t *testing.T) {
	db := openTestDB(t)
	due, err := db.SessionsDue("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected no due sessions, got %d", len(due))
	}
}

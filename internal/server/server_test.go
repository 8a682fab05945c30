package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nwestf/chatclass/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedClassifiedSession(t *testing.T, db *database.DB, id int64, sessionID, category string) {
	t.Helper()
	content := "hello"
	err := db.InsertMessage(database.Message{
		ID: id, SessionID: sessionID, Role: "user",
		Content: &content, Timestamp: "2026-01-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("seeding message: %v", err)
	}
	err = db.UpsertSessionClassification(database.SessionClassification{
		SessionID:       sessionID,
		PrimaryCategory: category,
		Scores:          map[string]float64{category: 0.9, "other": 0.1},
		ProcessedUpto:   "2026-01-01T10:00:00Z",
		Model:           "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("seeding classification: %v", err)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seedClassifiedSession(t, db, 1, "sess-1", "billing")

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "sess-1") {
		t.Error("expected session id in overview")
	}
	if !strings.Contains(body, "billing") {
		t.Error("expected category breakdown in overview")
	}
}

func TestIndexRouteEmptyStore(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on empty store, got %d", rec.Code)
	}
}

func TestSessionRoute(t *testing.T) {
	db := openTestDB(t)
	seedClassifiedSession(t, db, 1, "sess-1", "technical_support")
	db.UpsertMessageClassification(database.MessageClassification{
		MessageID: 1, SessionID: "sess-1", Role: "user",
		PrimaryCategory: "technical_support",
		Scores:          map[string]float64{"technical_support": 1},
		Model:           "gpt-4o-mini",
	})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/session/sess-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "technical_support") {
		t.Error("expected category in session page")
	}
	if !strings.Contains(body, "90%") {
		t.Error("expected formatted score in session page")
	}
}

func TestSessionRouteUnknown(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/session/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestStatsRoute(t *testing.T) {
	db := openTestDB(t)
	seedClassifiedSession(t, db, 1, "sess-1", "billing")
	seedClassifiedSession(t, db, 2, "sess-2", "billing")

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var payload struct {
		Stats      database.Stats           `json:"stats"`
		Categories []database.CategoryCount `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding stats payload: %v", err)
	}
	if payload.Stats.ClassifiedSessions != 2 {
		t.Errorf("expected 2 classified sessions, got %d", payload.Stats.ClassifiedSessions)
	}
	if len(payload.Categories) != 1 || payload.Categories[0].Sessions != 2 {
		t.Errorf("unexpected category breakdown: %v", payload.Categories)
	}
}

func TestStaticRoute(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/static/style.css", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-family") {
		t.Error("expected CSS content")
	}
}

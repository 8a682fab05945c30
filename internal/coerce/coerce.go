// Package coerce reconciles raw model classification responses into
// complete, deterministic result sets. Classification calls are expensive,
// so a partially broken response is never discarded: every requested id
// always gets a result, falling back to the reserved "other" label and a
// uniform score vector where the response is unusable.
package coerce

import (
	"math"
	"strconv"
	"strings"

	"github.com/nwestf/chatclass/internal/taxonomy"
)

// Result is one reconciled classification. Primary is always a member of the
// category set and Scores always holds exactly one entry per category.
type Result struct {
	ID      int64
	Primary string
	Scores  map[string]float64
}

// SessionResult is the reconciled outcome of a whole-session classification.
type SessionResult struct {
	Primary   string
	Scores    map[string]float64
	Rationale string
}

// Reconcile converts a raw batch response into exactly one Result per
// expected id, in expectedIDs order. It tolerates a missing or non-list
// "items" collection, unparseable or foreign item ids, duplicate items
// (first in input order wins), unknown categories, and malformed scores.
// It never fails: ids not covered by a usable candidate are synthesized
// with the fallback label and a uniform score vector.
func Reconcile(raw map[string]any, expectedIDs []int64, cats *taxonomy.Set) []Result {
	expected := make(map[int64]struct{}, len(expectedIDs))
	for _, id := range expectedIDs {
		expected[id] = struct{}{}
	}

	kept := make(map[int64]Result, len(expectedIDs))
	for _, item := range itemList(raw) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := asInt(obj["message_id"])
		if !ok {
			// Unparseable identity is a data-quality event, not an error.
			continue
		}
		if _, want := expected[id]; !want {
			continue
		}
		if _, dup := kept[id]; dup {
			// First candidate wins.
			continue
		}
		kept[id] = Result{
			ID:      id,
			Primary: primaryCategory(obj["primary_category"], cats),
			Scores:  scoreVector(obj["scores"], cats),
		}
	}

	results := make([]Result, 0, len(expectedIDs))
	emitted := make(map[int64]struct{}, len(expectedIDs))
	for _, id := range expectedIDs {
		if _, done := emitted[id]; done {
			continue
		}
		emitted[id] = struct{}{}
		if r, ok := kept[id]; ok {
			results = append(results, r)
			continue
		}
		results = append(results, Result{
			ID:      id,
			Primary: taxonomy.Fallback,
			Scores:  cats.Uniform(),
		})
	}
	return results
}

// ReconcileSession applies the same category and score policy to a
// single-object session response.
func ReconcileSession(raw map[string]any, cats *taxonomy.Set) SessionResult {
	res := SessionResult{
		Primary: primaryCategory(raw["primary_category"], cats),
		Scores:  scoreVector(raw["scores"], cats),
	}
	if s, ok := raw["rationale"].(string); ok {
		res.Rationale = strings.TrimSpace(s)
	}
	return res
}

// itemList extracts the candidate items from a raw response. Absent or
// non-list "items" yields nil.
func itemList(raw map[string]any) []any {
	items, ok := raw["items"].([]any)
	if !ok {
		return nil
	}
	return items
}

// primaryCategory validates a raw category value against the known set,
// substituting the fallback label when missing, empty, or unrecognized.
func primaryCategory(v any, cats *taxonomy.Set) string {
	s, ok := v.(string)
	if !ok || s == "" || !cats.Contains(s) {
		return taxonomy.Fallback
	}
	return s
}

// scoreVector builds a complete vector over all categories. Absent or
// uncoercible per-category scores become 0.0; a vector that sums to exactly
// zero is replaced by the uniform distribution.
func scoreVector(v any, cats *taxonomy.Set) map[string]float64 {
	rawScores, _ := v.(map[string]any)
	scores := make(map[string]float64, cats.Len())
	sum := 0.0
	for _, label := range cats.Labels() {
		f, ok := asFloat(rawScores[label])
		if !ok {
			f = 0
		}
		scores[label] = f
		sum += f
	}
	if sum == 0 {
		return cats.Uniform()
	}
	return scores
}

// asInt parses an integer identity from a decoded JSON value. Fractional
// numbers and non-numeric strings are rejected.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// asFloat coerces a decoded JSON value to a real number. Numeric strings are
// accepted; NaN and infinities are not.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

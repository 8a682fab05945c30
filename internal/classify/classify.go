// Package classify builds classification requests, invokes the model, and
// reconciles its responses into complete result sets.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/invopop/jsonschema"

	"github.com/nwestf/chatclass/internal/coerce"
	"github.com/nwestf/chatclass/internal/llm"
	"github.com/nwestf/chatclass/internal/taxonomy"
)

// Item is one message submitted for labeling.
type Item struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

// TranscriptMessage is one transcript entry for session classification.
type TranscriptMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// batchResponse is the output shape requested for message batches. Its
// generated schema is sent as a hint with every request and repair call.
type batchResponse struct {
	Items []batchResponseItem `json:"items"`
}

type batchResponseItem struct {
	MessageID       int64              `json:"message_id"`
	PrimaryCategory string             `json:"primary_category"`
	Scores          map[string]float64 `json:"scores"`
}

// sessionResponse is the output shape requested for whole-session calls.
type sessionResponse struct {
	SessionID       string             `json:"session_id"`
	PrimaryCategory string             `json:"primary_category"`
	Scores          map[string]float64 `json:"scores"`
	Rationale       string             `json:"rationale"`
}

var batchSchema = generateSchema[batchResponse]()
var sessionSchema = generateSchema[sessionResponse]()

// generateSchema reflects a JSON schema hint from a response type.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	return m
}

// Classifier invokes the model for session- and message-level classification
// and guarantees a complete, schema-valid result for every request.
type Classifier struct {
	provider llm.Provider
	cats     *taxonomy.Set
}

// New creates a Classifier.
func New(provider llm.Provider, cats *taxonomy.Set) *Classifier {
	return &Classifier{provider: provider, cats: cats}
}

// Messages classifies a batch of messages. The returned slice has exactly
// one entry per batch item, in batch order, regardless of how incomplete the
// model response is. The only error modes are transport failure and repair
// exhaustion.
func (c *Classifier) Messages(ctx context.Context, instructions string, batch []Item) ([]coerce.Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	expectedIDs := make([]int64, len(batch))
	for i, item := range batch {
		expectedIDs[i] = item.MessageID
	}

	payload := map[string]any{
		"task":           "single-label classification per message",
		"categories":     c.cats.Labels(),
		"expected_count": len(batch),
		"expected_ids":   expectedIDs,
		"schema":         batchSchema,
		"items":          batch,
		"instructions": "Assign exactly one primary_category to each message and provide a" +
			" probability-like score for every category that sums ~1. Return exactly one" +
			" output element per expected id, in the given order. Focus on the user's" +
			" intent. If the text is off-topic or unclear, use 'other'.",
	}

	text, err := c.provider.Classify(ctx, instructions, payload)
	if err != nil {
		return nil, err
	}
	raw, err := c.parseOrRepair(ctx, text, batchSchema, expectedIDs)
	if err != nil {
		return nil, err
	}
	return coerce.Reconcile(raw, expectedIDs, c.cats), nil
}

// Session classifies a whole session from its chronological transcript.
func (c *Classifier) Session(ctx context.Context, instructions, sessionID string, messages []TranscriptMessage) (coerce.SessionResult, error) {
	payload := map[string]any{
		"task":       "single-label session classification",
		"session_id": sessionID,
		"categories": c.cats.Labels(),
		"schema":     sessionSchema,
		"messages":   messages,
		"instructions": "Decide the category that best represents the customer's overall intent" +
			" across this session. Favor the user's messages over assistant/tool content." +
			" If mixed, choose the dominant or final resolved intent. Use 'other' when unclear.",
	}

	text, err := c.provider.Classify(ctx, instructions, payload)
	if err != nil {
		return coerce.SessionResult{}, err
	}
	raw, err := c.parseOrRepair(ctx, text, sessionSchema, nil)
	if err != nil {
		return coerce.SessionResult{}, err
	}
	return coerce.ReconcileSession(raw, c.cats), nil
}

const repairInstructions = "You fix malformed JSON. Convert the text you are given into a single" +
	" valid JSON object conforming to the supplied schema, preserving as much of the original" +
	" content as possible. Output only the JSON object, nothing else."

// parseOrRepair parses model output, escalating at most once to a
// model-assisted repair call when local repair cannot produce a JSON object.
// A second parse failure is terminal for the batch.
func (c *Classifier) parseOrRepair(ctx context.Context, text string, schema map[string]any, expectedIDs []int64) (map[string]any, error) {
	raw, err := llm.ParseWithRepair(text)
	if err == nil {
		return raw, nil
	}

	log.Printf("local JSON repair failed, requesting model-assisted repair: %v", err)
	payload := map[string]any{
		"task":           "convert the malformed text below into valid JSON",
		"schema":         schema,
		"malformed_text": text,
	}
	if len(expectedIDs) > 0 {
		payload["expected_ids"] = expectedIDs
	}

	fixed, callErr := c.provider.Classify(ctx, repairInstructions, payload)
	if callErr != nil {
		return nil, fmt.Errorf("model-assisted repair call: %w", callErr)
	}
	raw, err = llm.ParseWithRepair(fixed)
	if err != nil {
		return nil, fmt.Errorf("repair exhausted: %w", err)
	}
	return raw, nil
}

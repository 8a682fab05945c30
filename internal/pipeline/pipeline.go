// Package pipeline drives one incremental classification pass: it walks the
// sessions due for (re)processing and performs session- and/or message-level
// classification, persisting every result as soon as it is available so
// partial progress survives a crash.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/nwestf/chatclass/internal/classify"
	"github.com/nwestf/chatclass/internal/config"
	"github.com/nwestf/chatclass/internal/database"
	"github.com/nwestf/chatclass/internal/instructions"
	"github.com/nwestf/chatclass/internal/llm"
	"github.com/nwestf/chatclass/internal/taxonomy"
)

// maxMessageChars clips per-message text sent to the model.
const maxMessageChars = 4000

// Options control a single pipeline pass.
type Options struct {
	Roles              []string
	Since              string
	Limit              int
	ClassifySessions   bool
	ClassifyMessages   bool
	ReclassifyExisting bool
	BatchSize          int
}

// Result holds the counters of one pass.
type Result struct {
	RunID             string
	SessionsProcessed int
	MessagesProcessed int
	SessionsFailed    int
}

// Pipeline orchestrates incremental classification.
type Pipeline struct {
	cfg        *config.Config
	db         *database.DB
	provider   llm.Provider
	classifier *classify.Classifier
	source     *instructions.Source
}

// New creates a pipeline.
func New(cfg *config.Config, db *database.DB, provider llm.Provider, cats *taxonomy.Set) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		provider:   provider,
		classifier: classify.New(provider, cats),
		source:     instructions.NewSource(0),
	}
}

// Run executes one pass over all due sessions. A session whose batch fails
// terminally is logged and skipped; its watermark stays untouched so the
// next pass retries it. Only setup failures (instructions, scheduling) abort
// the pass.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	r := &Result{RunID: uuid.NewString()}

	var sessInstr, sessVer, msgInstr, msgVer string
	var err error
	if opts.ClassifySessions {
		sessInstr, sessVer, err = p.source.Load(p.cfg.Instructions.Session)
		if err != nil {
			return nil, fmt.Errorf("loading session instructions: %w", err)
		}
	}
	if opts.ClassifyMessages {
		msgInstr, msgVer, err = p.source.Load(p.cfg.Instructions.Message)
		if err != nil {
			return nil, fmt.Errorf("loading message instructions: %w", err)
		}
	}

	sessions, err := p.db.SessionsDue(opts.Since, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("finding due sessions: %w", err)
	}
	log.Printf("run %s: %d sessions due", r.RunID, len(sessions))

	for _, work := range sessions {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if err := p.processSession(ctx, opts, work, sessInstr, sessVer, msgInstr, msgVer, r); err != nil {
			log.Printf("run %s: session %s failed: %v", r.RunID, work.SessionID, err)
			r.SessionsFailed++
		}
	}

	log.Printf("run %s complete: %d sessions, %d messages, %d failed",
		r.RunID, r.SessionsProcessed, r.MessagesProcessed, r.SessionsFailed)
	return r, nil
}

func (p *Pipeline) processSession(ctx context.Context, opts Options, work database.SessionWork,
	sessInstr, sessVer, msgInstr, msgVer string, r *Result) error {

	msgs, err := p.db.MessagesForSession(work.SessionID, opts.Roles)
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	msgs = StripFirstUserInstructions(msgs, p.cfg.Classifier.FirstUserSplitMarker)

	if opts.ClassifySessions && len(msgs) > 0 {
		if err := p.classifySession(ctx, work, msgs, sessInstr, sessVer); err != nil {
			return err
		}
		r.SessionsProcessed++
	}

	if opts.ClassifyMessages && len(msgs) > 0 {
		n, err := p.classifyMessages(ctx, opts, work.SessionID, msgs, msgInstr, msgVer)
		r.MessagesProcessed += n
		if err != nil {
			return err
		}
	}
	return nil
}

// classifySession classifies the whole transcript and advances the session
// watermark to the max timestamp observed by the scheduler.
func (p *Pipeline) classifySession(ctx context.Context, work database.SessionWork,
	msgs []database.Message, instr, version string) error {

	transcript := make([]classify.TranscriptMessage, 0, len(msgs))
	for _, m := range msgs {
		transcript = append(transcript, classify.TranscriptMessage{
			Role:      m.Role,
			Content:   clip(deref(m.Content), maxMessageChars),
			Timestamp: m.Timestamp,
		})
	}

	res, err := p.classifier.Session(ctx, instr, work.SessionID, transcript)
	if err != nil {
		return fmt.Errorf("session classification: %w", err)
	}

	sc := database.SessionClassification{
		SessionID:       work.SessionID,
		PrimaryCategory: res.Primary,
		Scores:          res.Scores,
		ProcessedUpto:   work.MaxTimestamp,
		Model:           p.provider.Model(),
	}
	if version != "" {
		sc.InstructionsVersion = &version
	}
	if res.Rationale != "" {
		sc.Notes = &res.Rationale
	}
	if err := p.db.UpsertSessionClassification(sc); err != nil {
		return fmt.Errorf("persisting session classification: %w", err)
	}
	return nil
}

// classifyMessages classifies the session's messages in batches, skipping
// already-classified ids unless reclassification is forced. Each batch is
// upserted immediately. Returns how many messages were persisted, even when
// a later batch fails.
func (p *Pipeline) classifyMessages(ctx context.Context, opts Options, sessionID string,
	msgs []database.Message, instr, version string) (int, error) {

	already := map[int64]struct{}{}
	if !opts.ReclassifyExisting {
		var err error
		already, err = p.db.ClassifiedMessageIDs(sessionID)
		if err != nil {
			return 0, fmt.Errorf("fetching classified ids: %w", err)
		}
	}

	byID := make(map[int64]database.Message, len(msgs))
	var targets []classify.Item
	for _, m := range msgs {
		byID[m.ID] = m
		if _, done := already[m.ID]; done {
			continue
		}
		targets = append(targets, classify.Item{
			MessageID: m.ID,
			Text:      clip(deref(m.Content), maxMessageChars),
		})
	}
	if len(targets) == 0 {
		return 0, nil
	}

	processed := 0
	for _, batch := range chunk(targets, opts.BatchSize) {
		results, err := p.classifier.Messages(ctx, instr, batch)
		if err != nil {
			return processed, fmt.Errorf("message classification: %w", err)
		}
		for _, res := range results {
			m, ok := byID[res.ID]
			if !ok {
				continue
			}
			mc := database.MessageClassification{
				MessageID:       res.ID,
				SessionID:       m.SessionID,
				Role:            m.Role,
				PrimaryCategory: res.Primary,
				Scores:          res.Scores,
				Model:           p.provider.Model(),
			}
			if version != "" {
				mc.InstructionsVersion = &version
			}
			if err := p.db.UpsertMessageClassification(mc); err != nil {
				return processed, fmt.Errorf("persisting message classification: %w", err)
			}
			processed++
		}
	}
	return processed, nil
}

// StripFirstUserInstructions removes embedded boilerplate from the first
// user message: everything up to and including the marker is dropped. With
// an empty marker, or no match, messages are returned unchanged.
func StripFirstUserInstructions(msgs []database.Message, marker string) []database.Message {
	if marker == "" {
		return msgs
	}
	for i, m := range msgs {
		if m.Role != "user" {
			continue
		}
		if m.Content != nil {
			if _, after, found := strings.Cut(*m.Content, marker); found {
				cleaned := strings.TrimSpace(after)
				msgs[i].Content = &cleaned
			}
		}
		break
	}
	return msgs
}

// chunk splits items into batches of size n; n <= 0 means one batch.
func chunk(items []classify.Item, n int) [][]classify.Item {
	if n <= 0 || len(items) <= n {
		return [][]classify.Item{items}
	}
	var batches [][]classify.Item
	for start := 0; start < len(items); start += n {
		end := start + n
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

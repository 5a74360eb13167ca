// Package assistant answers caregiver questions. It chooses between knowledge-grounded and
// general generation, passes every answer through the guardrail engine and exposes
// single-shot and streaming APIs.
package assistant

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/suricare/suricare/internal/childctx"
	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/prompt"
)

// ErrorMessage is the only text shown to users when generation fails.
const ErrorMessage = "I apologize, but I'm having trouble processing your request right now. Please try again later."

// DefaultTimeout bounds one generation call, including streaming.
const DefaultTimeout = 60 * time.Second

// MinRelevantLength is the answer length below which an answer without sources is rejected.
const MinRelevantLength = 50

// Response types.
const (
	ResponseKnowledge = string(prompt.KindKnowledge)
	ResponseGeneral   = string(prompt.KindGeneral)
	ResponseError     = "error"
)

// hedgePhrases mark a knowledge-grounded answer that did not find what it needed.
var hedgePhrases = []string{
	"i don't have specific information",
	"i don't have enough information",
	"i cannot provide specific",
	"i'm not able to provide",
	"based on the information provided, i cannot",
	"i don't have access to",
	"the provided context doesn't contain",
}

// Generator produces text for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error]
}

// MessageStore persists chat messages.
type MessageStore interface {
	AddMessage(ctx context.Context, m *models.ChatMessage) error
}

// Assistant is the question-answering orchestrator. It is safe for concurrent use.
type Assistant struct {
	gen      Generator
	builder  *prompt.Builder
	guard    *guardrail.Engine
	search   knowledge.Searcher
	analyzer *patterns.Analyzer
	messages MessageStore
	timeout  time.Duration
	k        int
	now      func() time.Time
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithSearcher enables knowledge-grounded generation.
func WithSearcher(s knowledge.Searcher) Option {
	return func(a *Assistant) { a.search = s }
}

// WithAnalyzer enables child context built from recent pattern summaries.
func WithAnalyzer(an *patterns.Analyzer) Option {
	return func(a *Assistant) { a.analyzer = an }
}

// WithMessageStore persists exchanges for requests that carry a chat id.
func WithMessageStore(s MessageStore) Option {
	return func(a *Assistant) { a.messages = s }
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSearchK sets how many knowledge sources are retrieved.
func WithSearchK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.k = k
		}
	}
}

// WithClock overrides the time source used for child ages.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Assistant.
func New(gen Generator, builder *prompt.Builder, guard *guardrail.Engine, opts ...Option) *Assistant {
	a := &Assistant{
		gen:     gen,
		builder: builder,
		guard:   guard,
		timeout: DefaultTimeout,
		k:       knowledge.DefaultK,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Request is one caregiver question.
type Request struct {
	Query        string
	ChildContext string
	ChildID      int64
	ChatID       string
}

// Response is the outcome of Ask.
type Response struct {
	Response     string             `json:"response"`
	Sources      []knowledge.Source `json:"sources"`
	ResponseType string             `json:"response_type"`
	ContextUsed  string             `json:"context_used"`
	Guardrail    *guardrail.Result  `json:"guardrail,omitempty"`
}

// ContextFor renders the context block for a question about child. A nil child yields the
// general consultation context.
func (a *Assistant) ContextFor(ctx context.Context, child *models.Child, query string) string {
	if child == nil {
		return childctx.GeneralContext
	}
	p := childctx.ProfileOf(*child, a.now())
	report := patterns.Report{ChildID: child.ID}
	if a.analyzer != nil {
		report = a.analyzer.AnalyzeAll(ctx, child.ID)
	}
	return childctx.ForQuery(&p, report, query)
}

// IsRelevant reports whether a knowledge-grounded answer is usable. Hedge phrases always
// reject; a short answer is rejected only when no sources were attached.
func IsRelevant(answer string, hasSources bool) bool {
	lower := strings.ToLower(answer)
	for _, h := range hedgePhrases {
		if strings.Contains(lower, h) {
			return false
		}
	}
	if hasSources {
		return true
	}
	return len(strings.TrimSpace(answer)) >= MinRelevantLength
}

func (a *Assistant) sources(ctx context.Context, query string) []knowledge.Source {
	if a.search == nil {
		return nil
	}
	sources, err := a.search.Search(ctx, query, a.k)
	if err != nil {
		slog.Warn("Assistant.sources: knowledge search failed", "error", err)
		return nil
	}
	return sources
}

func snippets(sources []knowledge.Source) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		text := s.Snippet
		if text == "" {
			text = s.Content
		}
		out = append(out, text)
	}
	return out
}

// Ask answers req in one shot. Generation failures yield ErrorMessage; the error is logged
// but never returned to the caller.
func (a *Assistant) Ask(ctx context.Context, req Request) Response {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp := Response{Sources: []knowledge.Source{}, ContextUsed: req.ChildContext}
	sources := a.sources(ctx, req.Query)

	// Knowledge falls back to a general prompt when no source has usable text.
	p := a.builder.Knowledge(req.Query, req.ChildContext, snippets(sources))
	answer, err := a.gen.Generate(ctx, p.System, p.User)
	if hasSources := p.Kind == prompt.KindKnowledge; err == nil && hasSources && !IsRelevant(answer, hasSources) {
		slog.Debug("Assistant.Ask: knowledge answer judged irrelevant, regenerating", "child_id", req.ChildID)
		p = a.builder.General(req.Query, req.ChildContext)
		answer, err = a.gen.Generate(ctx, p.System, p.User)
	}
	resp.ResponseType = ResponseGeneral
	if p.Kind == prompt.KindKnowledge {
		resp.Sources = sources
		resp.ResponseType = ResponseKnowledge
	}
	if err != nil {
		slog.Error("Assistant.Ask: generation failed", "child_id", req.ChildID, "timeout", errors.Is(err, context.DeadlineExceeded), "error", err)
		return Response{Response: ErrorMessage, Sources: []knowledge.Source{}, ResponseType: ResponseError, ContextUsed: req.ChildContext}
	}

	res := a.guard.Apply(answer, req.Query)
	resp.Response = res.FixedResponse
	resp.Guardrail = &res
	slog.Info("Assistant.Ask: answered", "child_id", req.ChildID, "type", resp.ResponseType, "sources", len(resp.Sources),
		"violations", res.ViolationCount, "high", res.HighSeverityCount, "modified", res.ResponseModified)

	a.persist(ctx, req, res.FixedResponse)
	return resp
}

// persist stores the question and the final answer when the request names a chat.
func (a *Assistant) persist(ctx context.Context, req Request, answer string) {
	if a.messages == nil || req.ChatID == "" {
		return
	}
	// Persist even if the generation deadline has passed.
	ctx = context.WithoutCancel(ctx)
	for _, m := range []*models.ChatMessage{
		{ChatID: req.ChatID, Message: req.Query, Sender: models.SenderUser},
		{ChatID: req.ChatID, Message: answer, Sender: models.SenderAssistant},
	} {
		if err := a.messages.AddMessage(ctx, m); err != nil {
			slog.Error("Assistant.persist: failed to store message", "chat_id", req.ChatID, "sender", m.Sender, "error", err)
			return
		}
	}
}

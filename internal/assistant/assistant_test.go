package assistant

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suricare/suricare/internal/childctx"
	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/prompt"
	"github.com/suricare/suricare/internal/store"
)

const safeAnswer = "Her sleep averaged 9 hours this week. Please discuss these observations with your child's healthcare provider for proper evaluation."

// fakeGenerator answers prompts in order; a prompt containing "Relevant Knowledge" gets the
// knowledge answer, anything else the general one.
type fakeGenerator struct {
	mu        sync.Mutex
	knowledge string
	general   string
	err       error
	fragments []string
	streamErr error
	prompts   []string
	block     bool
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(user, "Relevant Knowledge") {
		return f.knowledge, nil
	}
	return f.general, nil
}

func (f *fakeGenerator) Stream(ctx context.Context, system, user string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

type fakeSearcher struct {
	sources []knowledge.Source
	err     error
}

func (s fakeSearcher) Search(ctx context.Context, query string, k int) ([]knowledge.Source, error) {
	return s.sources, s.err
}

var testSources = []knowledge.Source{{Content: "Naps shorten.", Category: "sleep", Topic: "Naps", Snippet: "Naps shorten with age."}}

func newTestAssistant(gen Generator, opts ...Option) *Assistant {
	engine := guardrail.NewDefault()
	return New(gen, prompt.NewBuilder(engine.Rules()), engine, opts...)
}

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		answer  string
		sources bool
		want    bool
	}{
		{"I don't have enough information to say.", true, false},
		{"The provided context doesn't contain anything on that, but here is a long answer anyway.", false, false},
		{"Short.", true, true},
		{"Short.", false, false},
		{strings.Repeat("a", MinRelevantLength), false, true},
	}
	for _, tt := range tests {
		if got := IsRelevant(tt.answer, tt.sources); got != tt.want {
			t.Errorf("IsRelevant(%q, %v) = %v, want %v", tt.answer, tt.sources, got, tt.want)
		}
	}
}

func TestAsk_KnowledgeAnswer(t *testing.T) {
	gen := &fakeGenerator{knowledge: safeAnswer, general: "general"}
	a := newTestAssistant(gen, WithSearcher(fakeSearcher{sources: testSources}))

	resp := a.Ask(context.Background(), Request{Query: "How long should she nap?", ChildContext: childctx.GeneralContext})
	if resp.ResponseType != ResponseKnowledge {
		t.Fatalf("ResponseType = %s, want knowledge_based", resp.ResponseType)
	}
	if resp.Response != safeAnswer || len(resp.Sources) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("expected one generation, got %d", len(gen.prompts))
	}
	if resp.Guardrail == nil || !resp.Guardrail.IsValid {
		t.Errorf("expected valid guardrail result, got %+v", resp.Guardrail)
	}
}

func TestAsk_IrrelevantKnowledgeFallsBackToGeneral(t *testing.T) {
	gen := &fakeGenerator{knowledge: "I don't have specific information about that.", general: safeAnswer}
	a := newTestAssistant(gen, WithSearcher(fakeSearcher{sources: testSources}))

	resp := a.Ask(context.Background(), Request{Query: "What about teething?", ChildContext: childctx.GeneralContext})
	if resp.ResponseType != ResponseGeneral {
		t.Fatalf("ResponseType = %s, want general_ai", resp.ResponseType)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("general answers carry no sources, got %v", resp.Sources)
	}
	if len(gen.prompts) != 2 || strings.Contains(gen.prompts[1], "Relevant Knowledge") {
		t.Errorf("expected knowledge then general prompt, got %q", gen.prompts)
	}
}

func TestAsk_BlankSourcesUseGeneral(t *testing.T) {
	blank := []knowledge.Source{{Content: "  ", Category: "sleep", Topic: "Naps"}}
	gen := &fakeGenerator{knowledge: safeAnswer, general: "Naps vary by age."}
	a := newTestAssistant(gen, WithSearcher(fakeSearcher{sources: blank}))

	resp := a.Ask(context.Background(), Request{Query: "How long should she nap?", ChildContext: childctx.GeneralContext})
	if resp.ResponseType != ResponseGeneral {
		t.Fatalf("ResponseType = %s, want general_ai", resp.ResponseType)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources without text must not be attached, got %v", resp.Sources)
	}
	if len(gen.prompts) != 1 || strings.Contains(gen.prompts[0], "Relevant Knowledge") {
		t.Errorf("expected a single general prompt, got %q", gen.prompts)
	}
}

func TestAsk_NoSearcherUsesGeneral(t *testing.T) {
	gen := &fakeGenerator{general: safeAnswer}
	resp := newTestAssistant(gen).Ask(context.Background(), Request{Query: "sleep?"})
	if resp.ResponseType != ResponseGeneral || resp.Response != safeAnswer {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAsk_SearchFailureIsAbsorbed(t *testing.T) {
	gen := &fakeGenerator{general: safeAnswer}
	a := newTestAssistant(gen, WithSearcher(fakeSearcher{err: errors.New("redis down")}))
	if resp := a.Ask(context.Background(), Request{Query: "sleep?"}); resp.ResponseType != ResponseGeneral {
		t.Errorf("ResponseType = %s", resp.ResponseType)
	}
}

func TestAsk_GuardrailFallback(t *testing.T) {
	gen := &fakeGenerator{general: "Don't worry, this is perfectly normal. Ask your doctor."}
	resp := newTestAssistant(gen).Ask(context.Background(), Request{Query: "Is my child having a seizure?"})
	if resp.Response != guardrail.NewDefault().Fallback() {
		t.Errorf("expected fallback, got %q", resp.Response)
	}
	if resp.Guardrail.IsValid || resp.Guardrail.HighSeverityCount == 0 {
		t.Errorf("expected invalid result, got %+v", resp.Guardrail)
	}
}

func TestAsk_GenerationErrorIsStatic(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream 500: secret details")}
	resp := newTestAssistant(gen).Ask(context.Background(), Request{Query: "sleep?"})
	if resp.Response != ErrorMessage || resp.ResponseType != ResponseError {
		t.Errorf("unexpected response %+v", resp)
	}
	if strings.Contains(resp.Response, "secret") {
		t.Error("raw error text leaked")
	}
}

func TestAsk_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	start := time.Now()
	resp := newTestAssistant(gen, WithTimeout(20*time.Millisecond)).Ask(context.Background(), Request{Query: "sleep?"})
	if resp.Response != ErrorMessage {
		t.Errorf("expected error message after timeout, got %q", resp.Response)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout not applied")
	}
}

func TestAsk_PersistsExchange(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	chat := &models.Chat{Title: "Sleep", OwnerID: 1}
	if err := st.CreateChat(ctx, chat); err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{general: "Sleep looked steady across the week"}
	a := newTestAssistant(gen, WithMessageStore(st))
	resp := a.Ask(ctx, Request{Query: "How is her sleep?", ChatID: chat.ID})

	msgs, err := st.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != models.SenderUser || msgs[1].Sender != models.SenderAssistant {
		t.Errorf("unexpected senders %s, %s", msgs[0].Sender, msgs[1].Sender)
	}
	if msgs[1].Message != resp.Response || !strings.HasSuffix(msgs[1].Message, "proper evaluation.") {
		t.Errorf("assistant message must be the guardrail-fixed answer, got %q", msgs[1].Message)
	}
}

func collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestStream_ConfirmedAnswer(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"Her sleep averaged 9 hours this week. ", "Please discuss these observations with your child's healthcare provider for proper evaluation."}}
	events := collect(newTestAssistant(gen, WithSearcher(fakeSearcher{sources: testSources})).Stream(context.Background(), Request{Query: "sleep?"}))

	if len(events) != 3 {
		t.Fatalf("expected 2 tokens + done, got %+v", events)
	}
	if events[0].Type != EventToken || events[0].ResponseType != ResponseKnowledge {
		t.Errorf("unexpected first event %+v", events[0])
	}
	done := events[2]
	if done.Type != EventDone || !done.Done || done.State != StateConfirmed || done.ResponseModified {
		t.Errorf("unexpected done event %+v", done)
	}
	if done.IsValid == nil || !*done.IsValid {
		t.Error("done event must report validity")
	}
}

func TestStream_BlankSourcesAreNotReported(t *testing.T) {
	blank := []knowledge.Source{{Content: "", Snippet: " ", Category: "sleep", Topic: "Naps"}}
	gen := &fakeGenerator{fragments: []string{safeAnswer}}
	events := collect(newTestAssistant(gen, WithSearcher(fakeSearcher{sources: blank})).Stream(context.Background(), Request{Query: "sleep?"}))

	if len(events) == 0 {
		t.Fatal("expected events")
	}
	for _, ev := range events {
		if ev.ResponseType != ResponseGeneral {
			t.Errorf("event %s ResponseType = %s, want general_ai", ev.Type, ev.ResponseType)
		}
		if ev.Sources == nil || len(ev.Sources) != 0 {
			t.Errorf("event %s must carry an empty source list, got %v", ev.Type, ev.Sources)
		}
	}
}

func TestStream_CorrectionBeforeDone(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"Children sometimes shake ", "when tired."}}
	events := collect(newTestAssistant(gen).Stream(context.Background(), Request{Query: "Is my child having a seizure?"}))

	if len(events) != 4 {
		t.Fatalf("expected 2 tokens, correction, done; got %+v", events)
	}
	corr := events[2]
	if corr.Type != EventCorrection || corr.Content != guardrail.NewDefault().Fallback() || !corr.ResponseModified {
		t.Errorf("unexpected correction %+v", corr)
	}
	done := events[3]
	if done.State != StateCorrected || *done.IsValid {
		t.Errorf("unexpected done %+v", done)
	}
	var emergency bool
	for _, v := range done.Violations {
		if v.RuleID == guardrail.RuleEmergencyProtocol {
			emergency = true
		}
	}
	if !emergency {
		t.Error("expected emergency_protocol violation in done event")
	}
}

func TestStream_GenerationErrorEndsWithErrorEvent(t *testing.T) {
	gen := &fakeGenerator{fragments: []string{"partial"}, streamErr: errors.New("boom")}
	events := collect(newTestAssistant(gen).Stream(context.Background(), Request{Query: "sleep?"}))
	last := events[len(events)-1]
	if last.Type != EventError || last.Content != ErrorMessage || !last.Done {
		t.Errorf("unexpected last event %+v", last)
	}
	for _, ev := range events {
		if ev.Type == EventDone || ev.Type == EventCorrection {
			t.Errorf("unexpected %s event after failure", ev.Type)
		}
	}
}

func TestStream_ConsumerStopDiscards(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	chat := &models.Chat{Title: "t", OwnerID: 1}
	if err := st.CreateChat(ctx, chat); err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{fragments: []string{"a", "b", "c"}}
	a := newTestAssistant(gen, WithMessageStore(st))

	n := 0
	for range a.Stream(ctx, Request{Query: "sleep?", ChatID: chat.ID}) {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
	msgs, _ := st.ListMessages(ctx, chat.ID)
	if len(msgs) != 0 {
		t.Errorf("cancelled stream must not persist, got %d messages", len(msgs))
	}
}

func TestStream_CancelledContextEmitsNothingFinal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGenerator{fragments: []string{"a", "b", "c"}}
	var events []Event
	for ev := range newTestAssistant(gen).Stream(ctx, Request{Query: "sleep?"}) {
		events = append(events, ev)
		cancel()
	}
	if len(events) != 1 || events[0].Type != EventToken {
		t.Errorf("expected a single token before cancellation, got %+v", events)
	}
}

type fakeEvents struct{}

func (fakeEvents) QueryEvents(ctx context.Context, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error) {
	if dim != models.DimensionSleep {
		return nil, nil
	}
	end := to.Add(-time.Hour)
	return []models.HealthEvent{models.SleepRecord{ChildID: childID, CheckIn: end, StartTime: end.Add(-9 * time.Hour), EndTime: end}}, nil
}

func TestContextFor(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	an := patterns.NewAnalyzer(fakeEvents{}, patterns.WithClock(func() time.Time { return now }))
	a := newTestAssistant(&fakeGenerator{}, WithAnalyzer(an), WithClock(func() time.Time { return now }))

	if got := a.ContextFor(context.Background(), nil, "sleep"); got != childctx.GeneralContext {
		t.Errorf("nil child context = %q", got)
	}
	child := &models.Child{ID: 3, Name: "Mia", BirthDate: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), Gender: "female"}
	got := a.ContextFor(context.Background(), child, "How did she sleep?")
	lines := strings.Split(got, "\n")
	if len(lines) != 2 || lines[0] != "Child: Mia, 5 months old (infant), female" || !strings.HasPrefix(lines[1], "Sleep (last 7 days): 9 hours average") {
		t.Errorf("unexpected context:\n%s", got)
	}
}

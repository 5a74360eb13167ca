package assistant

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/prompt"
)

// State is the phase of a streamed answer.
type State string

const (
	StateStreaming  State = "streaming"
	StateValidating State = "validating"
	StateCorrected  State = "corrected"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// EventType tags a stream event.
type EventType string

const (
	// EventToken carries one raw generated fragment. Raw text is unvalidated.
	EventToken EventType = "token"
	// EventCorrection carries the full guardrail-fixed answer. It supersedes every token.
	EventCorrection EventType = "correction"
	// EventDone is the terminal event of a completed answer.
	EventDone EventType = "done"
	// EventError is the terminal event of a failed answer.
	EventError EventType = "error"
)

// Event is one element of a streamed answer.
type Event struct {
	Type             EventType             `json:"type"`
	Content          string                `json:"content"`
	Sources          []knowledge.Source    `json:"sources"`
	ResponseType     string                `json:"response_type"`
	State            State                 `json:"state,omitempty"`
	ResponseModified bool                  `json:"response_modified,omitempty"`
	IsValid          *bool                 `json:"is_valid,omitempty"` // set on done events only
	Violations       []guardrail.Violation `json:"violations,omitempty"`
	Done             bool                  `json:"done"`
}

// streamRun tracks one streamed answer through its states.
type streamRun struct {
	state State
	req   Request
}

func (r *streamRun) to(next State) {
	slog.Debug("Assistant.Stream: state change", "child_id", r.req.ChildID, "from", r.state, "to", next)
	r.state = next
}

// Stream answers req as a sequence of events: tokens while generating, then a correction
// event if the guardrail changed the buffered answer, then a done event. A generation failure
// ends with a single error event carrying ErrorMessage. If ctx is cancelled, or the consumer
// stops early, the partial answer is discarded: no correction or done event is produced and
// nothing is persisted.
func (a *Assistant) Stream(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		run := &streamRun{state: StateStreaming, req: req}
		genCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		sources := a.sources(genCtx, req.Query)
		p := a.builder.Knowledge(req.Query, req.ChildContext, snippets(sources))
		if p.Kind != prompt.KindKnowledge {
			sources = []knowledge.Source{}
		}
		responseType := string(p.Kind)

		var buf strings.Builder
		for frag, err := range a.gen.Stream(genCtx, p.System, p.User) {
			if ctx.Err() != nil {
				run.to(StateCancelled)
				return
			}
			if err != nil {
				run.to(StateFailed)
				slog.Error("Assistant.Stream: generation failed", "child_id", req.ChildID, "timeout", errors.Is(err, context.DeadlineExceeded), "error", err)
				yield(Event{Type: EventError, Content: ErrorMessage, Sources: []knowledge.Source{}, ResponseType: ResponseError, State: StateFailed, Done: true})
				return
			}
			buf.WriteString(frag)
			if !yield(Event{Type: EventToken, Content: frag, Sources: sources, ResponseType: responseType, State: StateStreaming}) {
				run.to(StateCancelled)
				return
			}
		}
		if ctx.Err() != nil {
			run.to(StateCancelled)
			return
		}

		run.to(StateValidating)
		res := a.guard.Apply(buf.String(), req.Query)
		if res.ResponseModified {
			run.to(StateCorrected)
			if !yield(Event{Type: EventCorrection, Content: res.FixedResponse, Sources: sources, ResponseType: responseType, State: StateCorrected, ResponseModified: true}) {
				return
			}
		} else {
			run.to(StateConfirmed)
		}
		slog.Info("Assistant.Stream: answered", "child_id", req.ChildID, "type", responseType, "sources", len(sources),
			"violations", res.ViolationCount, "high", res.HighSeverityCount, "modified", res.ResponseModified)

		a.persist(ctx, req, res.FixedResponse)
		yield(Event{
			Type:             EventDone,
			Sources:          sources,
			ResponseType:     responseType,
			State:            run.state,
			ResponseModified: res.ResponseModified,
			IsValid:          &res.IsValid,
			Violations:       res.Violations,
			Done:             true,
		})
	}
}

package genai

import (
	"context"
	"iter"
	"strings"
)

// OfflineReply is returned by the offline generator.
const OfflineReply = "I'm an AI assistant, and the answer service is not configured right now, so I cannot look into this question in detail. You can still review the recorded sleep, meal, symptom and growth entries in the app. Please discuss any concerns with your child's healthcare provider."

// Offline is a generator used when no API key is configured. It answers every prompt with
// OfflineReply and streams it word by word.
type Offline struct{}

// Name identifies the generator.
func (Offline) Name() string { return "offline" }

// Generate returns OfflineReply unless ctx is done.
func (Offline) Generate(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return OfflineReply, nil
}

// Stream yields OfflineReply in word-sized fragments.
func (Offline) Stream(ctx context.Context, _, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		words := strings.SplitAfter(OfflineReply, " ")
		for _, w := range words {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

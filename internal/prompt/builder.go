// Package prompt assembles the instruction text sent to the generation capability.
//
// Every prompt starts with a fixed safety system prompt derived from the guardrail rule set,
// so the emergency redirect and disclaimer the model is asked to produce are exactly the
// sentences the guardrail engine later checks for.
package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/suricare/suricare/internal/guardrail"
)

// MaxSnippets is the number of knowledge snippets included in a knowledge-grounded prompt.
const MaxSnippets = 2

// maxEmergencyExamples bounds the emergency keywords quoted in the system prompt.
const maxEmergencyExamples = 8

const defaultPersona = "You are SuriAI, a pediatric health tracking assistant that helps caregivers observe patterns in their child's recorded data. You are an AI assistant, not a medical professional."

const formattingInstructions = `FORMATTING INSTRUCTIONS:
- Use clear paragraph breaks (double line breaks) between different topics or ideas
- Group observations under short category labels such as Sleep, Nutrition, Symptoms and Growth
- Use bullet points or numbered lists when appropriate
- Keep the response easy to scan and read`

// Kind tells which prompt shape was built.
type Kind string

const (
	KindKnowledge Kind = "knowledge_based"
	KindGeneral   Kind = "general_ai"
)

// Prompt is a system/user message pair.
type Prompt struct {
	Kind   Kind
	System string
	User   string
}

// String renders the prompt as a single text, for generators that take one input.
func (p Prompt) String() string {
	return p.System + "\n\n" + p.User
}

// Builder builds prompts. It is immutable after construction and safe for concurrent use.
type Builder struct {
	persona string
	system  string
}

// Option configures a Builder.
type Option func(*Builder)

// WithPersona replaces the introductory persona paragraph. The safety rules are always kept.
func WithPersona(text string) Option {
	return func(b *Builder) {
		if t := strings.TrimSpace(text); t != "" {
			b.persona = t
		}
	}
}

// LoadPersonaFile reads a persona paragraph from path.
func LoadPersonaFile(path string) (Option, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("prompt.LoadPersonaFile: failed to read persona file", "file", path, "error", err)
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}
	slog.Info("prompt.LoadPersonaFile: persona loaded", "file", path, "length", len(content))
	return WithPersona(string(content)), nil
}

// NewBuilder creates a Builder whose system prompt quotes the redirect and disclaimer of rs.
func NewBuilder(rs *guardrail.RuleSet, opts ...Option) *Builder {
	b := &Builder{persona: defaultPersona}
	for _, opt := range opts {
		opt(b)
	}
	b.system = systemPrompt(b.persona, rs)
	return b
}

// System returns the fixed safety system prompt.
func (b *Builder) System() string { return b.system }

func systemPrompt(persona string, rs *guardrail.RuleSet) string {
	examples := rs.Emergency.Keywords
	if len(examples) > maxEmergencyExamples {
		examples = examples[:maxEmergencyExamples]
	}
	disclaimer := ""
	if len(rs.Disclaimer.Sentences) > 0 {
		disclaimer = rs.Disclaimer.Sentences[0]
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nYou must always follow these rules:\n")
	sb.WriteString("1. Never say or imply that a condition, symptom or pattern is normal, safe or fine, and never tell the caregiver not to worry.\n")
	sb.WriteString("2. Never give a definitive diagnosis or name a specific disease. Use hedged language such as \"may suggest\" or \"could indicate\".\n")
	sb.WriteString("3. Never recommend medication, dosages, remedies or treatment.\n")
	sb.WriteString("4. Present the child's data as structured, categorized observations, describing what was recorded rather than what it means.\n")
	fmt.Fprintf(&sb, "5. If the question mentions an emergency sign (for example: %s), include this exact sentence: \"%s\"\n",
		strings.Join(examples, ", "), rs.Emergency.Redirect)
	fmt.Fprintf(&sb, "6. End every substantive answer with this disclaimer: \"%s\"\n", disclaimer)
	sb.WriteString("\n")
	sb.WriteString(formattingInstructions)
	return sb.String()
}

// Knowledge builds a knowledge-grounded prompt with at most MaxSnippets snippets ahead of the
// child context. With no usable snippet it falls back to General.
func (b *Builder) Knowledge(query, childContext string, snippets []string) Prompt {
	var parts []string
	for _, s := range snippets {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, "Relevant Information: "+s)
		}
		if len(parts) == MaxSnippets {
			break
		}
	}
	if len(parts) == 0 {
		return b.General(query, childContext)
	}

	var sb strings.Builder
	sb.WriteString("Use the following relevant information from the knowledge base along with general pediatric knowledge.\n\n")
	sb.WriteString("Relevant Knowledge:\n")
	sb.WriteString(strings.Join(parts, "\n"))
	sb.WriteString("\n\n")
	writeContextAndQuestion(&sb, query, childContext)
	sb.WriteString("Use the relevant information only if it applies to the question, and consider the child's age and recorded data.")
	return Prompt{Kind: KindKnowledge, System: b.system, User: sb.String()}
}

// General builds a prompt with the child context and question only.
func (b *Builder) General(query, childContext string) Prompt {
	var sb strings.Builder
	writeContextAndQuestion(&sb, query, childContext)
	sb.WriteString("Answer from general pediatric knowledge, considering the child's age and recorded data. If the question is outside child health and care, say so politely and help if appropriate.")
	return Prompt{Kind: KindGeneral, System: b.system, User: sb.String()}
}

func writeContextAndQuestion(sb *strings.Builder, query, childContext string) {
	sb.WriteString("Child Context:\n")
	sb.WriteString(strings.TrimSpace(childContext))
	sb.WriteString("\n\nUser Question: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\n")
}

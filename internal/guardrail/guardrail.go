// Package guardrail validates generated answers against a declarative safety rule set and
// repairs or replaces them.
//
// Validation never fails: malformed or empty input only produces more violations. Any
// high-severity violation replaces the whole answer with a fixed fallback; lower severities
// get local repairs (an appended disclaimer, a prepended AI-identity clause).
package guardrail

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule identifiers reported in violations.
const (
	RuleDiagnosticTerm    = "diagnostic_term"
	RuleEmergencyProtocol = "emergency_protocol"
	RuleMissingDisclaimer = "missing_disclaimer"
	RuleAIIdentity        = "ai_identity"
	RuleInternalError     = "internal_error"
	prohibitedRulePrefix  = "prohibited_"
)

// Violation is one broken rule found in a response.
type Violation struct {
	RuleID               string   `json:"rule_id"`
	Severity             Severity `json:"severity"`
	Description          string   `json:"description"`
	SuggestedReplacement string   `json:"suggested_replacement,omitempty"`
}

// Result is the outcome of applying the engine to one response.
type Result struct {
	OriginalResponse  string      `json:"original_response"`
	IsValid           bool        `json:"is_valid"`
	Violations        []Violation `json:"violations"`
	FixedResponse     string      `json:"fixed_response"`
	ResponseModified  bool        `json:"response_modified"`
	ViolationCount    int         `json:"violation_count"`
	HighSeverityCount int         `json:"high_severity_violations"`
}

type compiledPhrase struct {
	rule PhraseRule
	re   *regexp.Regexp
}

type compiledTerm struct {
	term string
	re   *regexp.Regexp
}

// Engine applies a compiled RuleSet. It is immutable and safe for concurrent use.
type Engine struct {
	rules      *RuleSet
	prohibited []compiledPhrase
	diagnostic []compiledTerm
	emergency  []compiledTerm
}

// New compiles rs into an Engine.
func New(rs *RuleSet) (*Engine, error) {
	if rs == nil {
		return nil, fmt.Errorf("%w: nil rule set", ErrInvalidRules)
	}
	if len(rs.Disclaimer.Sentences) == 0 || rs.Fallback == "" {
		return nil, fmt.Errorf("%w: a disclaimer sentence and a fallback are required", ErrInvalidRules)
	}
	e := &Engine{rules: rs}
	for _, r := range rs.Prohibited {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: prohibited pattern %q: %v", ErrInvalidRules, r.Pattern, err)
		}
		e.prohibited = append(e.prohibited, compiledPhrase{rule: r, re: re})
	}
	var err error
	if e.diagnostic, err = compileTerms(rs.DiagnosticTerms.Terms); err != nil {
		return nil, err
	}
	if e.emergency, err = compileTerms(rs.Emergency.Keywords); err != nil {
		return nil, err
	}
	return e, nil
}

// NewDefault returns an Engine over the built-in rule set.
func NewDefault() *Engine {
	e, err := New(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("guardrail: built-in rules do not compile: %v", err))
	}
	return e
}

// termSuffix admits common inflections of a listed term ("burned", "bloody", "asthmatic")
// while the word-start boundary still keeps "blue" out of "blueberry".
const termSuffix = `(?:s|es|d|ed|ing|y|ic|tic|atic)?`

// compileTerms builds case-insensitive matchers anchored at a word start, so "cure" does not
// match "secure".
func compileTerms(terms []string) ([]compiledTerm, error) {
	out := make([]compiledTerm, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(t) + termSuffix + `\b`)
		if err != nil {
			return nil, fmt.Errorf("%w: term %q: %v", ErrInvalidRules, t, err)
		}
		out = append(out, compiledTerm{term: t, re: re})
	}
	return out, nil
}

// Rules returns the rule set the engine was built from.
func (e *Engine) Rules() *RuleSet { return e.rules }

// Fallback returns the fixed safe response used for high-severity violations.
func (e *Engine) Fallback() string { return e.rules.Fallback }

// EmergencyRedirect returns the canonical emergency redirect sentence.
func (e *Engine) EmergencyRedirect() string { return e.rules.Emergency.Redirect }

// IsEmergency reports whether a caregiver query contains an emergency keyword.
func (e *Engine) IsEmergency(query string) bool {
	for _, k := range e.emergency {
		if k.re.MatchString(query) {
			return true
		}
	}
	return false
}

// Validate runs every check and reports whether the response has no high-severity
// violations.
func (e *Engine) Validate(response, query string) (bool, []Violation) {
	var vs []Violation
	vs = append(vs, e.checkProhibited(response)...)
	vs = append(vs, e.checkDiagnosticTerms(response)...)
	vs = append(vs, e.checkEmergency(response, query)...)
	vs = append(vs, e.checkDisclaimer(response)...)
	vs = append(vs, e.checkAIIdentity(response)...)
	return countHigh(vs) == 0, vs
}

func (e *Engine) checkProhibited(response string) []Violation {
	var vs []Violation
	for _, p := range e.prohibited {
		if p.re.MatchString(response) {
			vs = append(vs, Violation{
				RuleID:               prohibitedRulePrefix + p.rule.Category,
				Severity:             p.rule.Severity,
				Description:          fmt.Sprintf("Contains prohibited %s phrase: %s", p.rule.Category, p.rule.Pattern),
				SuggestedReplacement: "Remove reassuring or prescriptive language and describe the observed data",
			})
		}
	}
	return vs
}

func (e *Engine) checkDiagnosticTerms(response string) []Violation {
	var vs []Violation
	for _, t := range e.diagnostic {
		if t.re.MatchString(response) {
			vs = append(vs, Violation{
				RuleID:               RuleDiagnosticTerm,
				Severity:             e.rules.DiagnosticTerms.Severity,
				Description:          "Contains diagnostic term: " + t.term,
				SuggestedReplacement: fmt.Sprintf("Replace '%s' with a descriptive observation", t.term),
			})
		}
	}
	return vs
}

func (e *Engine) checkEmergency(response, query string) []Violation {
	if !e.IsEmergency(query) {
		return nil
	}
	redirect := e.rules.Emergency.Redirect
	if containsFold(response, redirect) {
		return nil
	}
	return []Violation{{
		RuleID:               RuleEmergencyProtocol,
		Severity:             e.rules.Emergency.Severity,
		Description:          "Emergency keywords detected but the emergency redirect is missing",
		SuggestedReplacement: redirect,
	}}
}

// HasDisclaimer reports whether text carries a canonical disclaimer or a disclaimer keyword.
func (e *Engine) HasDisclaimer(text string) bool {
	for _, s := range e.rules.Disclaimer.Sentences {
		if containsFold(text, s) {
			return true
		}
	}
	for _, k := range e.rules.Disclaimer.Keywords {
		if containsFold(text, k) {
			return true
		}
	}
	return false
}

func (e *Engine) checkDisclaimer(response string) []Violation {
	if e.HasDisclaimer(response) {
		return nil
	}
	return []Violation{{
		RuleID:               RuleMissingDisclaimer,
		Severity:             e.rules.Disclaimer.Severity,
		Description:          "Response lacks a healthcare consultation disclaimer",
		SuggestedReplacement: e.rules.Disclaimer.Sentences[0],
	}}
}

func (e *Engine) hasAIMarker(text string) bool {
	for _, m := range e.rules.AIIdentity.Markers {
		if containsFold(text, m) {
			return true
		}
	}
	return false
}

func (e *Engine) needsIdentity(text string) bool {
	return utf8.RuneCountInString(text) > e.rules.AIIdentity.MinLength && !e.hasAIMarker(text)
}

func (e *Engine) checkAIIdentity(response string) []Violation {
	if !e.needsIdentity(response) {
		return nil
	}
	return []Violation{{
		RuleID:               RuleAIIdentity,
		Severity:             e.rules.AIIdentity.Severity,
		Description:          "Long response does not identify the assistant as an AI",
		SuggestedReplacement: strings.TrimSpace(e.rules.AIIdentity.Prefix),
	}}
}

// Fix repairs response for the given violations. Any high-severity violation yields the
// fallback verbatim.
func (e *Engine) Fix(response string, vs []Violation) string {
	if countHigh(vs) > 0 {
		return e.rules.Fallback
	}
	fixed := response
	var identity bool
	for _, v := range vs {
		switch v.RuleID {
		case RuleMissingDisclaimer:
			fixed = e.appendDisclaimer(fixed)
		case RuleAIIdentity:
			identity = true
		}
	}
	// Appending the disclaimer can push a short answer over the identity threshold; repair
	// that too so a second pass finds nothing.
	if identity || (len(vs) > 0 && e.needsIdentity(fixed)) {
		fixed = e.prependIdentity(fixed)
	}
	return fixed
}

func (e *Engine) appendDisclaimer(text string) string {
	disclaimer := e.rules.Disclaimer.Sentences[0]
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if trimmed == "" {
		return disclaimer
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if !strings.ContainsRune(".!?", last) {
		trimmed += "."
	}
	return trimmed + "\n\n" + disclaimer
}

func (e *Engine) prependIdentity(text string) string {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	return e.rules.AIIdentity.Prefix + lowerFirst(text)
}

// lowerFirst lowercases the first letter unless the first word is the pronoun "I" or
// looks like an acronym.
func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	next, _ := utf8.DecodeRuneInString(s[size:])
	if r == 'I' && (next == utf8.RuneError || next == '\'' || next == '’' || !unicode.IsLetter(next)) {
		return s
	}
	if unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// Apply validates and repairs one response. It never panics; an internal failure yields
// the fallback with an internal_error violation.
func (e *Engine) Apply(response, query string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.Apply: recovered from panic", "panic", r)
			v := Violation{RuleID: RuleInternalError, Severity: SeverityHigh, Description: "Guardrail evaluation failed"}
			res = Result{
				OriginalResponse:  response,
				IsValid:           false,
				Violations:        []Violation{v},
				FixedResponse:     e.rules.Fallback,
				ResponseModified:  e.rules.Fallback != response,
				ViolationCount:    1,
				HighSeverityCount: 1,
			}
		}
	}()

	valid, vs := e.Validate(response, query)
	fixed := response
	if len(vs) > 0 {
		fixed = e.Fix(response, vs)
	}
	if vs == nil {
		vs = []Violation{}
	}
	res = Result{
		OriginalResponse:  response,
		IsValid:           valid,
		Violations:        vs,
		FixedResponse:     fixed,
		ResponseModified:  fixed != response,
		ViolationCount:    len(vs),
		HighSeverityCount: countHigh(vs),
	}
	if len(vs) > 0 {
		slog.Debug("Engine.Apply: violations found", "count", len(vs), "high", res.HighSeverityCount, "modified", res.ResponseModified)
	}
	return res
}

func countHigh(vs []Violation) int {
	n := 0
	for _, v := range vs {
		if v.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

package guardrail

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func hasRule(vs []Violation, id string) bool {
	for _, v := range vs {
		if v.RuleID == id {
			return true
		}
	}
	return false
}

func TestDefaultRulesValidate(t *testing.T) {
	rs := DefaultRules()
	if len(rs.Prohibited) == 0 || len(rs.Emergency.Keywords) == 0 {
		t.Fatal("expected built-in rules to be populated")
	}
	if rs.AIIdentity.MinLength != 200 {
		t.Errorf("MinLength = %d, want 200", rs.AIIdentity.MinLength)
	}
}

func TestParseRules_RejectsSchemaViolations(t *testing.T) {
	bad := strings.Replace(string(DefaultRulesYAML()), "severity: high", "severity: critical", 1)
	if _, err := ParseRules([]byte(bad)); !errors.Is(err, ErrInvalidRules) {
		t.Errorf("expected ErrInvalidRules for unknown severity, got %v", err)
	}
	if _, err := ParseRules([]byte("version: 1\n")); !errors.Is(err, ErrInvalidRules) {
		t.Errorf("expected ErrInvalidRules for missing sections, got %v", err)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, DefaultRulesYAML(), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if _, err := New(rs); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	rs := DefaultRules()
	rs.Prohibited = append(rs.Prohibited, PhraseRule{Pattern: "([", Category: "broken", Severity: SeverityHigh})
	if _, err := New(rs); !errors.Is(err, ErrInvalidRules) {
		t.Errorf("expected ErrInvalidRules, got %v", err)
	}
}

func TestApply_SeizureQueryWithoutRedirect(t *testing.T) {
	e := NewDefault()
	res := e.Apply("Children sometimes shake when they are tired. Please consult your pediatrician.", "Is my child having a seizure?")

	if res.IsValid {
		t.Error("expected invalid result")
	}
	var found bool
	for _, v := range res.Violations {
		if v.RuleID == RuleEmergencyProtocol {
			found = true
			if v.Severity != SeverityHigh {
				t.Errorf("emergency severity = %s, want high", v.Severity)
			}
		}
	}
	if !found {
		t.Fatal("expected emergency_protocol violation")
	}
	if res.FixedResponse != e.Fallback() {
		t.Errorf("FixedResponse = %q, want fallback", res.FixedResponse)
	}
	if !res.ResponseModified {
		t.Error("expected ResponseModified")
	}
}

func TestApply_EmergencyRedirectPresent(t *testing.T) {
	e := NewDefault()
	resp := "I'm an AI assistant. " + e.EmergencyRedirect()
	res := e.Apply(resp, "my baby is choking")
	if hasRule(res.Violations, RuleEmergencyProtocol) {
		t.Error("did not expect emergency_protocol violation when redirect is present")
	}
}

func TestApply_ShortResponseOnlyMissingDisclaimer(t *testing.T) {
	e := NewDefault()
	resp := "Sleep has stayed steady across the week."
	res := e.Apply(resp, "How is her sleep?")

	if len(res.Violations) != 1 {
		t.Fatalf("expected exactly 1 violation, got %+v", res.Violations)
	}
	v := res.Violations[0]
	if v.RuleID != RuleMissingDisclaimer || v.Severity != SeverityMedium {
		t.Errorf("unexpected violation %+v", v)
	}
	if !res.IsValid {
		t.Error("medium violation must not invalidate the response")
	}
	want := resp + "\n\n" + e.Rules().Disclaimer.Sentences[0]
	if res.FixedResponse != want {
		t.Errorf("FixedResponse = %q, want %q", res.FixedResponse, want)
	}
}

func TestApply_HighSeverityAlwaysFallback(t *testing.T) {
	e := NewDefault()
	tests := []struct {
		name     string
		response string
	}{
		{"reassurance", "This is perfectly normal. Talk to your doctor if it continues."},
		{"dont worry", "Don't worry, it will pass. Consult your pediatrician."},
		{"diagnostic term", "These symptoms look like pneumonia. Please see a doctor."},
		{"medication", "You should give paracetamol. Ask your doctor."},
		{"treatment", "The usual treatment is rest. Consult a doctor."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Apply(tt.response, "")
			if res.IsValid || res.HighSeverityCount == 0 {
				t.Fatalf("expected high severity violation, got %+v", res.Violations)
			}
			if res.FixedResponse != e.Fallback() || !res.ResponseModified {
				t.Errorf("expected fallback, got %q", res.FixedResponse)
			}
		})
	}
}

func TestApply_WordBoundaries(t *testing.T) {
	e := NewDefault()
	res := e.Apply("Keep the cot secure and consult your pediatrician.", "")
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %+v", res.Violations)
	}
	if e.IsEmergency("She has a blueberry stain") {
		t.Error("blueberry must not match the blue keyword")
	}

	for _, q := range []string{
		"My toddler burned her hand on the stove, what now?",
		"He has burns on his arm",
		"She has a bloody nose that won't stop",
		"He seems to be choking on something",
	} {
		if !e.IsEmergency(q) {
			t.Errorf("IsEmergency(%q) = false, want true", q)
		}
	}

	for _, resp := range []string{
		"There are several treatments you can try at home; consult your pediatrician.",
		"This cures most cases; consult your doctor.",
		"The pattern looks asthmatic; consult your doctor.",
		"She may have specific medications prescribed; consult your doctor.",
	} {
		res := e.Apply(resp, "")
		if res.IsValid || res.HighSeverityCount == 0 {
			t.Errorf("Apply(%q) should flag a high severity violation, got %+v", resp, res.Violations)
		}
	}
}

func TestApply_ZeroViolationsUnchanged(t *testing.T) {
	e := NewDefault()
	resp := "Her sleep averaged 9 hours this week. Please discuss these observations with your child's healthcare provider for proper evaluation."
	res := e.Apply(resp, "sleep?")
	if len(res.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", res.Violations)
	}
	if res.FixedResponse != resp || res.ResponseModified {
		t.Error("expected unchanged response")
	}
}

func TestApply_LongResponseGetsIdentity(t *testing.T) {
	e := NewDefault()
	resp := "Her sleep averaged 9 hours this week, which sits within the range you have been tracking. " +
		"Meals were mostly finished, with consumption around 85 percent, and no new symptoms were logged. " +
		"Keep noting bedtimes so the pattern stays clear."
	res := e.Apply(resp, "How was her week?")

	if !hasRule(res.Violations, RuleAIIdentity) || !hasRule(res.Violations, RuleMissingDisclaimer) {
		t.Fatalf("expected ai_identity and missing_disclaimer, got %+v", res.Violations)
	}
	if !strings.HasPrefix(res.FixedResponse, "As an AI assistant, her sleep") {
		t.Errorf("unexpected prefix: %q", res.FixedResponse[:40])
	}
	if !strings.HasSuffix(res.FixedResponse, e.Rules().Disclaimer.Sentences[0]) {
		t.Error("expected disclaimer appended")
	}
}

func TestApply_Idempotent(t *testing.T) {
	e := NewDefault()
	inputs := []string{
		"",
		"   ",
		"Sleep has stayed steady across the week",
		"I noticed more night waking on Tuesday and Wednesday, while meals stayed close to the usual amounts and " +
			"growth measurements were in line with the previous month. Night waking often changes with routine, " +
			"so it helps to keep logging bedtimes.",
		"Nap lengths were a little shorter this week, averaging just under two hours. Morning meals were eaten " +
			"well and evening meals less so. Keep an eye on the evening routine?",
	}
	for _, in := range inputs {
		first := e.Apply(in, "")
		if first.HighSeverityCount > 0 {
			t.Fatalf("unexpected high severity for %q: %+v", in, first.Violations)
		}
		second := e.Apply(first.FixedResponse, "")
		if second.FixedResponse != first.FixedResponse {
			t.Errorf("not idempotent for %q:\nfirst:  %q\nsecond: %q", in, first.FixedResponse, second.FixedResponse)
		}
		if len(second.Violations) != 0 {
			t.Errorf("second pass reintroduced violations for %q: %+v", in, second.Violations)
		}
	}
}

func TestApply_EmptyResponse(t *testing.T) {
	e := NewDefault()
	res := e.Apply("", "")
	if !hasRule(res.Violations, RuleMissingDisclaimer) {
		t.Errorf("expected missing_disclaimer for empty response, got %+v", res.Violations)
	}
	if res.FixedResponse != e.Rules().Disclaimer.Sentences[0] {
		t.Errorf("FixedResponse = %q", res.FixedResponse)
	}
}

func TestFallbackPassesItsOwnRules(t *testing.T) {
	e := NewDefault()
	res := e.Apply(e.Fallback(), "Is my child having a seizure?")
	if len(res.Violations) != 0 {
		t.Errorf("fallback violates rules: %+v", res.Violations)
	}
}

func TestLowerFirst(t *testing.T) {
	tests := map[string]string{
		"Her sleep": "her sleep",
		"I think":   "I think",
		"I'm here":  "I'm here",
		"AI tools":  "AI tools",
		"":          "",
		"9 hours":   "9 hours",
		"It is":     "it is",
	}
	for in, want := range tests {
		if got := lowerFirst(in); got != want {
			t.Errorf("lowerFirst(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApply_RecoversFromPanics(t *testing.T) {
	e := NewDefault()
	broken := *e
	rules := *e.rules
	rules.Disclaimer.Sentences = nil
	broken.rules = &rules

	res := broken.Apply("short", "")
	if res.FixedResponse != e.Fallback() || !hasRule(res.Violations, RuleInternalError) {
		t.Errorf("expected internal_error fallback, got %+v", res)
	}
}

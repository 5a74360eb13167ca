package guardrail

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

//go:embed rules.schema.json
var rulesSchemaJSON []byte

const rulesSchemaURL = "rules.schema.json"

// ErrInvalidRules is returned when a rule set fails schema validation or cannot be compiled.
var ErrInvalidRules = errors.New("invalid guardrail rules")

// Severity grades a violation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PhraseRule is one {pattern, category, severity} entry of the prohibited-phrase table.
type PhraseRule struct {
	Pattern  string   `yaml:"pattern" json:"pattern"`
	Category string   `yaml:"category" json:"category"`
	Severity Severity `yaml:"severity" json:"severity"`
}

// TermRule lists terms that share one severity.
type TermRule struct {
	Severity Severity `yaml:"severity" json:"severity"`
	Terms    []string `yaml:"terms" json:"terms"`
}

// EmergencyRule lists query keywords that require the redirect sentence in the response.
type EmergencyRule struct {
	Severity Severity `yaml:"severity" json:"severity"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Redirect string   `yaml:"redirect" json:"redirect"`
}

// DisclaimerRule lists canonical disclaimer sentences and disclaimer-adjacent keywords.
type DisclaimerRule struct {
	Severity  Severity `yaml:"severity" json:"severity"`
	Sentences []string `yaml:"sentences" json:"sentences"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
}

// IdentityRule requires long responses to identify the assistant as an AI.
type IdentityRule struct {
	Severity  Severity `yaml:"severity" json:"severity"`
	MinLength int      `yaml:"min_length" json:"min_length"`
	Markers   []string `yaml:"markers" json:"markers"`
	Prefix    string   `yaml:"prefix" json:"prefix"`
}

// RuleSet is the declarative configuration of the guardrail engine.
type RuleSet struct {
	Version         int            `yaml:"version" json:"version"`
	Prohibited      []PhraseRule   `yaml:"prohibited" json:"prohibited"`
	DiagnosticTerms TermRule       `yaml:"diagnostic_terms" json:"diagnostic_terms"`
	Emergency       EmergencyRule  `yaml:"emergency" json:"emergency"`
	Disclaimer      DisclaimerRule `yaml:"disclaimer" json:"disclaimer"`
	AIIdentity      IdentityRule   `yaml:"ai_identity" json:"ai_identity"`
	Fallback        string         `yaml:"fallback" json:"fallback"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func rulesSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(rulesSchemaURL, bytes.NewReader(rulesSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(rulesSchemaURL)
	})
	return schema, schemaErr
}

// ParseRules decodes a YAML (or JSON) rule set and validates it against the rule schema.
func ParseRules(data []byte) (*RuleSet, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	sch, err := rulesSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	return &rs, nil
}

// LoadRules reads and validates a rule set file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guardrail rules %s: %w", path, err)
	}
	rs, err := ParseRules(data)
	if err != nil {
		slog.Error("guardrail.LoadRules: invalid rule set", "path", path, "error", err)
		return nil, err
	}
	slog.Debug("guardrail.LoadRules: loaded", "path", path, "prohibited", len(rs.Prohibited))
	return rs, nil
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleSet {
	rs, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("guardrail: built-in rules invalid: %v", err))
	}
	return rs
}

// DefaultRulesYAML returns the built-in rule set source, for exporting and editing.
func DefaultRulesYAML() []byte {
	return bytes.Clone(defaultRulesYAML)
}

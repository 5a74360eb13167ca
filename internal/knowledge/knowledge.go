// Package knowledge loads a curated child-care knowledge base and searches it.
//
// Documents are chunked and ranked by cosine similarity of embeddings when an Embedder is
// configured, or by word overlap otherwise. Search results can be cached in Redis.
package knowledge

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

//go:embed knowledge_base.json
var defaultKnowledgeBase []byte

// ErrInvalidKnowledgeBase is returned when a knowledge base file cannot be decoded.
var ErrInvalidKnowledgeBase = errors.New("invalid knowledge base")

// Document is one knowledge base entry.
type Document struct {
	Category string   `json:"category"`
	Topic    string   `json:"topic"`
	Content  string   `json:"content"`
	AgeRange string   `json:"age_range,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Text renders the document as indexed text.
func (d Document) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n", d.Category)
	if d.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", d.Topic)
	}
	fmt.Fprintf(&sb, "Content: %s\n", d.Content)
	if d.AgeRange != "" {
		fmt.Fprintf(&sb, "Age Range: %s\n", d.AgeRange)
	}
	if len(d.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(d.Tags, ", "))
	}
	return sb.String()
}

type entry struct {
	Topic    string   `json:"topic"`
	Content  string   `json:"content"`
	AgeRange string   `json:"age_range"`
	Tags     []string `json:"tags"`
}

// Parse decodes a knowledge base of the form {category: [entry | "plain text", ...]}.
// Categories are returned in name order; non-list categories are skipped.
func Parse(data []byte) ([]Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKnowledgeBase, err)
	}
	categories := make([]string, 0, len(raw))
	for c := range raw {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var docs []Document
	for _, category := range categories {
		var items []json.RawMessage
		if err := json.Unmarshal(raw[category], &items); err != nil {
			slog.Debug("knowledge.Parse: skipping non-list category", "category", category)
			continue
		}
		for i, item := range items {
			var text string
			if err := json.Unmarshal(item, &text); err == nil {
				if strings.TrimSpace(text) != "" {
					docs = append(docs, Document{Category: category, Content: strings.TrimSpace(text)})
				}
				continue
			}
			var e entry
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidKnowledgeBase, category, i, err)
			}
			if strings.TrimSpace(e.Content) == "" {
				continue
			}
			docs = append(docs, Document{
				Category: category,
				Topic:    e.Topic,
				Content:  strings.TrimSpace(e.Content),
				AgeRange: e.AgeRange,
				Tags:     e.Tags,
			})
		}
	}
	return docs, nil
}

// Load reads a knowledge base file.
func Load(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", path, err)
	}
	docs, err := Parse(data)
	if err != nil {
		slog.Error("knowledge.Load: invalid knowledge base", "path", path, "error", err)
		return nil, err
	}
	slog.Info("knowledge.Load: loaded", "path", path, "documents", len(docs))
	return docs, nil
}

// Default returns the built-in knowledge base.
func Default() []Document {
	docs, err := Parse(defaultKnowledgeBase)
	if err != nil {
		panic(fmt.Sprintf("knowledge: built-in knowledge base invalid: %v", err))
	}
	return docs
}

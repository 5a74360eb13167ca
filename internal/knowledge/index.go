package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultK is the number of sources returned by a search.
const DefaultK = 3

// maxSourceLength is the length at which a source's display content is truncated.
const maxSourceLength = 200

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Source is one search result.
type Source struct {
	Content  string  `json:"content"`
	Category string  `json:"category"`
	Topic    string  `json:"topic"`
	Snippet  string  `json:"snippet,omitempty"`
	Score    float64 `json:"score"`
}

// Searcher finds the k knowledge sources most relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Source, error)
}

// Index is an in-memory searchable knowledge base. It is immutable after Build.
type Index struct {
	chunks   []Chunk
	vectors  [][]float64
	terms    []map[string]int
	embedder Embedder
}

// Build chunks docs and, when embedder is non-nil, embeds every chunk. An embedding failure
// leaves the index in lexical mode rather than failing.
func Build(ctx context.Context, docs []Document, embedder Embedder) *Index {
	idx := &Index{chunks: ChunkDocuments(docs, DefaultChunkSize, DefaultChunkOverlap)}
	idx.terms = make([]map[string]int, len(idx.chunks))
	for i, c := range idx.chunks {
		idx.terms[i] = termCounts(c.Text)
	}
	if embedder != nil && len(idx.chunks) > 0 {
		texts := make([]string, len(idx.chunks))
		for i, c := range idx.chunks {
			texts[i] = c.Text
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil || len(vectors) != len(texts) {
			slog.Warn("knowledge.Build: embedding failed, using lexical search", "chunks", len(texts), "error", err)
		} else {
			idx.vectors = vectors
			idx.embedder = embedder
		}
	}
	slog.Info("knowledge.Build: index ready", "documents", len(docs), "chunks", len(idx.chunks), "semantic", idx.Semantic())
	return idx
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Semantic reports whether the index ranks by embeddings.
func (x *Index) Semantic() bool { return x.embedder != nil }

type scored struct {
	i     int
	score float64
}

// Search returns up to k sources ordered by relevance. Lexical results with no shared word
// are dropped. If embedding the query fails the search falls back to lexical ranking.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Source, error) {
	if k <= 0 {
		k = DefaultK
	}
	if len(x.chunks) == 0 || strings.TrimSpace(query) == "" {
		return []Source{}, nil
	}

	var ranked []scored
	if x.embedder != nil {
		qv, err := x.embedder.Embed(ctx, []string{query})
		if err == nil && len(qv) == 1 {
			if len(x.vectors) > 0 && len(qv[0]) != len(x.vectors[0]) {
				slog.Warn("Index.Search: query embedding dimension differs from index", "query_dim", len(qv[0]), "index_dim", len(x.vectors[0]))
			}
			for i, v := range x.vectors {
				ranked = append(ranked, scored{i: i, score: Cosine(qv[0], v)})
			}
		} else {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("embed query: %w", ctx.Err())
			}
			slog.Warn("Index.Search: query embedding failed, using lexical search", "error", err)
		}
	}
	if ranked == nil {
		ranked = x.lexical(query)
	}

	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Source, 0, len(ranked))
	for _, r := range ranked {
		c := x.chunks[r.i]
		topic := c.Doc.Topic
		if topic == "" {
			topic = "N/A"
		}
		out = append(out, Source{
			Content:  truncate(c.Text, maxSourceLength),
			Category: c.Doc.Category,
			Topic:    topic,
			Snippet:  c.Text,
			Score:    r.score,
		})
	}
	return out, nil
}

func (x *Index) lexical(query string) []scored {
	q := termCounts(query)
	var ranked []scored
	for i, terms := range x.terms {
		var shared float64
		for t := range q {
			if terms[t] > 0 {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		ranked = append(ranked, scored{i: i, score: shared / float64(len(q))})
	}
	return ranked
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty or zero or
// their dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"can": true, "do": true, "does": true, "for": true, "from": true, "has": true, "have": true,
	"her": true, "his": true, "how": true, "i": true, "in": true, "is": true, "it": true, "my": true,
	"of": true, "on": true, "or": true, "she": true, "he": true, "should": true, "that": true,
	"the": true, "their": true, "this": true, "to": true, "what": true, "when": true, "with": true,
	"category": true, "topic": true, "content": true, "tags": true,
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		counts[strings.TrimSuffix(w, "s")]++
	}
	return counts
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

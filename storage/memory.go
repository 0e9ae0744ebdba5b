package storage

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"

	"videoChat/core"
)

// MemoryStore is a lexical in-process index: term-frequency vectors with
// cosine similarity. It needs no API or database and is the default
// backend and the fallback for the others.
type MemoryStore struct {
	mu        sync.RWMutex
	built     bool
	textDocs  []memDoc
	imageDocs []memDoc
}

type memDoc struct {
	content string // snippet for text docs, file path for image docs
	embed   map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Build(ctx context.Context, dir string) error {
	c, err := scanWorkingDir(dir)
	if err != nil {
		return err
	}

	textDocs := make([]memDoc, 0, len(c.textDocs))
	for _, t := range c.textDocs {
		textDocs = append(textDocs, memDoc{content: t, embed: embedText(t)})
	}
	imageDocs := make([]memDoc, 0, len(c.imageDocs))
	for _, img := range c.imageDocs {
		imageDocs = append(imageDocs, memDoc{content: img.path, embed: embedText(img.repText)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.textDocs = textDocs
	s.imageDocs = imageDocs
	s.built = true
	return nil
}

func (s *MemoryStore) Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]TextHit, []ImageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return nil, nil, &core.NotIndexedError{}
	}

	qv := embedText(query)

	textScores := make([]float64, len(s.textDocs))
	for i, d := range s.textDocs {
		textScores[i] = cosine(qv, d.embed)
	}
	textHits := make([]TextHit, 0, topKText)
	for _, i := range rank(textScores, topKText) {
		textHits = append(textHits, TextHit{Snippet: s.textDocs[i].content, Score: textScores[i]})
	}

	imageScores := make([]float64, len(s.imageDocs))
	for i, d := range s.imageDocs {
		imageScores[i] = cosine(qv, d.embed)
	}
	imageHits := make([]ImageHit, 0, topKImage)
	for _, i := range rank(imageScores, topKImage) {
		imageHits = append(imageHits, ImageHit{Path: s.imageDocs[i].content, Score: imageScores[i]})
	}

	return textHits, imageHits, nil
}

var nonLetter = regexp.MustCompile(`[^a-zA-Z0-9\p{Han}]+`)

var stops = map[string]struct{}{"the": {}, "and": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "that": {}, "this": {}, "it": {}, "as": {}, "at": {}, "be": {}, "by": {}, "from": {}}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = nonLetter.ReplaceAllString(s, " ")
	parts := strings.Fields(s)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, ok := stops[p]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func embedText(s string) map[string]float64 {
	vec := map[string]float64{}
	for _, tok := range tokenize(s) {
		vec[tok]++
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for k, va := range a {
		na += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

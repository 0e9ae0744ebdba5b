package storage

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"

	"videoChat/config"
)

// TextHit is one retrieved transcript snippet.
type TextHit struct {
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// ImageHit is one retrieved frame, referenced by file path.
type ImageHit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// MultiModalStore is the knowledge index over one ingested video. Build
// scans the working directory and replaces any previous index contents;
// Retrieve returns two independently ranked, independently truncated lists.
// Retrieve before a successful Build fails with core.NotIndexedError.
type MultiModalStore interface {
	Build(ctx context.Context, dir string) error
	Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]TextHit, []ImageHit, error)
}

// NewStore selects the index backend from the STORE environment variable:
// pgvector, milvus, or the in-memory lexical index (default). Backends that
// need API or database access fall back to memory with a warning, so a
// missing config never blocks ingestion.
func NewStore(cfg *config.Config, sessionID string) MultiModalStore {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch kind {
	case "pgvector":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			log.Println("Warning: API configuration required for pgvector store, falling back to memory store")
			return NewMemoryStore()
		}
		s, err := NewPgVectorStore(cfg, sessionID)
		if err != nil {
			log.Printf("Warning: Failed to initialize pgvector store (%v), falling back to memory store", err)
			return NewMemoryStore()
		}
		return s
	case "milvus":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			log.Println("Warning: API configuration required for Milvus store, falling back to memory store")
			return NewMemoryStore()
		}
		s, err := NewMilvusStore(cfg, sessionID)
		if err != nil {
			log.Printf("Warning: Failed to initialize Milvus store (%v), falling back to memory store", err)
			return NewMemoryStore()
		}
		return s
	default:
		return NewMemoryStore()
	}
}

// rank returns document indices ordered by descending score. Equal scores
// keep insertion order.
func rank(scores []float64, topK int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if topK < 0 {
		topK = 0
	}
	if topK > len(idx) {
		topK = len(idx)
	}
	return idx[:topK]
}

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"videoChat/config"
)

// Embedder turns text into a similarity vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const embeddingDim = 1536

type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

func NewOpenAIEmbedder(cfg *config.Config) OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return OpenAIEmbedder{cli: openai.NewClientWithConfig(clientConfig), model: cfg.EmbeddingModel}
}

func (e OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// CachedEmbedder memoizes embeddings in Redis keyed by model and content
// hash. Rebuilding the index for the same video then skips the embedding
// calls entirely.
type CachedEmbedder struct {
	next  Embedder
	rdb   *redis.Client
	model string
	ttl   time.Duration
}

func (c CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "videochat:emb:" + hex.EncodeToString(sum[:])
}

func (c CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("Warning: embedding cache write failed: %v", err)
		}
	}
	return vec, nil
}

// NewEmbedder builds the embedding chain: the OpenAI-compatible embedder,
// wrapped with the Redis cache when redis_addr is configured and reachable.
func NewEmbedder(cfg *config.Config) Embedder {
	var e Embedder = NewOpenAIEmbedder(cfg)
	if cfg.RedisAddr == "" {
		return e
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis unreachable at %s (%v), embedding cache disabled", cfg.RedisAddr, err)
		return e
	}
	return CachedEmbedder{next: e, rdb: rdb, model: cfg.EmbeddingModel, ttl: 7 * 24 * time.Hour}
}

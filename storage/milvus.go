package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoChat/config"
	"videoChat/core"
)

// MilvusStore keeps the index in a Milvus collection, one row per document,
// scoped by session id.
type MilvusStore struct {
	mu        sync.RWMutex
	mc        client.Client
	coll      string
	embedder  Embedder
	sessionID string
	built     bool
}

func NewMilvusStore(cfg *config.Config, sessionID string) (*MilvusStore, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "video_documents"
	}

	mc, err := client.NewClient(context.Background(), client.Config{
		Address:  addr,
		Username: os.Getenv("MILVUS_USERNAME"),
		Password: os.Getenv("MILVUS_PASSWORD"),
		APIKey:   os.Getenv("MILVUS_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusStore{mc: mc, coll: coll, embedder: NewEmbedder(cfg), sessionID: sessionID}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema().WithName(s.coll)
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("session_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("modality").WithDataType(entity.FieldTypeVarChar).WithMaxLength(16))
		schema.WithField(entity.NewField().WithName("doc_order").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("file_path").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(embeddingDim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) sessionExpr() string {
	return fmt.Sprintf("session_id == \"%s\"", strings.ReplaceAll(s.sessionID, "\"", "\\\""))
}

func (s *MilvusStore) Build(ctx context.Context, dir string) error {
	c, err := scanWorkingDir(dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A failed rebuild must not leave a partially inserted index queryable.
	s.built = false
	if err := s.mc.Delete(ctx, s.coll, "", s.sessionExpr()); err != nil {
		return fmt.Errorf("clear previous index: %w", err)
	}

	type doc struct {
		modality string
		order    int64
		content  string
		filePath string
	}
	docs := make([]doc, 0, len(c.textDocs)+len(c.imageDocs))
	for i, t := range c.textDocs {
		docs = append(docs, doc{modality: "text", order: int64(i), content: t})
	}
	for i, img := range c.imageDocs {
		docs = append(docs, doc{modality: "image", order: int64(i), content: img.repText, filePath: img.path})
	}
	if len(docs) == 0 {
		s.built = true
		return nil
	}

	sessionIDs := make([]string, 0, len(docs))
	modalities := make([]string, 0, len(docs))
	orders := make([]int64, 0, len(docs))
	contents := make([]string, 0, len(docs))
	paths := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for _, d := range docs {
		v, err := s.embedder.Embed(ctx, d.content)
		if err != nil {
			return err
		}
		sessionIDs = append(sessionIDs, s.sessionID)
		modalities = append(modalities, d.modality)
		orders = append(orders, d.order)
		contents = append(contents, d.content)
		paths = append(paths, d.filePath)
		vectors = append(vectors, v)
	}

	if _, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("session_id", sessionIDs),
		entity.NewColumnVarChar("modality", modalities),
		entity.NewColumnInt64("doc_order", orders),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("file_path", paths),
		entity.NewColumnFloatVector("vector", embeddingDim, vectors),
	); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}

	s.built = true
	return nil
}

type milvusHit struct {
	content  string
	filePath string
	order    int64
	score    float64
}

func (s *MilvusStore) search(ctx context.Context, qv []float32, modality string, topK int) ([]milvusHit, error) {
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("hnsw search param: %w", err)
	}
	filter := fmt.Sprintf("%s && modality == \"%s\"", s.sessionExpr(), modality)
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter,
		[]string{"content", "file_path", "doc_order"},
		[]entity.Vector{entity.FloatVector(qv)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search %s documents: %w", modality, err)
	}

	var hits []milvusHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var h milvusHit
			if c, ok := cols["content"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.content = data[i]
				}
			}
			if c, ok := cols["file_path"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.filePath = data[i]
				}
			}
			if c, ok := cols["doc_order"].(*entity.ColumnInt64); ok {
				if data := c.Data(); i < len(data) {
					h.order = data[i]
				}
			}
			h.score = float64(r.Scores[i])
			hits = append(hits, h)
		}
	}
	// Milvus orders by score only; re-sort so equal scores keep insertion
	// order.
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].order < hits[b].order
	})
	return hits, nil
}

func (s *MilvusStore) Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]TextHit, []ImageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return nil, nil, &core.NotIndexedError{}
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	textRaw, err := s.search(ctx, qv, "text", topKText)
	if err != nil {
		return nil, nil, err
	}
	textHits := make([]TextHit, 0, len(textRaw))
	for _, h := range textRaw {
		textHits = append(textHits, TextHit{Snippet: h.content, Score: h.score})
	}

	imageRaw, err := s.search(ctx, qv, "image", topKImage)
	if err != nil {
		return nil, nil, err
	}
	imageHits := make([]ImageHit, 0, len(imageRaw))
	for _, h := range imageRaw {
		imageHits = append(imageHits, ImageHit{Path: h.filePath, Score: h.score})
	}

	return textHits, imageHits, nil
}

// Close drops the session's rows and disconnects.
func (s *MilvusStore) Close(ctx context.Context) error {
	_ = s.mc.Delete(ctx, s.coll, "", s.sessionExpr())
	return s.mc.Close()
}

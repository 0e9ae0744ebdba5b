package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"videoChat/core"
	"videoChat/storage"
	"videoChat/utils"
)

// PromptTemplate is the fixed QA prompt. The wording is load-bearing for
// answer compatibility and must not be edited.
const PromptTemplate = `Given the provided information, including relevant images and retrieved context from the video,
accurately and precisely answer the query without any additional prior knowledge.

Please ensure honesty and responsibility, refraining from any racist or sexist remarks.

---------------------
Context: %s
Metadata for video: %s
---------------------
Query: %s
Answer:`

const (
	topKText  = 5
	topKImage = 5
)

// Composer assembles the retrieval-augmented answer for one user turn.
type Composer struct {
	Store storage.MultiModalStore
	LLM   LLM
}

// Answer retrieves top-k context for the query, fills the prompt template
// and delegates generation. Retrieved text snippets are joined with a
// newline; each retrieved image carries its capture-time annotation looked
// up from the frame mapping, empty when the file name is unknown.
func (c Composer) Answer(ctx context.Context, query string, meta core.VideoMetadata, frames map[string]core.Frame) (string, error) {
	textHits, imageHits, err := c.Store.Retrieve(ctx, query, topKText, topKImage)
	if err != nil {
		return "", err
	}

	snippets := make([]string, 0, len(textHits))
	for _, h := range textHits {
		snippets = append(snippets, h.Snippet)
	}
	contextStr := strings.Join(snippets, "\n")

	images := make([]ImageDocument, 0, len(imageHits))
	for _, h := range imageHits {
		doc, err := loadImageDocument(h.Path, frames)
		if err != nil {
			log.Printf("Warning: skipping retrieved image %s: %v", h.Path, err)
			continue
		}
		images = append(images, doc)
	}

	prompt := fmt.Sprintf(PromptTemplate, contextStr, meta.String(), query)
	answer, err := c.LLM.Generate(ctx, prompt, images)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func loadImageDocument(path string, frames map[string]core.Frame) (ImageDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageDocument{}, err
	}
	dataURL, err := core.EncodeImageDataURL(data)
	if err != nil {
		return ImageDocument{}, err
	}

	annotation := ""
	if rec, ok := frames[filepath.Base(path)]; ok {
		annotation = fmt.Sprintf("Frame %s captured at %s", rec.FileName, utils.FormatTime(rec.TimestampSec))
	}
	return ImageDocument{Path: path, DataURL: dataURL, Annotation: annotation}, nil
}

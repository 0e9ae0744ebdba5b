package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videoChat/config"
	"videoChat/core"
)

// ImageDocument is a retrieved frame handed to the language model: the data
// URL for the vision API plus the capture-time annotation, empty when the
// frame record is unknown.
type ImageDocument struct {
	Path       string
	DataURL    string
	Annotation string
}

// LLM is the capability surface of a multimodal language model: one prompt,
// an ordered list of images, one text answer.
type LLM interface {
	Generate(ctx context.Context, prompt string, images []ImageDocument) (string, error)
}

// GPT4o generates answers through an OpenAI-compatible multimodal chat
// endpoint.
type GPT4o struct {
	cli       *openai.Client
	model     string
	maxTokens int
}

func NewGPT4o(cfg *config.Config) GPT4o {
	return GPT4o{cli: OpenAIClient(cfg), model: cfg.ChatModel, maxTokens: cfg.MaxTokens}
}

func (g GPT4o) Generate(ctx context.Context, prompt string, images []ImageDocument) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	for _, img := range images {
		if img.Annotation != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: img.Annotation,
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxTokens: g.maxTokens,
	}
	resp, err := g.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &core.GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &core.GenerationError{Err: fmt.Errorf("no choices returned")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

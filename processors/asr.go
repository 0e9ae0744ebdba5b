package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videoChat/config"
	"videoChat/core"
)

// Transcriber turns an extracted audio file into one plain-text blob.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type WhisperASR struct {
	cli   *openai.Client
	model string
}

func NewWhisperASR(cli *openai.Client, model string) WhisperASR {
	return WhisperASR{cli: cli, model: model}
}

func (w WhisperASR) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", &core.RecognitionError{AudioPath: audioPath, Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &core.RecognitionError{AudioPath: audioPath, Err: fmt.Errorf("empty transcription result")}
	}
	return text, nil
}

// MockASR produces a placeholder transcript without calling any service.
type MockASR struct{}

func (m MockASR) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return fmt.Sprintf("Placeholder transcript for %s", audioPath), nil
}

// PickTranscriber selects the transcription provider: ASR=mock forces the
// placeholder, otherwise Whisper via the configured API, falling back to
// mock when no API credentials are present.
func PickTranscriber() Transcriber {
	asr := strings.ToLower(strings.TrimSpace(os.Getenv("ASR")))
	if asr == "mock" {
		return MockASR{}
	}

	cfg, err := config.LoadConfig()
	if err != nil || !cfg.HasValidAPI() {
		log.Println("Warning: API configuration not found for Whisper ASR, using mock transcription")
		return MockASR{}
	}
	return NewWhisperASR(OpenAIClient(cfg), cfg.ASRModel)
}

// OpenAIClient builds a client against the configured OpenAI-compatible
// endpoint.
func OpenAIClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

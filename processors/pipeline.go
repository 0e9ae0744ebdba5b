package processors

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"videoChat/core"
)

// FrameSampler and AudioExtractor mirror the ffmpeg-backed stage functions
// so the pipeline orchestration can be exercised without a decoder.
type FrameSampler func(ctx context.Context, videoPath, outDir string, rate float64) (map[string]core.Frame, error)

type AudioExtractor func(ctx context.Context, videoPath, audioOut string) error

// Pipeline runs one ingestion: fetch -> sample frames -> extract audio ->
// transcribe -> persist artifacts. Artifacts land in the working directory
// using the canonical layout from core.
type Pipeline struct {
	Fetcher      Fetcher
	Sampler      FrameSampler
	Extractor    AudioExtractor
	Transcriber  Transcriber
	SamplingRate float64

	// StageTimeout bounds each external stage (download, decode,
	// transcription). Zero means the default.
	StageTimeout time.Duration
}

const defaultStageTimeout = 10 * time.Minute

func NewPipeline(fetcher Fetcher, transcriber Transcriber, rate float64) *Pipeline {
	return &Pipeline{
		Fetcher:      fetcher,
		Sampler:      SampleFrames,
		Extractor:    ExtractAudio,
		Transcriber:  transcriber,
		SamplingRate: rate,
	}
}

func (p *Pipeline) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	t := p.StageTimeout
	if t <= 0 {
		t = defaultStageTimeout
	}
	return context.WithTimeout(ctx, t)
}

// Ingest processes the url into the working directory root and returns the
// video metadata plus the file name -> frame record mapping. Fetch and
// frame-decode failures abort the run; any audio extraction or
// transcription failure degrades to an empty transcript.
func (p *Pipeline) Ingest(ctx context.Context, url, root string) (*core.IngestResult, error) {
	if err := os.MkdirAll(core.VideoDataDir(root), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(core.MixedDataDir(root), 0755); err != nil {
		return nil, err
	}

	log.Printf("Reading video from url: %s ...", url)
	fetchCtx, cancel := p.stageCtx(ctx)
	videoPath, meta, err := p.Fetcher.Fetch(fetchCtx, url, core.VideoDataDir(root))
	cancel()
	if err != nil {
		return nil, err
	}
	log.Println("Video downloaded successfully.")

	sampleCtx, cancel := p.stageCtx(ctx)
	frames, err := p.Sampler(sampleCtx, videoPath, root, p.SamplingRate)
	cancel()
	if err != nil {
		return nil, err
	}
	log.Printf("Frames extracted successfully. %d frames at %g fps", len(frames), p.SamplingRate)

	transcript := ""
	audioPath := core.AudioPath(root)
	audioCtx, cancel := p.stageCtx(ctx)
	err = p.Extractor(audioCtx, videoPath, audioPath)
	cancel()
	if err != nil {
		// Empty-transcript policy: a video without usable audio is still
		// ingestible, only the transcript is lost.
		var decodeErr *core.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.NoAudio {
			log.Println("Warning: video has no audio track, continuing with empty transcript")
		} else {
			log.Printf("Warning: audio extraction failed (%v), continuing with empty transcript", err)
		}
	} else {
		asrCtx, cancel := p.stageCtx(ctx)
		text, err := p.Transcriber.Transcribe(asrCtx, audioPath)
		cancel()
		if err != nil {
			log.Printf("Warning: transcription failed (%v), continuing with empty transcript", err)
		} else {
			transcript = text
		}
	}

	if err := os.WriteFile(core.TranscriptPath(root), []byte(transcript), 0644); err != nil {
		return nil, err
	}
	log.Println("Text data saved to file")

	return &core.IngestResult{Metadata: meta, Frames: frames, Transcript: transcript}, nil
}

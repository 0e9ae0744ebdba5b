package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"videoChat/core"
	"videoChat/storage"
)

// State of a conversation session. Transitions:
// Uninitialized -> Ingesting -> Indexed <-> Querying, with Failed terminal
// for unrecovered ingestion errors.
type State int

const (
	StateUninitialized State = iota
	StateIngesting
	StateIndexed
	StateQuerying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIngesting:
		return "ingesting"
	case StateIndexed:
		return "indexed"
	case StateQuerying:
		return "querying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ingestor runs one ingestion into a working directory.
type Ingestor interface {
	Ingest(ctx context.Context, url, root string) (*core.IngestResult, error)
}

// Session owns one video conversation: the working directory, the knowledge
// index over it, the video metadata and the turn history. All operations
// are single-flight; ingest and ask never overlap.
type Session struct {
	mu sync.Mutex

	id       string
	workDir  string
	state    State
	pipeline Ingestor
	store    storage.MultiModalStore
	composer Composer

	metadata core.VideoMetadata
	frames   map[string]core.Frame
	history  []core.Turn
}

func NewSession(id, outputFolder string, pipeline Ingestor, store storage.MultiModalStore, llm LLM) (*Session, error) {
	workDir := filepath.Join(outputFolder, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	return &Session{
		id:       id,
		workDir:  workDir,
		state:    StateUninitialized,
		pipeline: pipeline,
		store:    store,
		composer: Composer{Store: store, LLM: llm},
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) WorkDir() string { return s.workDir }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ingest runs the pipeline and builds the knowledge index. Valid only from
// Uninitialized; a fetch or decode failure moves the session to Failed.
func (s *Session) Ingest(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("ingest not valid in state %s", state)
	}
	s.state = StateIngesting
	s.mu.Unlock()

	result, err := s.pipeline.Ingest(ctx, url, s.workDir)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return err
	}

	log.Println("Indexing data ...")
	if err := s.store.Build(ctx, s.workDir); err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.metadata = result.Metadata
	s.frames = result.Frames
	s.state = StateIndexed
	s.mu.Unlock()
	log.Println("Process video done!")
	return nil
}

// Ask answers one user turn. On success the user message and the answer are
// appended to the history; on failure the history is untouched and the
// session stays Indexed so the same turn may be retried.
func (s *Session) Ask(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	if s.state != StateIndexed {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("ask not valid in state %s", state)
	}
	s.state = StateQuerying
	meta := s.metadata
	frames := s.frames
	s.mu.Unlock()

	answer, err := s.composer.Answer(ctx, message, meta, frames)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIndexed
	if err != nil {
		return "", err
	}
	s.history = append(s.history,
		core.Turn{Role: core.RoleUser, Content: message},
		core.Turn{Role: core.RoleAssistant, Content: answer},
	)
	return answer, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SetHistory replaces the conversation, used by history import.
func (s *Session) SetHistory(turns []core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]core.Turn(nil), turns...)
}

// Undo removes the last turn. A no-op on an empty history.
func (s *Session) Undo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 0 {
		s.history = s.history[:len(s.history)-1]
	}
}

// Frames returns the file name -> frame record mapping of the last
// ingestion.
func (s *Session) Frames() map[string]core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Session) Metadata() core.VideoMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Close tears the session down, deleting the working directory and any
// backend state the index holds.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type closer interface {
		Close(ctx context.Context) error
	}
	if c, ok := s.store.(closer); ok {
		if err := c.Close(ctx); err != nil {
			log.Printf("Warning: closing index for session %s: %v", s.id, err)
		}
	}
	return os.RemoveAll(s.workDir)
}

package processors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"videoChat/core"
	"videoChat/storage"
)

type fakeStore struct {
	built     bool
	textHits  []storage.TextHit
	imageHits []storage.ImageHit
	buildErr  error
}

func (f *fakeStore) Build(ctx context.Context, dir string) error {
	if f.buildErr != nil {
		return f.buildErr
	}
	f.built = true
	return nil
}

func (f *fakeStore) Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]storage.TextHit, []storage.ImageHit, error) {
	if !f.built {
		return nil, nil, &core.NotIndexedError{}
	}
	return f.textHits, f.imageHits, nil
}

type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
	lastImages []ImageDocument
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, images []ImageDocument) (string, error) {
	f.lastPrompt = prompt
	f.lastImages = images
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeIngestor struct {
	result *core.IngestResult
	err    error
}

func (f fakeIngestor) Ingest(ctx context.Context, url, root string) (*core.IngestResult, error) {
	return f.result, f.err
}

func newTestSession(t *testing.T, store *fakeStore, llm *fakeLLM) *Session {
	t.Helper()
	ing := fakeIngestor{result: &core.IngestResult{
		Metadata: core.VideoMetadata{Title: "clip"},
		Frames:   map[string]core.Frame{"frame_00000.png": {FileName: "frame_00000.png"}},
	}}
	sess, err := NewSession("test-session", t.TempDir(), ing, store, llm)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return sess
}

func TestSessionAskBeforeIngest(t *testing.T) {
	sess := newTestSession(t, &fakeStore{}, &fakeLLM{answer: "a"})
	if _, err := sess.Ask(context.Background(), "hi"); err == nil {
		t.Fatal("ask before ingest should fail")
	}
	if sess.State() != StateUninitialized {
		t.Errorf("state = %s", sess.State())
	}
}

func TestSessionIngestThenAsk(t *testing.T) {
	store := &fakeStore{textHits: []storage.TextHit{{Snippet: "a car drives by", Score: 0.9}}}
	llm := &fakeLLM{answer: "The car is red."}
	sess := newTestSession(t, store, llm)

	if err := sess.Ingest(context.Background(), "http://example/v"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if sess.State() != StateIndexed {
		t.Fatalf("state after ingest = %s", sess.State())
	}

	answer, err := sess.Ask(context.Background(), "What color is the car?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer == "" {
		t.Fatal("expected non-empty answer")
	}
	if len(llm.lastImages) != 0 {
		t.Errorf("text-only retrieval should pass no images, got %d", len(llm.lastImages))
	}

	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Role != core.RoleUser || history[1].Role != core.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestSessionSecondIngestInvalid(t *testing.T) {
	sess := newTestSession(t, &fakeStore{}, &fakeLLM{answer: "a"})
	if err := sess.Ingest(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Ingest(context.Background(), "u"); err == nil {
		t.Fatal("second ingest should be rejected")
	}
}

func TestSessionIngestFailure(t *testing.T) {
	store := &fakeStore{}
	llm := &fakeLLM{}
	ing := fakeIngestor{err: &core.FetchError{URL: "bad", Err: fmt.Errorf("network")}}
	sess, err := NewSession("failing", t.TempDir(), ing, store, llm)
	if err != nil {
		t.Fatal(err)
	}

	err = sess.Ingest(context.Background(), "bad")
	var fetchErr *core.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s, want failed", sess.State())
	}
}

func TestSessionGenerationFailureLeavesStateAndHistory(t *testing.T) {
	store := &fakeStore{textHits: []storage.TextHit{{Snippet: "ctx", Score: 1}}}
	llm := &fakeLLM{answer: "ok"}
	sess := newTestSession(t, store, llm)
	if err := sess.Ingest(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Ask(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}

	llm.err = &core.GenerationError{Err: fmt.Errorf("rate limited")}
	_, err := sess.Ask(context.Background(), "second")
	var genErr *core.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if sess.State() != StateIndexed {
		t.Errorf("state after failed turn = %s, want indexed", sess.State())
	}
	if len(sess.History()) != 2 {
		t.Errorf("failed turn must not touch history, length = %d", len(sess.History()))
	}

	// The same turn may be retried.
	llm.err = nil
	if _, err := sess.Ask(context.Background(), "second"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(sess.History()) != 4 {
		t.Errorf("history length after retry = %d", len(sess.History()))
	}
}

func TestSessionUndo(t *testing.T) {
	sess := newTestSession(t, &fakeStore{built: true}, &fakeLLM{answer: "a"})
	sess.SetHistory([]core.Turn{
		{Role: core.RoleUser, Content: "q"},
		{Role: core.RoleAssistant, Content: "a"},
	})
	sess.Undo()
	if got := len(sess.History()); got != 1 {
		t.Errorf("history length after undo = %d", got)
	}
	sess.Undo()
	sess.Undo() // no-op on empty history
	if got := len(sess.History()); got != 0 {
		t.Errorf("history length = %d", got)
	}
}

func TestSessionCloseRemovesWorkDir(t *testing.T) {
	sess := newTestSession(t, &fakeStore{}, &fakeLLM{})
	dir := sess.WorkDir()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("workdir missing before close: %v", err)
	}
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("workdir still present after close")
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"videoChat/config"
	"videoChat/core"
	"videoChat/processors"
	"videoChat/storage"
)

type stubStore struct{ built bool }

func (s *stubStore) Build(ctx context.Context, dir string) error {
	s.built = true
	return nil
}

func (s *stubStore) Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]storage.TextHit, []storage.ImageHit, error) {
	if !s.built {
		return nil, nil, &core.NotIndexedError{}
	}
	return []storage.TextHit{{Snippet: "context", Score: 1}}, nil, nil
}

type stubLLM struct{ err error }

func (s stubLLM) Generate(ctx context.Context, prompt string, images []processors.ImageDocument) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "stub answer", nil
}

type stubIngestor struct{ err error }

func (s stubIngestor) Ingest(ctx context.Context, url, root string) (*core.IngestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.IngestResult{
		Metadata: core.VideoMetadata{Title: "clip"},
		Frames:   map[string]core.Frame{},
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ChatModel:    "gpt-4o",
		OutputFolder: "temp_data",
		VideoFPS:     0.2,
		MaxTokens:    1500,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	srv := New(testConfig(), func(id string, cfg *config.Config) (*processors.Session, error) {
		return processors.NewSession(id, root, stubIngestor{}, &stubStore{}, stubLLM{})
	})
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["session_id"] == "" {
		t.Fatal("empty session id")
	}
	return body["session_id"]
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateSessionOverrides(t *testing.T) {
	root := t.TempDir()
	base := testConfig()
	var got *config.Config
	srv := New(base, func(id string, cfg *config.Config) (*processors.Session, error) {
		got = cfg
		return processors.NewSession(id, root, stubIngestor{}, &stubStore{}, stubLLM{})
	})
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/sessions", map[string]any{"api_key": "k", "video_fps": 9.9, "max_tokens": 7})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	if got == nil {
		t.Fatal("factory never called")
	}
	if got.APIKey != "k" || got.VideoFPS != 9.9 || got.MaxTokens != 7 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if base.APIKey != "" || base.VideoFPS != 0.2 || base.MaxTokens != 1500 {
		t.Errorf("base configuration mutated: %+v", base)
	}
}

func TestCreateSessionMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/sessions", "application/json", bytes.NewReader([]byte("{{{not json")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateSessionInvalidOverride(t *testing.T) {
	ts := newTestServer(t)
	for _, payload := range []map[string]any{
		{"max_tokens": 0},
		{"video_fps": -1},
		{"api_key": "   "},
	} {
		resp := postJSON(t, ts.URL+"/sessions", payload)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %v status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestIngestAndAsk(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/ingest", ts.URL, id), map[string]string{"url": "http://example/v"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}

	resp2 := postJSON(t, fmt.Sprintf("%s/sessions/%s/ask", ts.URL, id), map[string]string{"message": "What color is the car?"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("ask status = %d", resp2.StatusCode)
	}
	var ask askResponse
	if err := json.NewDecoder(resp2.Body).Decode(&ask); err != nil {
		t.Fatal(err)
	}
	if ask.Answer == "" {
		t.Error("expected non-empty answer")
	}
}

func TestAskBeforeIngest(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/ask", ts.URL, id), map[string]string{"message": "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("ask before ingest status = %d", resp.StatusCode)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	turns := []core.Turn{
		{Role: core.RoleUser, Content: "q1"},
		{Role: core.RoleAssistant, Content: "a1"},
		{Role: core.RoleUser, Content: "q2"},
	}
	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/history", ts.URL, id), HistoryExport{History: turns})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(fmt.Sprintf("%s/sessions/%s/history", ts.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var exported HistoryExport
	if err := json.NewDecoder(resp2.Body).Decode(&exported); err != nil {
		t.Fatal(err)
	}
	if len(exported.History) != len(turns) {
		t.Fatalf("round trip length = %d, want %d", len(exported.History), len(turns))
	}
	for i := range turns {
		if !reflect.DeepEqual(exported.History[i], turns[i]) {
			t.Errorf("turn %d = %+v, want %+v", i, exported.History[i], turns[i])
		}
	}
}

func TestHistoryImportBareList(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	// Legacy exports are a bare list without the wrapper object.
	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/history", ts.URL, id), []core.Turn{
		{Role: core.RoleUser, Content: "legacy"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bare-list import status = %d", resp.StatusCode)
	}
	var out HistoryExport
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.History) != 1 || out.History[0].Content != "legacy" {
		t.Errorf("unexpected imported history: %+v", out.History)
	}
}

func TestUndo(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	postJSON(t, fmt.Sprintf("%s/sessions/%s/history", ts.URL, id), HistoryExport{History: []core.Turn{
		{Role: core.RoleUser, Content: "q"},
		{Role: core.RoleAssistant, Content: "a"},
	}}).Body.Close()

	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/undo", ts.URL, id), nil)
	defer resp.Body.Close()
	var out HistoryExport
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.History) != 1 {
		t.Errorf("history length after undo = %d", len(out.History))
	}
}

func TestSessionNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/sessions/nope/ask", map[string]string{"message": "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sessions/%s", ts.URL, id), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp2 := postJSON(t, fmt.Sprintf("%s/sessions/%s/ask", ts.URL, id), map[string]string{"message": "hi"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("deleted session still reachable: %d", resp2.StatusCode)
	}
}

func TestGenerationFailureKeepsHistory(t *testing.T) {
	root := t.TempDir()
	store := &stubStore{}
	llm := &stubLLM{err: &core.GenerationError{Err: fmt.Errorf("rate limit")}}
	srv := New(testConfig(), func(id string, cfg *config.Config) (*processors.Session, error) {
		return processors.NewSession(id, root, stubIngestor{}, store, llm)
	})
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	id := createSession(t, ts)
	postJSON(t, fmt.Sprintf("%s/sessions/%s/ingest", ts.URL, id), map[string]string{"url": "u"}).Body.Close()

	resp := postJSON(t, fmt.Sprintf("%s/sessions/%s/ask", ts.URL, id), map[string]string{"message": "q"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("ask status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(fmt.Sprintf("%s/sessions/%s/history", ts.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var out HistoryExport
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.History) != 0 {
		t.Errorf("failed turn leaked into history: %+v", out.History)
	}
}

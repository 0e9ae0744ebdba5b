package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"videoChat/config"
	"videoChat/core"
	"videoChat/processors"
	"videoChat/storage"
)

// SessionFactory builds a session for a fresh id from its effective
// configuration. Injected so handler tests can run without ffmpeg or any
// API.
type SessionFactory func(id string, cfg *config.Config) (*processors.Session, error)

// Server is the HTTP chat surface: session lifecycle, ingestion, question
// answering and history import/export.
type Server struct {
	mu         sync.RWMutex
	cfg        *config.Config
	sessions   map[string]*processors.Session
	newSession SessionFactory
}

func New(cfg *config.Config, factory SessionFactory) *Server {
	return &Server{cfg: cfg, sessions: map[string]*processors.Session{}, newSession: factory}
}

// DefaultFactory wires the production dependencies: yt-dlp fetch, ffmpeg
// sampling, the configured transcriber, index backend and chat model.
func DefaultFactory() SessionFactory {
	return func(id string, cfg *config.Config) (*processors.Session, error) {
		pipeline := processors.NewPipeline(processors.YtDlpFetcher{}, processors.PickTranscriber(), cfg.VideoFPS)
		store := storage.NewStore(cfg, id)
		return processors.NewSession(id, cfg.OutputFolder, pipeline, store, processors.NewGPT4o(cfg))
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionHandler)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// The body is optional; when present it carries per-session settings
	// overriding the base configuration.
	var overrides config.Overrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && err != io.EOF {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	cfg, err := s.cfg.Apply(overrides)
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	sess, err := s.newSession(id, cfg)
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Printf("Session created: %s", id)
	core.WriteJSON(w, http.StatusOK, map[string]string{"session_id": id, "state": sess.State().String()})
}

// sessionHandler dispatches /sessions/{id}[/action].
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.deleteSession(w, r, id, sess)
	case action == "ingest" && r.Method == http.MethodPost:
		s.ingestHandler(w, r, sess)
	case action == "ask" && r.Method == http.MethodPost:
		s.askHandler(w, r, sess)
	case action == "undo" && r.Method == http.MethodPost:
		sess.Undo()
		core.WriteJSON(w, http.StatusOK, HistoryExport{History: sess.History()})
	case action == "history" && r.Method == http.MethodGet:
		core.WriteJSON(w, http.StatusOK, HistoryExport{History: sess.History()})
	case action == "history" && r.Method == http.MethodPost:
		s.importHistoryHandler(w, r, sess)
	default:
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, id string, sess *processors.Session) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := sess.Close(r.Context()); err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	log.Printf("Session deleted: %s", id)
	core.WriteJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

type ingestRequest struct {
	URL string `json:"url"`
}

type ingestResponse struct {
	SessionID string             `json:"session_id"`
	State     string             `json:"state"`
	Metadata  core.VideoMetadata `json:"metadata"`
	Frames    int                `json:"frames"`
}

func (s *Server) ingestHandler(w http.ResponseWriter, r *http.Request, sess *processors.Session) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	if err := sess.Ingest(r.Context(), req.URL); err != nil {
		status := http.StatusInternalServerError
		var fetchErr *core.FetchError
		if errors.As(err, &fetchErr) {
			status = http.StatusBadGateway
		}
		core.WriteJSON(w, status, map[string]string{"error": err.Error(), "state": sess.State().String()})
		return
	}

	core.WriteJSON(w, http.StatusOK, ingestResponse{
		SessionID: sess.ID(),
		State:     sess.State().String(),
		Metadata:  sess.Metadata(),
		Frames:    len(sess.Frames()),
	})
}

type askRequest struct {
	Message string `json:"message"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request, sess *processors.Session) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	answer, err := sess.Ask(r.Context(), req.Message)
	if err != nil {
		// Failed turns are surfaced without touching history; the client
		// may retry the same question.
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error(), "state": sess.State().String()})
		return
	}
	core.WriteJSON(w, http.StatusOK, askResponse{SessionID: sess.ID(), Answer: answer})
}

func (s *Server) importHistoryHandler(w http.ResponseWriter, r *http.Request, sess *processors.Session) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	turns, err := DecodeHistory(data)
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sess.SetHistory(turns)
	core.WriteJSON(w, http.StatusOK, HistoryExport{History: sess.History()})
}

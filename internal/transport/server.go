package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
	"github.com/morango-sync/morango/internal/synclog"
)

// ServerBackend is what the HTTP surface needs from the sync engine to
// answer an inbound request: the mirror image of SyncConnection. Kept
// here, not in internal/syncsession, so transport never imports the
// engine package — syncsession implements this interface and wires itself
// into a Server at construction time.
type ServerBackend interface {
	HandleCreateSyncSession(ctx context.Context, clientCertificate string) (*model.SyncSession, error)
	HandleCreateTransferSession(ctx context.Context, ts *model.TransferSession) (*model.TransferSession, error)
	HandlePushBuffer(ctx context.Context, transferSessionID string, chunks []BufferChunk) error
	HandlePullBuffer(ctx context.Context, transferSessionID string) ([]BufferChunk, error)
	HandleClose(ctx context.Context, transferSessionID string) error
}

// Server is the net/http surface matching HTTPConnection's four endpoints,
// delegating all sync-engine logic to a ServerBackend.
type Server struct {
	Backend ServerBackend
}

// NewServer builds a Server over backend.
func NewServer(backend ServerBackend) *Server {
	return &Server{Backend: backend}
}

// Handler returns the http.Handler to mount. The routes below are
// registered on their full /api/morango/v1/ paths and matched by path
// prefix, so the handler must receive request paths unchanged.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/morango/v1/syncsessions/", s.handleSyncSessions)
	mux.HandleFunc("/api/morango/v1/transfersessions/", s.handleTransferSessions)
	mux.HandleFunc("/api/morango/v1/buffers/", s.handleBuffers)
	return mux
}

func (s *Server) handleSyncSessions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientCertificate string `json:"client_certificate"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.Backend.HandleCreateSyncSession(r.Context(), body.ClientCertificate)
	if !writeResult(w, sess, err) {
		return
	}
}

func (s *Server) handleTransferSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "close") {
		id := transferSessionIDFromClosePath(r.URL.Path)
		err := s.Backend.HandleClose(r.Context(), id)
		writeResult(w, struct{}{}, err)
		return
	}

	var ts model.TransferSession
	if !decodeBody(w, r, &ts) {
		return
	}
	out, err := s.Backend.HandleCreateTransferSession(r.Context(), &ts)
	writeResult(w, out, err)
}

func (s *Server) handleBuffers(w http.ResponseWriter, r *http.Request) {
	transferSessionID := r.URL.Query().Get("transfer_session_id")
	if transferSessionID == "" {
		http.Error(w, "transfer_session_id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var chunks []BufferChunk
		if !decodeBody(w, r, &chunks) {
			return
		}
		err := s.Backend.HandlePushBuffer(r.Context(), transferSessionID, chunks)
		writeResult(w, struct{}{}, err)
	case http.MethodGet:
		chunks, err := s.Backend.HandlePullBuffer(r.Context(), transferSessionID)
		writeResult(w, chunks, err)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func transferSessionIDFromClosePath(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/api/morango/v1/transfersessions/"), "/")
	return strings.TrimSuffix(trimmed, "/close")
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "decoding request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, out interface{}, err error) bool {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, syncerr.ErrCapabilityMismatch), errors.Is(err, syncerr.ErrProtocol):
			status = http.StatusBadRequest
		case errors.Is(err, syncerr.ErrNotFound):
			status = http.StatusNotFound
		}
		logger := synclog.WithComponent("transport-server")
		logger.Error().Err(err).Msg("request failed")
		http.Error(w, err.Error(), status)
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	if out == nil {
		return true
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logger := synclog.WithComponent("transport-server")
		logger.Error().Err(err).Msg("encoding response failed")
	}
	return true
}

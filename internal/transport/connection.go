// Package transport carries the sync engine's HTTP+JSON wire surface: the
// client-side SyncConnection and the server mux answering it. Auth
// handshakes and certificate issuance live with the caller, not here.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
)

// SyncConnection is the capability set a session context needs from its
// transport: create/refresh a sync session, push a buffer chunk, and pull
// one back.
type SyncConnection interface {
	ServerInfo() map[string]interface{}
	CreateSyncSession(ctx context.Context, clientCertificate string) (*model.SyncSession, error)
	CreateTransferSession(ctx context.Context, ts *model.TransferSession) (*model.TransferSession, error)
	PushBuffer(ctx context.Context, transferSessionID string, chunk []BufferChunk) error
	PullBuffer(ctx context.Context, transferSessionID string) ([]BufferChunk, error)
	Close(ctx context.Context, transferSessionID string) error
}

// BufferChunk is the wire shape of one buffered record in flight.
type BufferChunk struct {
	ModelUUID                 string      `json:"model_uuid"`
	Serialized                string      `json:"serialized"`
	Deleted                   bool        `json:"deleted"`
	HardDeleted               bool        `json:"hard_deleted"`
	LastSavedInstance         string      `json:"last_saved_instance"`
	LastSavedCounter          uint64      `json:"last_saved_counter"`
	ModelName                 string      `json:"model_name"`
	Profile                   string      `json:"profile"`
	Partition                 string      `json:"partition"`
	SourceID                  string      `json:"source_id"`
	ConflictingSerializedData string      `json:"conflicting_serialized_data"`
	RMCBList                  []RMCBEntry `json:"rmcb_list"`
}

// RMCBEntry is one per-instance counter entry riding along with a buffer
// chunk.
type RMCBEntry struct {
	InstanceID string `json:"instance_id"`
	Counter    uint64 `json:"counter"`
}

// HTTPConnection is the stdlib net/http implementation of SyncConnection.
type HTTPConnection struct {
	BaseURL    string
	HTTPClient *http.Client
	serverInfo map[string]interface{}
}

// NewHTTPConnection constructs a connection against baseURL, using a
// sensible default client timeout if none is supplied.
func NewHTTPConnection(baseURL string, client *http.Client) *HTTPConnection {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPConnection{BaseURL: baseURL, HTTPClient: client}
}

func (c *HTTPConnection) ServerInfo() map[string]interface{} { return c.serverInfo }

func (c *HTTPConnection) CreateSyncSession(ctx context.Context, clientCertificate string) (*model.SyncSession, error) {
	var sess model.SyncSession
	body := map[string]string{"client_certificate": clientCertificate}
	if err := c.postJSON(ctx, "/api/morango/v1/syncsessions/", body, &sess); err != nil {
		return nil, err
	}
	if sess.ServerInfo != nil {
		c.serverInfo = sess.ServerInfo
	}
	return &sess, nil
}

func (c *HTTPConnection) CreateTransferSession(ctx context.Context, ts *model.TransferSession) (*model.TransferSession, error) {
	var out model.TransferSession
	if err := c.postJSON(ctx, "/api/morango/v1/transfersessions/", ts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPConnection) PushBuffer(ctx context.Context, transferSessionID string, chunk []BufferChunk) error {
	path := fmt.Sprintf("/api/morango/v1/buffers/?transfer_session_id=%s", transferSessionID)
	return c.postJSON(ctx, path, chunk, nil)
}

func (c *HTTPConnection) PullBuffer(ctx context.Context, transferSessionID string) ([]BufferChunk, error) {
	path := fmt.Sprintf("/api/morango/v1/buffers/?transfer_session_id=%s", transferSessionID)
	var chunks []BufferChunk
	if err := c.getJSON(ctx, path, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (c *HTTPConnection) Close(ctx context.Context, transferSessionID string) error {
	path := fmt.Sprintf("/api/morango/v1/transfersessions/%s/close/", transferSessionID)
	return c.postJSON(ctx, path, nil, nil)
}

func (c *HTTPConnection) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encoding request body: %v", syncerr.ErrProtocol, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *HTTPConnection) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrTransport, err)
	}
	return c.do(req, out)
}

func (c *HTTPConnection) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", syncerr.ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: server returned %d", syncerr.ErrProtocol, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", syncerr.ErrProtocol, err)
	}
	return nil
}

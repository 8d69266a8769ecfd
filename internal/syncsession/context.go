package syncsession

import (
	"sync"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
)

// Context is the common capability set shared by the local and network
// session context variants: stage accessors, update, and (de)serialize.
// An interface over two concrete values, not a type hierarchy.
type Context interface {
	SyncSession() *model.SyncSession
	TransferSession() *model.TransferSession
	Stage() model.Stage
	StageStatus() model.Status
	Capabilities() map[string]bool
	Filter() model.Filter
	IsPush() bool
	Err() error

	// Update applies the given field changes, enforcing write-once
	// semantics on TransferSession/Filter/IsPush.
	Update(u ContextUpdate) error

	// State returns the plain, encodable snapshot of this context.
	State() ContextState
}

// ContextUpdate carries the subset of fields a caller wants to change.
// Nil/zero fields are left untouched.
type ContextUpdate struct {
	TransferSession *model.TransferSession
	Stage           model.Stage
	StageStatus     model.Status
	Capabilities    []string
	Filter          model.Filter
	IsPush          *bool
	Err             error
}

// ContextState is the plain record a context serializes to. SyncSessionID
// and TransferSessionID are IDs, not embedded objects: on decode, callers
// re-fetch the full rows from storage.
type ContextState struct {
	SyncSessionID     string   `json:"sync_session_id,omitempty"`
	TransferSessionID string   `json:"transfer_session_id,omitempty"`
	Stage             string   `json:"stage,omitempty"`
	StageStatus       string   `json:"stage_status,omitempty"`
	Capabilities      []string `json:"capabilities,omitempty"`
	IsPush            bool     `json:"is_push"`
	IsServer          *bool    `json:"is_server,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// baseContext implements the mutable/write-once bookkeeping shared by both
// concrete context variants.
type baseContext struct {
	mu sync.Mutex

	syncSession        *model.SyncSession
	transferSession    *model.TransferSession
	transferSessionSet bool

	stage       model.Stage
	stageStatus model.Status
	err         error

	capabilities map[string]bool

	filter    model.Filter
	filterSet bool

	isPush    bool
	isPushSet bool
}

func newBaseContext(syncSession *model.SyncSession, transferSession *model.TransferSession, capabilities []string) baseContext {
	b := baseContext{
		syncSession:  syncSession,
		capabilities: intersectCapabilities(capabilities),
	}
	if transferSession != nil {
		b.transferSession = transferSession
		b.transferSessionSet = true
		b.stage = transferSession.TransferStage
		b.stageStatus = transferSession.TransferStageStatus
		b.filter = transferSession.FilterList()
		b.filterSet = true
		b.isPush = transferSession.Push
		b.isPushSet = true
	}
	return b
}

func (b *baseContext) SyncSession() *model.SyncSession { return b.syncSession }

func (b *baseContext) TransferSession() *model.TransferSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferSession
}

func (b *baseContext) Stage() model.Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stage
}

func (b *baseContext) StageStatus() model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stageStatus
}

func (b *baseContext) Capabilities() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.capabilities))
	for k, v := range b.capabilities {
		out[k] = v
	}
	return out
}

// Filter returns the derived filter: the transfer session's own filter when
// one is attached, else whatever was supplied externally.
func (b *baseContext) Filter() model.Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transferSession != nil {
		return b.transferSession.FilterList()
	}
	return b.filter
}

func (b *baseContext) IsPush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isPush
}

func (b *baseContext) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// update applies shared field changes and enforces write-once semantics.
// Returns syncerr.ErrContextUpdate on a conflicting reassignment attempt.
func (b *baseContext) update(u ContextUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.TransferSession != nil {
		if b.transferSessionSet && b.transferSession != nil && b.transferSession.ID != u.TransferSession.ID {
			return syncerr.ErrContextUpdate
		}
		b.transferSession = u.TransferSession
		b.transferSessionSet = true
	}
	if len(u.Filter) > 0 {
		if b.filterSet && !filterEqual(b.filter, u.Filter) {
			return syncerr.ErrContextUpdate
		}
		b.filter = u.Filter
		b.filterSet = true
	}
	if u.IsPush != nil {
		if b.isPushSet && b.isPush != *u.IsPush {
			return syncerr.ErrContextUpdate
		}
		b.isPush = *u.IsPush
		b.isPushSet = true
	}

	if u.Stage != "" {
		b.stage = u.Stage
		if b.transferSession != nil {
			b.transferSession.TransferStage = u.Stage
		}
	}
	if u.StageStatus != "" {
		b.stageStatus = u.StageStatus
		if b.transferSession != nil {
			b.transferSession.TransferStageStatus = u.StageStatus
		}
	}
	if u.Capabilities != nil {
		b.capabilities = intersectCapabilities(u.Capabilities)
	}
	if u.Err != nil {
		b.err = u.Err
	}
	return nil
}

func filterEqual(a, b model.Filter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (b *baseContext) state(extra func(ContextState) ContextState) ContextState {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := ContextState{
		Stage:        string(b.stage),
		StageStatus:  string(b.stageStatus),
		Capabilities: capabilitySlice(b.capabilities),
		IsPush:       b.isPush,
	}
	if b.syncSession != nil {
		s.SyncSessionID = b.syncSession.ID
	}
	if b.transferSession != nil {
		s.TransferSessionID = b.transferSession.ID
	}
	if b.err != nil {
		s.Error = b.err.Error()
	}
	if extra != nil {
		s = extra(s)
	}
	return s
}

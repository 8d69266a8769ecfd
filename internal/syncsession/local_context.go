package syncsession

import "github.com/morango-sync/morango/internal/model"

// LocalSessionContext is the context used for operating on a transfer
// in-process. IsServer is true iff the context was built from an inbound
// request rather than a local client-initiated call.
type LocalSessionContext struct {
	baseContext
	isServer bool
}

// NewLocalSessionContext builds a LocalSessionContext. IsServer is taken
// from the isServer argument alone; requestCapabilities only seeds the
// negotiated capability set.
func NewLocalSessionContext(syncSession *model.SyncSession, transferSession *model.TransferSession, requestCapabilities []string, isServer bool) *LocalSessionContext {
	return &LocalSessionContext{
		baseContext: newBaseContext(syncSession, transferSession, requestCapabilities),
		isServer:    isServer,
	}
}

// IsServer reports whether this context was built for the server side of
// an inbound request.
func (c *LocalSessionContext) IsServer() bool { return c.isServer }

func (c *LocalSessionContext) Update(u ContextUpdate) error { return c.update(u) }

func (c *LocalSessionContext) State() ContextState {
	isServer := c.isServer
	return c.state(func(s ContextState) ContextState {
		s.IsServer = &isServer
		return s
	})
}

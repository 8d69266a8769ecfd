package syncsession

import (
	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/transport"
)

// NetworkSessionContext is the context used for operating on a transfer
// remotely through a network connection. The connection handle cannot
// round-trip through serialization: decoding a network context yields one
// missing its connection, and the caller must re-attach it.
type NetworkSessionContext struct {
	baseContext
	connection transport.SyncConnection
}

// NewNetworkSessionContext builds a NetworkSessionContext whose capability
// set is seeded from the connection's negotiated server info.
func NewNetworkSessionContext(connection transport.SyncConnection, syncSession *model.SyncSession, transferSession *model.TransferSession) *NetworkSessionContext {
	var caps []string
	if info := connection.ServerInfo(); info != nil {
		if raw, ok := info["capabilities"].([]string); ok {
			caps = raw
		} else if raw, ok := info["capabilities"].([]interface{}); ok {
			for _, c := range raw {
				if s, ok := c.(string); ok {
					caps = append(caps, s)
				}
			}
		}
	}
	return &NetworkSessionContext{
		baseContext: newBaseContext(syncSession, transferSession, caps),
		connection:  connection,
	}
}

// Connection returns the live transport handle. Absent after a
// deserialize/re-attach round trip until the caller re-attaches one.
func (c *NetworkSessionContext) Connection() transport.SyncConnection { return c.connection }

// AttachConnection re-attaches a transport handle after deserialization.
func (c *NetworkSessionContext) AttachConnection(conn transport.SyncConnection) {
	c.connection = conn
}

func (c *NetworkSessionContext) Update(u ContextUpdate) error { return c.update(u) }

func (c *NetworkSessionContext) State() ContextState {
	return c.state(nil)
}

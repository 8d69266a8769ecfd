package syncsession

import (
	"fmt"
	"net/http"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/transport"
)

// ProfileController is the thin façade over one syncable profile's
// engine pieces: the persistence layer, the app-layer serializer, and
// network connection construction. It is the entry point application code
// uses.
type ProfileController struct {
	Profile    string
	Store      Store
	Serializer RecordSerializer
}

// NewProfileController builds a ProfileController for profile, which must
// be non-empty.
func NewProfileController(profile string, store Store, serializer RecordSerializer) (*ProfileController, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile needs to be defined")
	}
	if serializer == nil {
		serializer = NoopSerializer{}
	}
	return &ProfileController{Profile: profile, Store: store, Serializer: serializer}, nil
}

// SerializeIntoStore takes data from the app layer and serializes dirty
// models into the store, wrapped in the operation envelope.
func (p *ProfileController) SerializeIntoStore(filter model.Filter) error {
	return OperationEnvelope{
		StartMessage:    "serializing records",
		CompleteMessage: "serialization complete",
	}.Run(func() error {
		return p.Serializer.SerializeIntoStore(filter)
	})
}

// DeserializeFromStore takes data from the store and integrates it into
// the application. It serializes first: any local app-layer edits made
// since the last serialize would otherwise look like phantom conflicts
// against data the store is about to absorb.
func (p *ProfileController) DeserializeFromStore(filter model.Filter, skipErroring bool) error {
	return OperationEnvelope{
		StartMessage:    "deserializing records",
		CompleteMessage: "deserialization complete",
	}.Run(func() error {
		if err := p.Serializer.SerializeIntoStore(filter); err != nil {
			return err
		}
		return p.Serializer.DeserializeFromStore(filter, skipErroring)
	})
}

// CreateNetworkConnection builds the HTTP+JSON SyncConnection against a
// remote peer's base URL.
func (p *ProfileController) CreateNetworkConnection(baseURL string, client *http.Client) transport.SyncConnection {
	return transport.NewHTTPConnection(baseURL, client)
}

// Package model holds the plain data types shared across the sync engine:
// instances, store records, counters, sessions, and the transient buffer.
package model

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewUUIDHex mints the 32-hex-char lowercase id used as the primary key for
// every persisted table.
func NewUUIDHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Instance identifies one process lifetime. A new instance id is minted on
// every cold start; the counter is bumped atomically on every sealed batch
// of local writes.
type Instance struct {
	ID      string
	Counter uint64
}

// StoreRecord is the canonical per-record state for one syncable
// application record.
type StoreRecord struct {
	ID                        string
	Partition                 string
	Profile                   string
	Serialized                string
	LastSavedInstance         string
	LastSavedCounter          uint64
	ConflictingSerializedData string
	Deleted                   bool
	HardDeleted               bool
	DirtyBit                  bool
}

// RecordMaxCounter is the largest counter at which a given instance is known
// to have written a given store record.
type RecordMaxCounter struct {
	StoreRecordID string
	InstanceID    string
	Counter       uint64
}

// DatabaseMaxCounter (FSIC row) records, per instance and partition prefix,
// the largest counter for which every record under that partition written
// by that instance has been absorbed locally.
type DatabaseMaxCounter struct {
	InstanceID      string
	PartitionPrefix string
	Counter         uint64
}

// Filter is an ordered list of partition prefixes; a record matches iff its
// partition has one of these as a prefix.
type Filter []string

// Matches reports whether partition matches any prefix in the filter. An
// empty filter matches everything.
func (f Filter) Matches(partition string) bool {
	if len(f) == 0 {
		return true
	}
	for _, prefix := range f {
		if strings.HasPrefix(partition, prefix) {
			return true
		}
	}
	return false
}

// SyncSession is the authenticated channel between two peers, long-lived
// across many transfers.
type SyncSession struct {
	ID                    string
	Profile               string
	ClientCertificate     string
	ServerCertificate     string
	ClientInstance        string
	ServerInstance        string
	Active                bool
	LastActivityTimestamp time.Time
	ServerInfo            map[string]interface{}
	ClientInfo            map[string]interface{}
	ConnectionKind        string
}

// TransferSession is one directional episode.
type TransferSession struct {
	ID                    string
	SyncSessionID         string
	Push                  bool
	Filter                string
	ClientFSIC            map[string]uint64
	ServerFSIC            map[string]uint64
	RecordsTotal          int
	RecordsTransferred    int
	TransferStage         Stage
	TransferStageStatus   Status
	Active                bool
	LastActivityTimestamp time.Time
}

// FilterList parses the TransferSession's newline-separated filter string
// into a Filter.
func (ts *TransferSession) FilterList() Filter {
	return ParseFilter(ts.Filter)
}

// ParseFilter splits a newline-separated prefix string into a Filter.
func ParseFilter(raw string) Filter {
	if raw == "" {
		return nil
	}
	var out Filter
	for _, line := range strings.Split(raw, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Buffer is a transient, per-transfer-session staging row shape-compatible
// with StoreRecord plus the originating model name.
type Buffer struct {
	TransferSessionID         string
	ModelUUID                 string
	Serialized                string
	Deleted                   bool
	HardDeleted               bool
	LastSavedInstance         string
	LastSavedCounter          uint64
	ModelName                 string
	Profile                   string
	Partition                 string
	SourceID                  string
	ConflictingSerializedData string
}

// RMCBuffer is a transient RecordMaxCounter row scoped to one transfer
// session.
type RMCBuffer struct {
	TransferSessionID string
	ModelUUID         string
	InstanceID        string
	Counter           uint64
}

// Package fsic computes Filtered Set Instance Counters and the diff between
// two peers' FSICs that determines which store records must be queued.
package fsic

import (
	"strings"

	"github.com/morango-sync/morango/internal/model"
)

// FSIC maps instance id to the counter at or below which all of that
// instance's writes under the scoping filter are known to be present.
type FSIC map[string]uint64

// Compute derives an FSIC from the DMC table scoped to a filter: for every
// partition prefix in the filter, every DMC row whose partition prefix is a
// prefix of (or is prefixed by) the filter prefix contributes its counter,
// and when more than one DMC row contributes to the same instance the
// minimum of their counters is kept — this is what makes the FSIC mean
// "all records covered up to this counter", not merely "some are".
func Compute(dmcRows []*model.DatabaseMaxCounter, filter model.Filter) FSIC {
	out := FSIC{}
	for _, row := range dmcRows {
		if !prefixOverlap(row.PartitionPrefix, filter) {
			continue
		}
		if existing, ok := out[row.InstanceID]; !ok || row.Counter < existing {
			out[row.InstanceID] = row.Counter
		}
	}
	return out
}

// prefixOverlap reports whether partitionPrefix is related to any prefix in
// filter by a prefix relationship in either direction. An empty filter
// matches everything (no scoping).
func prefixOverlap(partitionPrefix string, filter model.Filter) bool {
	if len(filter) == 0 {
		return true
	}
	for _, p := range filter {
		if hasPrefixEither(partitionPrefix, p) {
			return true
		}
	}
	return false
}

func hasPrefixEither(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Diff computes, for a sender whose FSIC is sender and a recipient whose
// FSIC is recipient, the per-instance counter floor at or below which the
// recipient already has everything. Only instances present in sender with
// sender[i] > floor[i] are included — those are the instances worth
// querying for newer writes.
func Diff(sender, recipient FSIC) map[string]uint64 {
	floor := map[string]uint64{}
	for instance, senderCounter := range sender {
		recipientCounter := recipient[instance]
		if senderCounter > recipientCounter {
			floor[instance] = recipientCounter
		}
	}
	return floor
}

// RecordQueues reports whether a store record with the given profile,
// partition, and per-instance RMC rows must be queued given the session
// profile, filter, and diff floor: the profile must match, the partition
// must match the filter, and at least one RMC must exceed its instance's
// floor.
func RecordQueues(recordProfile, sessionProfile string, partition string, filter model.Filter, rmcs []*model.RecordMaxCounter, floor map[string]uint64) bool {
	if recordProfile != sessionProfile {
		return false
	}
	if !filter.Matches(partition) {
		return false
	}
	for _, rmc := range rmcs {
		threshold, ok := floor[rmc.InstanceID]
		if !ok {
			continue
		}
		if rmc.Counter > threshold {
			return true
		}
	}
	return false
}

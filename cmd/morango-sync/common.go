package main

import (
	"time"

	"github.com/morango-sync/morango/internal/profile"
	"github.com/morango-sync/morango/internal/storage"
)

const shutdownGrace = 10 * time.Second

// openProfileAndStore loads the profile fixture and opens the local bbolt
// store, the pair nearly every subcommand needs.
func openProfileAndStore(profilePath, dataDir string) (*profile.Profile, *storage.BoltStore, error) {
	prof, err := profile.LoadProfile(profilePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return prof, store, nil
}

package fleet

import (
	"github.com/eshaffer321/fleetclient-go/internal/store/boltstore"
	"github.com/eshaffer321/fleetclient-go/internal/store/filestore"
	"github.com/eshaffer321/fleetclient-go/internal/store/memory"
)

// NewMemoryStore returns a store that lives as long as the process
func NewMemoryStore() Store {
	return memory.New()
}

// NewFileStore returns a store backed by a JSON file written with 0600 permissions
func NewFileStore(path string) Store {
	return filestore.New(path)
}

// BoltStore is a Store backed by a bbolt database
type BoltStore = boltstore.Store

// OpenBoltStore opens (or creates) a bbolt database at path. The caller closes it.
func OpenBoltStore(path string) (*BoltStore, error) {
	return boltstore.Open(path, nil)
}

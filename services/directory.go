package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/parley-net/parley/protocol"
)

// MemoryDirectory implements coordinator.Directory in memory. Identities are
// immutable once registered; re-registration under the same id is rejected.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities map[string]*protocol.Identity
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		identities: make(map[string]*protocol.Identity),
	}
}

// Register adds a new identity to the directory.
func (d *MemoryDirectory) Register(ctx context.Context, ident *protocol.Identity) error {
	if ident.ID == "" {
		return errors.New("identity id cannot be empty")
	}
	if len(ident.PublicKey) == 0 {
		return errors.New("identity public key cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.identities[ident.ID]; exists {
		return errors.New("identity already registered")
	}

	stored := *ident
	if stored.SignatureAlgorithm == "" {
		stored.SignatureAlgorithm = protocol.SignatureAlgorithmEd25519
	}
	d.identities[ident.ID] = &stored
	return nil
}

// Lookup resolves an identity by id.
func (d *MemoryDirectory) Lookup(ctx context.Context, id string) (*protocol.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ident, ok := d.identities[id]
	if !ok {
		return nil, protocol.ErrIdentityNotFound
	}
	copied := *ident
	return &copied, nil
}

// Search returns identities whose id starts with the given prefix, sorted by id.
func (d *MemoryDirectory) Search(ctx context.Context, prefix string) ([]*protocol.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*protocol.Identity
	for id, ident := range d.identities {
		if strings.HasPrefix(id, prefix) {
			copied := *ident
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// Hash returns the deterministic content fingerprint of raw image bytes.
// It is independent of face similarity: only byte-identical re-submissions
// produce the same fingerprint.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Index maps content fingerprints to the event that first produced them.
// It is an in-memory view preloaded from storage at startup; durability of
// new entries comes from the event row written in the same request.
type Index struct {
	mu     sync.RWMutex
	events map[string]uuid.UUID
}

func NewIndex() *Index {
	return &Index{events: make(map[string]uuid.UUID)}
}

// Load replaces the index contents with a snapshot from storage.
func (i *Index) Load(snapshot map[string]uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = make(map[string]uuid.UUID, len(snapshot))
	for fp, id := range snapshot {
		i.events[fp] = id
	}
}

// Lookup returns the event that first saw the fingerprint, if any.
func (i *Index) Lookup(fp string) (uuid.UUID, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.events[fp]
	return id, ok
}

// Record marks the fingerprint as first seen by the given event. The first
// recording wins; later calls for the same fingerprint are ignored.
func (i *Index) Record(fp string, eventID uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.events[fp]; ok {
		return
	}
	i.events[fp] = eventID
}

// Len returns the number of distinct fingerprints seen.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.events)
}

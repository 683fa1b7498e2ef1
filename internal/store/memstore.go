package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/sunet/inmor-go/internal/entity"
)

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemStore is an in-memory Store, used by tests and by cmd/inmor-collection
// in its standalone single-run mode where no Redis is configured.
type MemStore struct {
	mu sync.RWMutex

	live    map[string]entity.CollectionEntry
	staging map[string]entity.CollectionEntry

	liveSubs    map[string][]string
	stagingSubs map[string][]string

	trustMarks    map[string]map[string]TrustMarkRecord // subject -> type -> record
	tmHashes      map[string]bool                       // sha256(token) -> known
	histKeys      map[string][]byte
	subordinates  map[string]string // entity id -> cached subordinate statement token
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		live:        make(map[string]entity.CollectionEntry),
		staging:     make(map[string]entity.CollectionEntry),
		liveSubs:    make(map[string][]string),
		stagingSubs: make(map[string][]string),
		trustMarks:   make(map[string]map[string]TrustMarkRecord),
		tmHashes:     make(map[string]bool),
		histKeys:     make(map[string][]byte),
		subordinates: make(map[string]string),
	}
}

func (m *MemStore) StageEntity(ctx context.Context, authority string, e entity.CollectionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staging[e.EntityID] = e
	if authority != "" {
		subs := m.stagingSubs[authority]
		for _, s := range subs {
			if s == e.EntityID {
				return nil
			}
		}
		m.stagingSubs[authority] = append(subs, e.EntityID)
	}
	return nil
}

func (m *MemStore) Swap(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = m.staging
	m.liveSubs = m.stagingSubs
	m.staging = make(map[string]entity.CollectionEntry)
	m.stagingSubs = make(map[string][]string)
	return nil
}

func (m *MemStore) GetLive(ctx context.Context, entityID string) (entity.CollectionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.live[entityID]
	if !ok {
		return entity.CollectionEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemStore) ListLive(ctx context.Context, want []entity.EntityTypeIdentifier) ([]entity.CollectionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]entity.CollectionEntry, 0, len(ids))
	for _, id := range ids {
		e := m.live[id]
		if entryMatchesTypes(e, want) {
			out = append(out, e)
		}
	}
	return out, nil
}

// entryMatchesTypes applies the classification filter: an empty want list
// passes every entry through; otherwise e passes only if it shares at
// least one entity type with want.
func entryMatchesTypes(e entity.CollectionEntry, want []entity.EntityTypeIdentifier) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, t := range e.EntityTypes {
			if w == t {
				return true
			}
		}
	}
	return false
}

func (m *MemStore) Subordinates(ctx context.Context, authority string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := append([]string(nil), m.liveSubs[authority]...)
	sort.Strings(subs)
	return subs, nil
}

func (m *MemStore) LiveETag(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ordered := make([]entity.CollectionEntry, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, m.live[id])
	}

	raw, err := json.Marshal(ordered)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (m *MemStore) PutTrustMark(ctx context.Context, rec TrustMarkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySubject, ok := m.trustMarks[rec.Subject]
	if !ok {
		bySubject = make(map[string]TrustMarkRecord)
		m.trustMarks[rec.Subject] = bySubject
	}
	bySubject[rec.TrustMark] = rec
	m.tmHashes[tokenHash(rec.Token)] = true
	return nil
}

func (m *MemStore) TrustMarkHashKnown(ctx context.Context, sha256Hex string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tmHashes[sha256Hex], nil
}

func (m *MemStore) TrustMark(ctx context.Context, subject, trustMarkType string) (TrustMarkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySubject, ok := m.trustMarks[subject]
	if !ok {
		return TrustMarkRecord{}, ErrNotFound
	}
	rec, ok := bySubject[trustMarkType]
	if !ok {
		return TrustMarkRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) TrustMarksBySubject(ctx context.Context, subject string) ([]TrustMarkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySubject := m.trustMarks[subject]
	out := make([]TrustMarkRecord, 0, len(bySubject))
	for _, rec := range bySubject {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemStore) TrustMarksByType(ctx context.Context, trustMarkType string) ([]TrustMarkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TrustMarkRecord
	for _, bySubject := range m.trustMarks {
		if rec, ok := bySubject[trustMarkType]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemStore) HistoricalKeys(ctx context.Context) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.histKeys))
	for k, v := range m.histKeys {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) PutHistoricalKey(ctx context.Context, kid string, jwk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histKeys[kid] = jwk
	return nil
}

func (m *MemStore) SubordinateStatement(ctx context.Context, sub string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.subordinates[sub]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (m *MemStore) PutSubordinateStatement(ctx context.Context, sub, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subordinates[sub] = token
	return nil
}

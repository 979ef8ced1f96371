// Package memory is an in-process records.Store. The console uses it for
// the "memory" backend, and tests across the module use it as a fake.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/records"
)

type Store struct {
	mu         sync.RWMutex
	clock      clock.Clock
	identities map[string]records.IdentityRecord
	audit      []records.AuditEntry
}

func New(clk clock.Clock) *Store {
	return &Store{
		clock:      clk,
		identities: make(map[string]records.IdentityRecord),
	}
}

func (s *Store) GetIdentity(_ context.Context, id string) (*records.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) PutIdentity(_ context.Context, rec *records.IdentityRecord) (*records.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if prev, ok := s.identities[rec.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = s.clock.Now().UTC()
	}
	s.identities[rec.ID] = stored
	return &stored, nil
}

func (s *Store) UpdateIdentity(_ context.Context, id string, u records.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[id]
	if !ok {
		return records.ErrNotFound
	}
	u.Apply(&rec)
	s.identities[id] = rec
	return nil
}

func (s *Store) ListIdentities(_ context.Context) ([]records.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]records.IdentityRecord, 0, len(s.identities))
	for _, rec := range s.identities {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FindByEmailHash(_ context.Context, hash string) (*records.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.identities {
		if rec.EmailHash == hash {
			return &rec, nil
		}
	}
	return nil, records.ErrNotFound
}

func (s *Store) AppendAudit(_ context.Context, e *records.AuditEntry) (*records.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *e
	stored.Timestamp = s.clock.Now().UTC()
	stored.ID = records.NewAuditID(stored.Timestamp)
	s.audit = append(s.audit, stored)
	return &stored, nil
}

func (s *Store) ListAudit(_ context.Context, q records.AuditQuery) (records.AuditPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// newest first
	end := len(s.audit)
	if q.Before != "" {
		end = sort.Search(len(s.audit), func(i int) bool { return s.audit[i].ID >= q.Before })
	}

	var page records.AuditPage
	for i := end - 1; i >= 0; i-- {
		if len(page.Entries) == q.Size() {
			page.NextCursor = page.Entries[len(page.Entries)-1].ID
			break
		}
		page.Entries = append(page.Entries, s.audit[i])
	}
	return page, nil
}

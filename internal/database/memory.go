package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"B24Relay/entity"
)

const memoryLogCap = 1000

// MemoryStore keeps everything in process memory. The mutex guards the maps
// only; callers racing on a token refresh may both write, last one wins.
type MemoryStore struct {
	mu       sync.RWMutex
	auths    map[string]entity.PortalAuth
	chats    map[string]entity.ChatMap
	settings *entity.Settings
	logs     []entity.LogEntry
	records  []entity.RelayRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auths: make(map[string]entity.PortalAuth),
		chats: make(map[string]entity.ChatMap),
	}
}

func portalKey(domain string) string {
	return strings.ToLower(domain)
}

func (s *MemoryStore) GetPortalAuth(_ context.Context, domain string) (*entity.PortalAuth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auth, ok := s.auths[portalKey(domain)]
	if !ok {
		return nil, nil
	}
	return &auth, nil
}

func (s *MemoryStore) SavePortalAuth(_ context.Context, auth *entity.PortalAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[portalKey(auth.PortalDomain)] = *auth
	return nil
}

func (s *MemoryStore) DeletePortalAuth(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.auths, portalKey(domain))
	return nil
}

func (s *MemoryStore) SaveChatMap(_ context.Context, m entity.ChatMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[portalKey(m.PortalDomain)+"|"+m.ExternalChatID] = m
	return nil
}

func (s *MemoryStore) GetChatMap(_ context.Context, portal, chatID string) (*entity.ChatMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.chats[portalKey(portal)+"|"+chatID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) GetSettings(_ context.Context) (*entity.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil, nil
	}
	settings := *s.settings
	return &settings, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings entity.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

func (s *MemoryStore) AddLog(_ context.Context, e entity.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	if len(s.logs) > memoryLogCap {
		s.logs = s.logs[len(s.logs)-memoryLogCap:]
	}
	return nil
}

// ListLogs returns matching entries, newest first.
func (s *MemoryStore) ListLogs(_ context.Context, f entity.LogFilter) ([]entity.LogEntry, error) {
	f = f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]entity.LogEntry, 0, f.Limit)
	for i := len(s.logs) - 1; i >= 0 && len(list) < f.Limit; i-- {
		if f.Match(s.logs[i]) {
			list = append(list, s.logs[i])
		}
	}
	return list, nil
}

func (s *MemoryStore) AddRelayRecord(_ context.Context, r entity.RelayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, now time.Time) (*entity.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := startOfDay(now)
	stats := &entity.Stats{}
	for _, r := range s.records {
		stats.Total++
		if !r.CreatedAt.Before(day) {
			stats.Today++
		}
		switch r.Status {
		case entity.RelaySent, entity.RelayPartial:
			stats.Sent++
			if stats.LastSync == nil || r.CreatedAt.After(*stats.LastSync) {
				t := r.CreatedAt
				stats.LastSync = &t
			}
		case entity.RelayFailed:
			stats.Failed++
		case entity.RelaySkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

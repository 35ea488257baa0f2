package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

// MemorySessionStoreImpl keeps sessions in a process-local map. Used in
// tests and single-node development runs.
type MemorySessionStoreImpl struct {
	mu       sync.RWMutex
	sessions map[string]models.UploadSession
}

func NewMemorySessionStoreImpl() *MemorySessionStoreImpl {
	return &MemorySessionStoreImpl{
		sessions: make(map[string]models.UploadSession),
	}
}

func (s *MemorySessionStoreImpl) IsReady(ctx context.Context) error {
	return nil
}

func (s *MemorySessionStoreImpl) Name() string {
	return "SessionStore[memory]"
}

func (s *MemorySessionStoreImpl) Create(ctx context.Context, session models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionId]; exists {
		return apperrors.Internal("session already exists")
	}
	s.sessions[session.SessionId] = cloneSession(session)
	return nil
}

func (s *MemorySessionStoreImpl) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperrors.NoSession(sessionID)
	}
	clone := cloneSession(session)
	return &clone, nil
}

func (s *MemorySessionStoreImpl) Update(ctx context.Context, session models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.SessionId] = cloneSession(session)
	return nil
}

func (s *MemorySessionStoreImpl) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStoreImpl) ListIdle(ctx context.Context, idleBefore time.Time) ([]models.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []models.UploadSession
	for _, session := range s.sessions {
		if session.LastActivityAt.Before(idleBefore) {
			idle = append(idle, cloneSession(session))
		}
	}
	return idle, nil
}

func cloneSession(s models.UploadSession) models.UploadSession {
	clone := s
	clone.Chunks = append([]models.ChunkRecord(nil), s.Chunks...)
	clone.CachedResult = append([]byte(nil), s.CachedResult...)
	return clone
}

// MemoryChunkStoreImpl is an in-process chunk tier for tests.
type MemoryChunkStoreImpl struct {
	mu     sync.RWMutex
	chunks map[string][]byte
}

func NewMemoryChunkStoreImpl() *MemoryChunkStoreImpl {
	return &MemoryChunkStoreImpl{
		chunks: make(map[string][]byte),
	}
}

func (s *MemoryChunkStoreImpl) IsReady(ctx context.Context) error {
	return nil
}

func (s *MemoryChunkStoreImpl) Name() string {
	return "ChunkStore[memory]"
}

func (s *MemoryChunkStoreImpl) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryChunkStoreImpl) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.chunks[key]
	if !ok {
		return nil, ErrChunkNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryChunkStoreImpl) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.chunks {
		if strings.HasPrefix(key, prefix) {
			delete(s.chunks, key)
		}
	}
	return nil
}

// Len reports the number of stored chunks. Test helper.
func (s *MemoryChunkStoreImpl) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

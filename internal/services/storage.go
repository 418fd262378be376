package services

import (
	"context"
	"fmt"
)

// Storage is key/value storage scoped to one browser session
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// SessionRepository persists values for every browser session
type SessionRepository interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
}

// ScopedStorage binds a SessionRepository to a single session
type ScopedStorage struct {
	repo      SessionRepository
	sessionID string
}

// NewScopedStorage creates storage for sessionID
func NewScopedStorage(repo SessionRepository, sessionID string) *ScopedStorage {
	return &ScopedStorage{repo: repo, sessionID: sessionID}
}

// Get implements Storage
func (s *ScopedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := s.repo.Get(ctx, s.sessionID, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, ok, nil
}

// Set implements Storage
func (s *ScopedStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := s.repo.Set(ctx, s.sessionID, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amazona/backend/internal/db"
	"github.com/amazona/backend/internal/model"
)

// MemoryStore mirrors the semantics of db.Postgres for users: unique email,
// exact-match reset token lookup, db.ErrNotFound/db.ErrDuplicate errors.
type MemoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]model.User)}
}

func clone(u model.User) *model.User {
	if u.ResetToken != nil {
		tok := *u.ResetToken
		u.ResetToken = &tok
	}
	return &u
}

func (s *MemoryStore) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, db.ErrDuplicate
		}
	}
	now := time.Now()
	stored := *clone(*user)
	stored.ResetToken = nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.users[stored.ID] = stored
	return clone(stored), nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return clone(u), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *MemoryStore) GetUserByResetToken(_ context.Context, token string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			return clone(u), nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, *clone(u))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return nil, db.ErrNotFound
	}
	for id, u := range s.users {
		if id != user.ID && u.Email == user.Email {
			return nil, db.ErrDuplicate
		}
	}
	if current.PasswordHash != user.PasswordHash {
		current.ResetToken = nil
	}
	current.Name = user.Name
	current.Email = user.Email
	current.PasswordHash = user.PasswordHash
	current.IsAdmin = user.IsAdmin
	current.UpdatedAt = time.Now()
	s.users[user.ID] = current
	return clone(current), nil
}

func (s *MemoryStore) SetResetToken(_ context.Context, id uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.ResetToken = &token
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) ResetPassword(_ context.Context, id uuid.UUID, token, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.ResetToken == nil || *u.ResetToken != token {
		return db.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

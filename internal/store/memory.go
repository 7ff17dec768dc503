package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory.
// Uses sync.RWMutex for thread-safe concurrent access.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[int64]Account
	byUsername  map[string]int64
	rooms       map[int64]Room
	nextAccount int64
	nextRoom    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[int64]Account),
		byUsername: make(map[string]int64),
		rooms:      make(map[int64]Room),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, username, passwordHash string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUsername[username]; exists {
		return Account{}, ErrDuplicate
	}

	m.nextAccount++
	acc := Account{ID: m.nextAccount, Username: username, PasswordHash: passwordHash}
	m.accounts[acc.ID] = acc
	m.byUsername[username] = acc.ID
	return acc, nil
}

func (m *MemoryStore) AccountByUsername(_ context.Context, username string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byUsername[username]
	if !exists {
		return Account{}, ErrNotFound
	}
	return copyAccount(m.accounts[id]), nil
}

func (m *MemoryStore) SetSession(_ context.Context, accountID int64, session *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[accountID]
	if !exists {
		return ErrNotFound
	}
	acc.Session = nil
	if session != nil {
		s := *session
		acc.Session = &s
	}
	m.accounts[accountID] = acc
	return nil
}

func (m *MemoryStore) CreateRoom(_ context.Context, name, description, passwordHash string, creator int64) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRoom++
	room := Room{
		ID:           m.nextRoom,
		Name:         name,
		Description:  description,
		PasswordHash: passwordHash,
		Creator:      creator,
	}
	m.rooms[room.ID] = room
	return room, nil
}

func (m *MemoryStore) Room(_ context.Context, id int64) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, exists := m.rooms[id]
	if !exists {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (m *MemoryStore) Rooms(_ context.Context) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

// copyAccount detaches the session pointer from the stored record.
func copyAccount(acc Account) Account {
	if acc.Session != nil {
		s := *acc.Session
		acc.Session = &s
	}
	return acc
}

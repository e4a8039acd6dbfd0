package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/models"
)

// ErrUserNotFound is returned by MemUsers for an unknown username.
var ErrUserNotFound = fmt.Errorf("user not found")

// MemUsers is a process local UserStore for deployments without PostgreSQL.
// Accounts are lost on restart.
type MemUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*models.User
}

// NewMemUsers returns an empty MemUsers.
func NewMemUsers() *MemUsers {
	return &MemUsers{users: make(map[string]*models.User)}
}

// CreateUser implements UserStore.
func (m *MemUsers) CreateUser(_ context.Context, username, passwordHash string, wallet solana.PublicKey) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, fmt.Errorf("username %q already taken", username)
	}
	m.nextID++
	u := &models.User{
		ID:           m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Wallet:       wallet,
		CreatedAt:    time.Now(),
	}
	m.users[username] = u
	return u, nil
}

// GetUserByUsername implements UserStore.
func (m *MemUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	ErrNotFound   = errors.New("user not found")
)

type Repository interface {
	Create(ctx context.Context, email, name, passwordHash string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	ByID(ctx context.Context, id string) (User, error)
}

// InMemoryRepo backs handler tests; the server runs on SQLiteRepo.
type InMemoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]User
	byID    map[string]User
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byEmail: make(map[string]User),
		byID:    make(map[string]User),
	}
}

func (r *InMemoryRepo) Create(ctx context.Context, email, name, passwordHash string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return User{}, ErrEmailTaken
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.byEmail[u.Email] = u
	r.byID[u.ID] = u
	return u, nil
}

func (r *InMemoryRepo) ByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *InMemoryRepo) ByID(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

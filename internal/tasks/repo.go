package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskshare/taskshare-api/internal/users"
)

var (
	ErrTitleRequired = errors.New("title required")

	// ErrNotFound deliberately conflates "no such task" with "task exists
	// but the caller has no rights to it" so responses never leak which
	// task ids exist.
	ErrNotFound = errors.New("task not found or unauthorized")

	ErrUserNotFound  = errors.New("share target not found")
	ErrAlreadyShared = errors.New("task already shared with this user")
	ErrSelfShare     = errors.New("cannot share a task with its owner")
)

// Repository is the access-control layer over the task store. Every method
// takes the caller's user id explicitly; there is no ambient identity.
//
// Authorization is two-tier: the visibility predicate (owner or shared)
// gates reads, updates, and completion toggles, while delete and share are
// owner-only. Collaborators can see and edit a task but cannot destroy it
// or change who else sees it.
type Repository interface {
	Create(ctx context.Context, ownerID, title, description string) (Task, error)
	ListVisible(ctx context.Context, callerID string) ([]Task, error)
	ListOwned(ctx context.Context, callerID string) ([]Task, error)
	ListSharedWith(ctx context.Context, callerID string) ([]Task, error)
	Update(ctx context.Context, callerID, taskID, title, description string) (Task, error)
	ToggleCompletion(ctx context.Context, callerID, taskID string) (Task, error)
	Delete(ctx context.Context, callerID, taskID string) error
	Share(ctx context.Context, callerID, taskID, targetEmail string) (Task, error)
}

type memTask struct {
	task   Task
	shared map[string]struct{}
	seq    int64
}

// InMemoryRepo backs handler tests; the server runs on SQLiteRepo.
type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	store map[string]*memTask
	users users.Repository
}

func NewInMemoryRepo(userRepo users.Repository) *InMemoryRepo {
	return &InMemoryRepo{
		store: make(map[string]*memTask),
		users: userRepo,
	}
}

func (r *InMemoryRepo) Create(ctx context.Context, ownerID, title, description string) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, ErrTitleRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Completed:   false,
		UserID:      ownerID,
		CreatedAt:   time.Now().UTC(),
	}
	r.store[t.ID] = &memTask{task: t, shared: make(map[string]struct{}), seq: r.seq}
	return r.hydrate(ctx, r.store[t.ID]), nil
}

func (r *InMemoryRepo) ListVisible(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, func(m *memTask) bool {
		_, shared := m.shared[callerID]
		return m.task.UserID == callerID || shared
	})
}

func (r *InMemoryRepo) ListOwned(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, func(m *memTask) bool {
		return m.task.UserID == callerID
	})
}

func (r *InMemoryRepo) ListSharedWith(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, func(m *memTask) bool {
		_, shared := m.shared[callerID]
		return shared
	})
}

func (r *InMemoryRepo) Update(ctx context.Context, callerID, taskID, title, description string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.store[taskID]
	if !ok || !visibleTo(m, callerID) {
		return Task{}, ErrNotFound
	}
	m.task.Title = title
	m.task.Description = description
	return r.hydrate(ctx, m), nil
}

func (r *InMemoryRepo) ToggleCompletion(ctx context.Context, callerID, taskID string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.store[taskID]
	if !ok || !visibleTo(m, callerID) {
		return Task{}, ErrNotFound
	}
	m.task.Completed = !m.task.Completed
	return r.hydrate(ctx, m), nil
}

func (r *InMemoryRepo) Delete(ctx context.Context, callerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.store[taskID]
	if !ok || m.task.UserID != callerID {
		return ErrNotFound
	}
	delete(r.store, taskID)
	return nil
}

func (r *InMemoryRepo) Share(ctx context.Context, callerID, taskID, targetEmail string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.store[taskID]
	if !ok || m.task.UserID != callerID {
		return Task{}, ErrNotFound
	}
	target, err := r.users.ByEmail(ctx, targetEmail)
	if err != nil {
		if err == users.ErrNotFound {
			return Task{}, ErrUserNotFound
		}
		return Task{}, err
	}
	if target.ID == m.task.UserID {
		return Task{}, ErrSelfShare
	}
	if _, dup := m.shared[target.ID]; dup {
		return Task{}, ErrAlreadyShared
	}
	m.shared[target.ID] = struct{}{}
	return r.hydrate(ctx, m), nil
}

func visibleTo(m *memTask, callerID string) bool {
	if m.task.UserID == callerID {
		return true
	}
	_, shared := m.shared[callerID]
	return shared
}

func (r *InMemoryRepo) list(ctx context.Context, keep func(*memTask) bool) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*memTask, 0, len(r.store))
	for _, m := range r.store {
		if keep(m) {
			matched = append(matched, m)
		}
	}
	// Creation order, held stable across calls.
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]Task, 0, len(matched))
	for _, m := range matched {
		out = append(out, r.hydrate(ctx, m))
	}
	return out, nil
}

// hydrate fills the owner and shared-set user summaries. Callers hold r.mu.
func (r *InMemoryRepo) hydrate(ctx context.Context, m *memTask) Task {
	t := m.task
	if owner, err := r.users.ByID(ctx, t.UserID); err == nil {
		ref := UserRef{ID: owner.ID, Name: owner.Name, Email: owner.Email}
		t.Owner = &ref
	}
	t.SharedWith = make([]UserRef, 0, len(m.shared))
	for id := range m.shared {
		if u, err := r.users.ByID(ctx, id); err == nil {
			t.SharedWith = append(t.SharedWith, UserRef{ID: u.ID, Name: u.Name, Email: u.Email})
		}
	}
	sort.Slice(t.SharedWith, func(i, j int) bool { return t.SharedWith[i].Email < t.SharedWith[j].Email })
	return t
}

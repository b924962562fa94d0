package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/assignhub/apiserver/internal/storage"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/assignhub/apiserver/types"
	"github.com/google/uuid"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]types.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]types.User)}
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) ListAdmins(context.Context) ([]types.AdminSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admins := make([]types.AdminSummary, 0)
	for _, user := range m.users {
		if user.Role == "admin" {
			admins = append(admins, types.AdminSummary{ID: user.ID, Username: user.Username})
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Username < admins[j].Username })
	return admins, nil
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

type memoryAssignments struct {
	mu          sync.Mutex
	assignments map[string]types.Assignment
	createErr   error
}

func newMemoryAssignments() *memoryAssignments {
	return &memoryAssignments{assignments: make(map[string]types.Assignment)}
}

func (m *memoryAssignments) Get(_ context.Context, id string) (types.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return types.Assignment{}, store.ErrNotFound
	}
	return assignment, nil
}

func (m *memoryAssignments) ListByAdmin(_ context.Context, adminID string) ([]types.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Assignment, 0)
	for _, assignment := range m.assignments {
		if assignment.AdminID == adminID {
			out = append(out, assignment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryAssignments) Create(_ context.Context, assignment types.Assignment) (types.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return types.Assignment{}, m.createErr
	}
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = assignment.CreatedAt
	m.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (m *memoryAssignments) UpdateStatus(_ context.Context, id, adminID string, status types.AssignmentStatus) (types.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok || assignment.AdminID != adminID {
		return types.Assignment{}, store.ErrNotFound
	}
	assignment.Status = status
	assignment.UpdatedAt = time.Now()
	m.assignments[id] = assignment
	return assignment, nil
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type publishedEvent struct {
	channel string
	event   types.AssignmentEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, channel string, value any, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	event, ok := value.(types.AssignmentEvent)
	if !ok {
		return "", errors.New("unexpected event type")
	}
	p.events = append(p.events, publishedEvent{channel: channel, event: event})
	return "m", nil
}

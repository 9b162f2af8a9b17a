package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
)

// --- Mocks ---

type mockDirectory struct {
	mu        sync.Mutex
	users     map[string]domain.UserAccount
	lookupErr error
	createErr error
	deleteErr error
	lookups   int
	creates   int
	deleted   []string
	nextUID   int
}

func newMockDirectory(emails ...string) *mockDirectory {
	d := &mockDirectory{users: make(map[string]domain.UserAccount)}
	for _, e := range emails {
		d.nextUID++
		d.users[e] = domain.UserAccount{UID: fmt.Sprintf("uid-%d", d.nextUID), Email: e}
	}
	return d
}

func (m *mockDirectory) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if u, ok := m.users[email]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *mockDirectory) CreateUser(_ context.Context, user domain.NewUser) (*domain.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.users[user.Email]; ok {
		return nil, &domain.ErrDirectory{Kind: domain.DirectoryEmailExists, Op: "create", Code: "EMAIL_EXISTS"}
	}
	m.nextUID++
	u := domain.UserAccount{UID: fmt.Sprintf("uid-%d", m.nextUID), Email: user.Email, DisplayName: user.DisplayName}
	m.users[user.Email] = u
	return &u, nil
}

func (m *mockDirectory) DeleteUser(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, uid)
	for email, u := range m.users {
		if u.UID == uid {
			delete(m.users, email)
			return nil
		}
	}
	return &domain.ErrDirectory{Kind: domain.DirectoryUserNotFound, Op: "delete", Code: "USER_NOT_FOUND"}
}

func (m *mockDirectory) calls() (lookups, creates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups, m.creates
}

type mockStore struct {
	mu        sync.Mutex
	profiles  map[string]domain.UserProfileRecord
	documents map[domain.DocumentQuery]string
	setErr    error
	getErr    error
	queryErr  error
	queries   int
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles:  make(map[string]domain.UserProfileRecord),
		documents: make(map[domain.DocumentQuery]string),
	}
}

func (m *mockStore) SetUserProfile(_ context.Context, uid string, p domain.UserProfileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.profiles[uid] = p
	return nil
}

func (m *mockStore) GetUserProfile(_ context.Context, uid string) (*domain.UserProfileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockStore) HasActiveDocument(_ context.Context, q domain.DocumentQuery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return false, m.queryErr
	}
	status, ok := m.documents[q]
	return ok && (status == domain.DocumentStatusTrial || status == domain.DocumentStatusActive), nil
}

func (m *mockStore) profile(uid string) (domain.UserProfileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	return p, ok
}

type mockTokens struct {
	err error
}

func (m *mockTokens) CreateCustomToken(_ context.Context, uid string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "token-" + uid, nil
}

type mockJournal struct {
	mu        sync.Mutex
	entries   map[string]domain.OrphanedSignup
	recordErr error
}

func newMockJournal() *mockJournal {
	return &mockJournal{entries: make(map[string]domain.OrphanedSignup)}
}

func (m *mockJournal) Record(_ context.Context, e domain.OrphanedSignup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries[e.UID] = e
	return nil
}

func (m *mockJournal) List(_ context.Context) ([]domain.OrphanedSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrphanedSignup, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockJournal) Remove(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, uid)
	return nil
}

func (m *mockJournal) get(uid string) (domain.OrphanedSignup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[uid]
	return e, ok
}

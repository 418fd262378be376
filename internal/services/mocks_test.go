package services

import (
	"context"
	"sync"
	"time"

	"github.com/topup/upsell/internal/timer"
)

// MockCheckoutClient is a mock implementation of CheckoutClient for testing
type MockCheckoutClient struct {
	CreateChargeFunc func(context.Context, *ChargeRequest, string) (*ChargeResponse, error)

	mu       sync.Mutex
	Requests []*ChargeRequest
	Keys     []string
}

func (m *MockCheckoutClient) CreateCharge(ctx context.Context, req *ChargeRequest, idempotencyKey string) (*ChargeResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Keys = append(m.Keys, idempotencyKey)
	m.mu.Unlock()

	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, req, idempotencyKey)
	}
	return &ChargeResponse{
		ID:       "tx-123",
		Brcode:   "00020126580014br.gov.bcb.pix",
		QRBase64: "iVBORw0KGgo=",
	}, nil
}

func (m *MockCheckoutClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockStorage is an in-memory Storage with overridable failures
type MockStorage struct {
	GetFunc func(context.Context, string) ([]byte, bool, error)
	SetFunc func(context.Context, string, []byte) error

	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func NewMockStorage(initial map[string]string) *MockStorage {
	m := &MockStorage{values: map[string][]byte{}}
	for k, v := range initial {
		m.values[k] = []byte(v)
	}
	return m
}

func (m *MockStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MockStorage) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes++
	return nil
}

func (m *MockStorage) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return string(v), ok
}

func (m *MockStorage) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// MockSessionRepository records the session id it was called with
type MockSessionRepository struct {
	GetFunc func(context.Context, string, string) ([]byte, bool, error)
	SetFunc func(context.Context, string, string, []byte) error
}

func (m *MockSessionRepository) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	return m.GetFunc(ctx, sessionID, key)
}

func (m *MockSessionRepository) Set(ctx context.Context, sessionID, key string, value []byte) error {
	return m.SetFunc(ctx, sessionID, key, value)
}

// fakeScheduler holds tasks until the test runs them
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	ran       bool
}

func (t *fakeTask) Cancel() bool {
	if t.cancelled || t.ran {
		return false
	}
	t.cancelled = true
	return true
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) timer.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

// RunAll fires every task that was not cancelled
func (s *fakeScheduler) RunAll() {
	s.mu.Lock()
	tasks := append([]*fakeTask(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if !t.cancelled && !t.ran {
			t.ran = true
			t.fn()
		}
	}
}

func (s *fakeScheduler) Tasks() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTask(nil), s.tasks...)
}

// recordingNavigator captures navigation targets
type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Navigate(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

func (n *recordingNavigator) Targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

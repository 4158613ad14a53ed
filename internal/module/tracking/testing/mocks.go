// Package testing はtrackingモジュールのテスト用モック・フィクスチャを提供します
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// MockJobClient はテスト用のモックJobClientです
type MockJobClient struct {
	ClassValue      domain.JobClass
	StartFunc       func(ctx context.Context, resourceID string, params domain.StartParams) (*domain.RawSnapshot, error)
	FetchStatusFunc func(ctx context.Context, jobID string) (*domain.RawSnapshot, error)
	ListFunc        func(ctx context.Context, resourceID string) ([]*domain.RawSnapshot, error)
}

func (m *MockJobClient) Class() domain.JobClass {
	return m.ClassValue
}

func (m *MockJobClient) Start(ctx context.Context, resourceID string, params domain.StartParams) (*domain.RawSnapshot, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, resourceID, params)
	}
	return nil, nil
}

func (m *MockJobClient) FetchStatus(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
	if m.FetchStatusFunc != nil {
		return m.FetchStatusFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *MockJobClient) List(ctx context.Context, resourceID string) ([]*domain.RawSnapshot, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, resourceID)
	}
	return nil, nil
}

// MemoryIntentStore はテスト用のインメモリIntentStoreです
type MemoryIntentStore struct {
	mu      sync.Mutex
	intents map[string]domain.IntentRecord
}

// NewMemoryIntentStore は空のMemoryIntentStoreを作成します
func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{
		intents: make(map[string]domain.IntentRecord),
	}
}

func (s *MemoryIntentStore) Record(_ context.Context, intent domain.IntentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.JobID] = intent
	return nil
}

func (s *MemoryIntentStore) Forget(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, jobID)
	return nil
}

func (s *MemoryIntentStore) ListActive(_ context.Context) ([]domain.IntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IntentRecord, 0, len(s.intents))
	for _, intent := range s.intents {
		out = append(out, intent)
	}
	return out, nil
}

func (s *MemoryIntentStore) FindActive(_ context.Context, class domain.JobClass, resourceID string) (*domain.IntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, intent := range s.intents {
		if intent.JobClass == class && intent.ResourceID == resourceID {
			found := intent
			return &found, nil
		}
	}
	return nil, nil
}

// Has はジョブIDのintentが存在するかを返します
func (s *MemoryIntentStore) Has(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.intents[jobID]
	return ok
}

// TestSession はテスト用のJobSessionを作成します
func TestSession(jobID string, class domain.JobClass, status domain.Status) *domain.JobSession {
	return &domain.JobSession{
		JobID:      jobID,
		ResourceID: "project-1",
		JobClass:   class,
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// ProcessingSnapshot は処理中ステータスの生スナップショットを作成します
func ProcessingSnapshot(jobID string, progress int) *domain.RawSnapshot {
	return &domain.RawSnapshot{
		JobID:    jobID,
		Status:   "processing",
		Progress: &progress,
	}
}

// ReadySnapshot は完了ステータスの生スナップショットを作成します
func ReadySnapshot(jobID string) *domain.RawSnapshot {
	progress := 100
	return &domain.RawSnapshot{
		JobID:    jobID,
		Status:   "ready",
		Progress: &progress,
	}
}

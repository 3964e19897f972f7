package patient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type mockRepository struct {
	upsertFn     func(ctx context.Context, p UpsertParams) (*Patient, bool, error)
	getByIDFn    func(ctx context.Context, id uuid.UUID) (*Patient, error)
	getBySessFn  func(ctx context.Context, sessionID string) (*Patient, error)
	listFn       func(ctx context.Context) ([]Patient, error)
	deleteFn     func(ctx context.Context, id uuid.UUID) (*Patient, error)
	upsertCalled int
}

func (m *mockRepository) UpsertBySession(ctx context.Context, p UpsertParams) (*Patient, bool, error) {
	m.upsertCalled++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, p)
	}
	return &Patient{ID: uuid.New(), SessionID: p.SessionID, Status: p.Status}, true, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, ErrPatientNotFound
}

func (m *mockRepository) GetBySessionID(ctx context.Context, sessionID string) (*Patient, error) {
	if m.getBySessFn != nil {
		return m.getBySessFn(ctx, sessionID)
	}
	return nil, ErrPatientNotFound
}

func (m *mockRepository) List(ctx context.Context) ([]Patient, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []Patient{}, nil
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil, ErrPatientNotFound
}

// passLocker runs fn directly unless err is set.
type passLocker struct {
	err      error
	sessions []string
}

func (l *passLocker) WithSessionLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	l.sessions = append(l.sessions, sessionID)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type publishedEvent struct {
	routingKey string
	event      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey: routingKey, event: event})
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

package dashboard

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/realtime"
)

type fakeSub struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	patients []patient.Patient
	listErr  error
	listFn   func(ctx context.Context) ([]patient.Patient, error)
	lists    int
	deleted  []uuid.UUID
	delErr   error
	subErr   error
	sub      *fakeSub
	onChange func(realtime.ChangeEvent)
	topic    string
}

func (s *fakeSource) ListPatients(ctx context.Context) ([]patient.Patient, error) {
	s.mu.Lock()
	s.lists++
	fn := s.listFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]patient.Patient(nil), s.patients...), nil
}

func (s *fakeSource) DeletePatient(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	s.deleted = append(s.deleted, id)
	kept := s.patients[:0]
	for _, p := range s.patients {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.patients = kept
	return nil
}

func (s *fakeSource) Subscribe(_ context.Context, table string, fn func(realtime.ChangeEvent)) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	s.topic = table
	s.onChange = fn
	s.sub = &fakeSub{}
	return s.sub, nil
}

func (s *fakeSource) push(ev realtime.ChangeEvent) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	fn(ev)
}

func (s *fakeSource) set(patients ...patient.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = patients
}

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

func row(status patient.Status) patient.Patient {
	return patient.Patient{
		ID:        uuid.New(),
		SessionID: patient.NewSessionID("USER", time.Now()),
		Status:    status,
	}
}

func TestActivate_LoadsThenSubscribes(t *testing.T) {
	src := &fakeSource{}
	src.set(row(patient.StatusFilling), row(patient.StatusSubmitted), row(patient.StatusInactive))
	c := New(src, WithAfterFunc((&fakeClock{}).AfterFunc))

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer c.Deactivate()

	if src.topic != realtime.TopicPatients {
		t.Errorf("topic = %q", src.topic)
	}
	s := c.Snapshot()
	if len(s.Filling) != 1 || len(s.Submitted) != 1 || len(s.Inactive) != 1 {
		t.Errorf("partition = %d/%d/%d", len(s.Filling), len(s.Submitted), len(s.Inactive))
	}
	if s.Total != 3 {
		t.Errorf("total = %d, want every row", s.Total)
	}
	if s.Live {
		t.Error("live before any change")
	}

	if err := c.Activate(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Activate err = %v", err)
	}
}

func TestActivate_FailedInitialLoadStillSubscribes(t *testing.T) {
	src := &fakeSource{listErr: errors.New("down")}
	c := New(src, WithAfterFunc((&fakeClock{}).AfterFunc))
	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer c.Deactivate()

	if src.onChange == nil {
		t.Fatal("not subscribed after a failed initial load")
	}
	if s := c.Snapshot(); s.Total != 0 {
		t.Errorf("total = %d, want empty board", s.Total)
	}

	// the next change brings the board back
	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()
	src.set(row(patient.StatusFilling), row(patient.StatusSubmitted))
	src.push(realtime.ChangeEvent{Type: realtime.ChangeInsert, Table: "patients"})

	if s := c.Snapshot(); s.Total != 2 {
		t.Errorf("total after change = %d, want 2", s.Total)
	}
}

func TestActivate_SubscribeFailure(t *testing.T) {
	src := &fakeSource{subErr: errors.New("ws refused")}
	c := New(src)
	if err := c.Activate(context.Background()); err == nil {
		t.Fatal("expected error when subscribing fails")
	}
	// a failed activation can be retried
	src.subErr = nil
	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	c.Deactivate()
}

func TestChange_RefetchesAndGoesLive(t *testing.T) {
	src := &fakeSource{}
	clock := &fakeClock{}
	changes := 0
	c := New(src, WithAfterFunc(clock.AfterFunc), WithOnChange(func() { changes++ }))

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer c.Deactivate()

	src.set(row(patient.StatusFilling))
	src.push(realtime.ChangeEvent{Type: realtime.ChangeInsert})

	s := c.Snapshot()
	if len(s.Filling) != 1 {
		t.Fatalf("filling = %d after insert", len(s.Filling))
	}
	if !s.Live {
		t.Fatal("not live after a change")
	}
	if clock.delays[0] != DefaultLiveWindow {
		t.Errorf("live window = %s", clock.delays[0])
	}
	if changes == 0 {
		t.Error("onChange not called")
	}

	// a second change re-arms the window; the first timer no longer matters
	first := clock.last()
	src.push(realtime.ChangeEvent{Type: realtime.ChangeUpdate})
	first.f()
	if !c.Snapshot().Live {
		t.Error("stale timer switched live off")
	}

	clock.last().f()
	if c.Snapshot().Live {
		t.Error("still live after the window")
	}
}

func TestChange_EveryEventTypeRefetches(t *testing.T) {
	src := &fakeSource{}
	c := New(src, WithAfterFunc((&fakeClock{}).AfterFunc))
	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer c.Deactivate()

	for _, typ := range []string{realtime.ChangeInsert, realtime.ChangeUpdate, realtime.ChangeDelete} {
		src.push(realtime.ChangeEvent{Type: typ})
	}
	if src.lists != 4 {
		t.Errorf("lists = %d, want 1 initial + 3", src.lists)
	}
}

func TestDeactivate_ClosesOnce(t *testing.T) {
	src := &fakeSource{}
	clock := &fakeClock{}
	c := New(src, WithAfterFunc(clock.AfterFunc))
	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	src.push(realtime.ChangeEvent{Type: realtime.ChangeInsert})

	c.Deactivate()
	c.Deactivate()

	if src.sub.closes != 1 {
		t.Errorf("closes = %d, want 1", src.sub.closes)
	}
	if !clock.last().stopped {
		t.Error("live timer not cancelled")
	}

	lists := src.lists
	src.push(realtime.ChangeEvent{Type: realtime.ChangeUpdate})
	if src.lists != lists {
		t.Error("change handled after Deactivate")
	}
}

func TestRefresh_DropsOutOfOrderResponse(t *testing.T) {
	older := []patient.Patient{row(patient.StatusFilling)}
	newer := []patient.Patient{row(patient.StatusSubmitted), row(patient.StatusSubmitted)}

	releaseOld := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	src := &fakeSource{
		listFn: func(context.Context) ([]patient.Patient, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				<-releaseOld
				return older, nil
			}
			return newer, nil
		},
	}
	c := New(src)

	done := make(chan error)
	go func() { done <- c.Refresh(context.Background()) }()

	// wait until the first refresh has been issued before starting the second
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	close(releaseOld)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	if got := c.Snapshot().Total; got != len(newer) {
		t.Errorf("total = %d, the older response overwrote the newer one", got)
	}
}

func TestDeleteRecord(t *testing.T) {
	keep, drop := row(patient.StatusSubmitted), row(patient.StatusFilling)
	src := &fakeSource{}
	src.set(keep, drop)
	c := New(src)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var asked patient.Patient
	deleted, err := c.DeleteRecord(context.Background(), drop.ID, func(p patient.Patient) bool {
		asked = p
		return true
	})
	if err != nil || !deleted {
		t.Fatalf("DeleteRecord = %v, %v", deleted, err)
	}
	if asked.ID != drop.ID {
		t.Error("confirm got the wrong patient")
	}
	if len(src.deleted) != 1 || src.deleted[0] != drop.ID {
		t.Errorf("deleted = %v", src.deleted)
	}
	if c.Snapshot().Total != 1 {
		t.Error("list not refreshed after delete")
	}
}

func TestDeleteRecord_DeclinedAndFailed(t *testing.T) {
	p := row(patient.StatusFilling)
	src := &fakeSource{}
	src.set(p)
	c := New(src)
	_ = c.Refresh(context.Background())

	deleted, err := c.DeleteRecord(context.Background(), p.ID, func(patient.Patient) bool { return false })
	if err != nil || deleted {
		t.Fatalf("declined: %v, %v", deleted, err)
	}
	if len(src.deleted) != 0 {
		t.Fatal("deleted without confirmation")
	}

	src.delErr = errors.New("403")
	deleted, err = c.DeleteRecord(context.Background(), p.ID, func(patient.Patient) bool { return true })
	if err == nil || deleted {
		t.Fatalf("failed delete: %v, %v", deleted, err)
	}
	if c.Snapshot().Total != 1 {
		t.Error("row vanished after failed delete")
	}

	if _, err := c.DeleteRecord(context.Background(), uuid.New(), func(patient.Patient) bool { return true }); !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("unknown id err = %v", err)
	}
}

func TestFindBySession(t *testing.T) {
	p := row(patient.StatusFilling)
	src := &fakeSource{}
	src.set(p)
	c := New(src)
	_ = c.Refresh(context.Background())

	if got, ok := c.FindBySession(p.SessionID); !ok || got.ID != p.ID {
		t.Errorf("FindBySession = %v, %v", got, ok)
	}
	if _, ok := c.FindBySession("nope"); ok {
		t.Error("found a missing session")
	}
}

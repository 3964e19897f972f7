// Package dashboard keeps the staff view of every intake form current.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/realtime"
)

const (
	DefaultLiveWindow = 2 * time.Second
	refreshTimeout    = 10 * time.Second
)

var (
	ErrNotActive      = errors.New("dashboard is not active")
	ErrUnknownPatient = errors.New("patient is not on the dashboard")
	ErrAlreadyActive  = errors.New("dashboard is already active")
)

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

// Snapshot is one consistent view of the dashboard.
type Snapshot struct {
	Filling   []patient.Patient
	Submitted []patient.Patient
	Inactive  []patient.Patient
	// Total counts every row, whatever its status.
	Total int
	Live  bool
}

type Controller struct {
	src        Source
	liveWindow time.Duration
	afterFunc  AfterFunc
	log        zerolog.Logger
	onChange   func()

	mu        sync.Mutex
	patients  []patient.Patient
	live      bool
	liveTimer Timer
	liveGen   uint64
	issued    uint64
	applied   uint64
	active    bool
	ctx       context.Context
	cancel    context.CancelFunc
	sub       io.Closer
	closeOnce *sync.Once
}

type Option func(*Controller)

func WithLiveWindow(d time.Duration) Option {
	return func(c *Controller) { c.liveWindow = d }
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = fn }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithOnChange registers fn to run after the patient set or the live flag
// changes. It is called without the controller lock held.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

func New(src Source, opts ...Option) *Controller {
	c := &Controller{
		src:        src,
		liveWindow: DefaultLiveWindow,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		log:      zerolog.Nop(),
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate loads the current rows and then subscribes to every change of the
// patients table. Only a failed subscription fails activation.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.active = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.closeOnce = &sync.Once{}
	c.mu.Unlock()

	// a failed first load leaves the board empty; the next change refetches
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("initial load failed")
	}

	sub, err := c.src.Subscribe(ctx, realtime.TopicPatients, c.handleChange)
	if err != nil {
		c.Deactivate()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	if !c.active {
		// deactivated while subscribing
		c.mu.Unlock()
		_ = sub.Close()
		return ErrNotActive
	}
	c.sub = sub
	c.mu.Unlock()

	c.log.Info().Msg("dashboard active")
	return nil
}

// Deactivate tears the subscription down exactly once and stops the live
// indicator. Safe to call repeatedly.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.cancel()
	if c.liveTimer != nil {
		c.liveTimer.Stop()
		c.liveTimer = nil
	}
	c.liveGen++
	c.live = false
	sub, once := c.sub, c.closeOnce
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				c.log.Warn().Err(err).Msg("close subscription")
			}
		})
	}
}

// handleChange runs on the subscription's reader goroutine, so refetches
// triggered by notifications never overlap each other.
func (c *Controller) handleChange(ev realtime.ChangeEvent) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.markLiveLocked()
	c.mu.Unlock()
	c.onChange()

	c.log.Debug().Str("type", ev.Type).Msg("change received")

	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	if err := c.Refresh(refreshCtx); err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("refresh after change failed")
	}
}

func (c *Controller) markLiveLocked() {
	if c.liveTimer != nil {
		c.liveTimer.Stop()
	}
	c.liveGen++
	gen := c.liveGen
	c.live = true
	c.liveTimer = c.afterFunc(c.liveWindow, func() {
		c.mu.Lock()
		if gen != c.liveGen {
			c.mu.Unlock()
			return
		}
		c.live = false
		c.liveTimer = nil
		c.mu.Unlock()
		c.onChange()
	})
}

// Refresh replaces the patient set with a fresh list. When refreshes overlap,
// a response is only applied if no later-issued one has been applied already.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	patients, err := c.src.ListPatients(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if seq < c.applied {
		c.mu.Unlock()
		c.log.Debug().Uint64("seq", seq).Uint64("applied", c.applied).Msg("dropping stale refresh")
		return nil
	}
	c.applied = seq
	c.patients = patients
	c.mu.Unlock()

	c.onChange()
	return nil
}

// DeleteRecord asks confirm and, on yes, deletes the row and reloads the list.
// It reports whether the row was deleted. Failures are returned, not retried.
func (c *Controller) DeleteRecord(ctx context.Context, id uuid.UUID, confirm func(patient.Patient) bool) (bool, error) {
	p, ok := c.find(func(p patient.Patient) bool { return p.ID == id })
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPatient, id)
	}

	if !confirm(p) {
		return false, nil
	}

	if err := c.src.DeletePatient(ctx, id); err != nil {
		return false, fmt.Errorf("delete %s: %w", p.SessionID, err)
	}

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("refresh after delete failed")
	}
	return true, nil
}

// FindBySession looks a row up by its form session token.
func (c *Controller) FindBySession(sessionID string) (patient.Patient, bool) {
	return c.find(func(p patient.Patient) bool { return p.SessionID == sessionID })
}

func (c *Controller) find(match func(patient.Patient) bool) (patient.Patient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.patients {
		if match(p) {
			return p, true
		}
	}
	return patient.Patient{}, false
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Total: len(c.patients), Live: c.live}
	for _, p := range c.patients {
		switch p.Status {
		case patient.StatusFilling:
			s.Filling = append(s.Filling, p)
		case patient.StatusSubmitted:
			s.Submitted = append(s.Submitted, p)
		case patient.StatusInactive:
			s.Inactive = append(s.Inactive, p)
		}
	}
	return s
}

// Package form drives one patient intake form: field edits, debounced
// auto-save of the draft and the final submission.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/phone"
	"github.com/hackgods/patient-intake/internal/validation"
)

const (
	DefaultAutosaveDelay = time.Second
	defaultSaveTimeout   = 10 * time.Second
)

var (
	ErrUnknownField = errors.New("unknown form field")
	ErrNotEditable  = errors.New("form is not editable")
)

type State int

const (
	Editing State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Saver persists the form. *client.Client satisfies it.
type Saver interface {
	UpsertPatient(ctx context.Context, sessionID string, data patient.FormData, status patient.Status) error
}

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// ValidationError lists every field that blocks a submission.
type ValidationError struct {
	Fields map[Field]validation.Reason
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return "form has invalid fields: " + strings.Join(names, ", ")
}

type Controller struct {
	saver       Saver
	sessionID   string
	prefix      string
	delay       time.Duration
	saveTimeout time.Duration
	afterFunc   AfterFunc
	now         func() time.Time
	log         zerolog.Logger

	mu        sync.Mutex
	data      patient.FormData
	errs      map[Field]validation.Reason
	state     State
	timer     Timer
	gen       uint64
	inFlight  int
	lastSaved time.Time
	closed    bool
}

type Option func(*Controller)

func WithDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithSessionID replaces the minted session token, e.g. to resume a draft.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// WithSessionPrefix changes the prefix of the minted token. The token is
// stamped with the controller's clock once every option is applied.
func WithSessionPrefix(prefix string) Option {
	return func(c *Controller) { c.prefix = prefix }
}

// New mounts a form: fresh field values and one session token that every
// write of this form is keyed on.
func New(saver Saver, opts ...Option) *Controller {
	c := &Controller{
		saver:       saver,
		delay:       DefaultAutosaveDelay,
		saveTimeout: defaultSaveTimeout,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		log:    zerolog.Nop(),
		prefix: patient.DefaultSessionPrefix,
		data:   patient.NewFormData(),
		errs:   make(map[Field]validation.Reason),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = patient.NewSessionID(c.prefix, c.now())
	}
	c.log = c.log.With().Str("session_id", c.sessionID).Logger()
	return c
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

// OnFieldChange records a new value and restarts the auto-save countdown.
// Phone input is reformatted as it is typed. Nothing is written immediately.
func (c *Controller) OnFieldChange(field Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != Editing {
		return ErrNotEditable
	}

	if field == FieldGender {
		g := patient.Gender(value)
		if !g.Valid() {
			return fmt.Errorf("%w: %q", patient.ErrInvalidGender, value)
		}
		c.data.Gender = g
	} else {
		slot := textField(&c.data, field)
		if slot == nil {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		if field == FieldPhone {
			value = phone.FormatForInput(value)
		}
		*slot = value
	}

	delete(c.errs, field)
	c.scheduleLocked()
	return nil
}

// OnFieldBlur validates one field now and records or clears its error.
func (c *Controller) OnFieldBlur(field Field) validation.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := validate(c.data, field)
	if res.Valid {
		delete(c.errs, field)
	} else {
		c.errs[field] = res.Reason
	}
	return res
}

// OnSubmit validates every required field and, only if all pass, writes the
// form as submitted. A backend failure returns the form to Editing.
func (c *Controller) OnSubmit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state != Editing {
		c.mu.Unlock()
		return ErrNotEditable
	}
	c.cancelLocked()

	invalid := make(map[Field]validation.Reason)
	for _, f := range requiredFields {
		if res := validate(c.data, f); !res.Valid {
			invalid[f] = res.Reason
			c.errs[f] = res.Reason
		}
	}
	if len(invalid) > 0 {
		c.mu.Unlock()
		return &ValidationError{Fields: invalid}
	}

	c.state = Submitting
	snapshot := c.data
	c.mu.Unlock()

	err := c.saver.UpsertPatient(ctx, c.sessionID, snapshot, patient.StatusSubmitted)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Editing
		c.log.Error().Err(err).Msg("submit failed")
		return fmt.Errorf("submit form: %w", err)
	}
	c.state = Submitted
	c.lastSaved = c.now()
	return nil
}

// IsFormValid reports whether submit should be enabled. It never gates auto-save.
func (c *Controller) IsFormValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range requiredFields {
		slot := textField(&c.data, f)
		if strings.TrimSpace(*slot) == "" {
			return false
		}
	}
	return len(c.errs) == 0
}

// Close unmounts the form. A pending auto-save is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cancelLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Data() patient.FormData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Errors returns a copy of the current per-field errors.
func (c *Controller) Errors() map[Field]validation.Reason {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Field]validation.Reason, len(c.errs))
	for f, r := range c.errs {
		out[f] = r
	}
	return out
}

// IsSaving reports whether an auto-save request is in flight.
func (c *Controller) IsSaving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// LastSaved is the time of the last successful write, zero if none.
func (c *Controller) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

func (c *Controller) scheduleLocked() {
	c.cancelLocked()
	gen := c.gen
	c.timer = c.afterFunc(c.delay, func() { c.autosave(gen) })
}

// cancelLocked stops the pending timer and bumps the generation so a callback
// that already fired can tell it was cancelled.
func (c *Controller) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) autosave(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed || c.state != Editing {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	snapshot := c.data
	c.inFlight++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	err := c.saver.UpsertPatient(ctx, c.sessionID, snapshot, patient.StatusFilling)
	cancel()

	c.mu.Lock()
	c.inFlight--
	if err == nil {
		c.lastSaved = c.now()
	}
	c.mu.Unlock()

	if err != nil {
		// the draft is saved again on the next edit; the user is not interrupted
		c.log.Warn().Err(err).Msg("auto-save failed")
		return
	}
	c.log.Debug().Msg("draft saved")
}

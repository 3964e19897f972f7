package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/patient-intake/internal/client"
	"github.com/hackgods/patient-intake/internal/config"
	"github.com/hackgods/patient-intake/internal/form"
	"github.com/hackgods/patient-intake/internal/logging"
	"github.com/hackgods/patient-intake/internal/patient"
)

const simPrefix = "SIM"

type SimConfig struct {
	Sessions    int
	Workers     int
	SubmitRatio float64
	Keystroke   time.Duration // pause between typed characters
}

type Simulator struct {
	config  SimConfig
	client  config.ClientConfig
	saver   form.Saver
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	var simCfg SimConfig

	root := &cobra.Command{
		Use:   "simulate",
		Short: "Drive patient intake forms against a running API",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fill in forms field by field, auto-saving drafts and submitting some",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(simCfg); err != nil {
				return err
			}
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "simulate").Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sim := &Simulator{
				config: simCfg,
				client: cfg,
				log:    log,
			}
			sim.saver = meteredSaver{
				next:    client.New(cfg.APIBaseURL, client.WithLogger(log)),
				metrics: &sim.metrics,
			}

			start := time.Now()
			sim.Run(ctx)
			printReport(cmd.OutOrStdout(), time.Since(start), simCfg.Sessions, simCfg.Workers, &sim.metrics)
			return nil
		},
	}
	runCmd.Flags().IntVar(&simCfg.Sessions, "sessions", 20, "number of forms to fill in")
	runCmd.Flags().IntVar(&simCfg.Workers, "workers", 5, "forms filled in at the same time")
	runCmd.Flags().Float64Var(&simCfg.SubmitRatio, "submit-ratio", 0.6, "share of forms that get submitted")
	runCmd.Flags().DurationVar(&simCfg.Keystroke, "keystroke", 40*time.Millisecond, "pause between typed characters")

	root.AddCommand(runCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Sessions <= 0 {
		return errors.New("--sessions must be > 0")
	}
	if cfg.Workers <= 0 {
		return errors.New("--workers must be > 0")
	}
	if cfg.SubmitRatio < 0 || cfg.SubmitRatio > 1 {
		return fmt.Errorf("--submit-ratio must be between 0 and 1, got %v", cfg.SubmitRatio)
	}
	if cfg.Keystroke < 0 {
		return errors.New("--keystroke must not be negative")
	}
	return nil
}

func (s *Simulator) Run(ctx context.Context) {
	s.log.Info().Int("sessions", s.config.Sessions).Int("workers", s.config.Workers).Msg("starting simulation")

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				s.session(ctx)
			}
		}()
	}

feed:
	for i := 0; i < s.config.Sessions; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

// session plays one patient from opening the form to submitting or walking away.
func (s *Simulator) session(ctx context.Context) {
	c := form.New(s.saver,
		form.WithDelay(s.client.AutosaveDelay),
		form.WithSessionPrefix(simPrefix),
		form.WithLogger(s.log),
	)
	defer c.Close()

	submit := gofakeit.Float64Range(0, 1) < s.config.SubmitRatio
	entries := fakeEntries()
	if !submit {
		// an abandoned form stops somewhere in the middle
		entries = entries[:gofakeit.Number(1, len(entries))]
	}

	for _, e := range entries {
		if !s.typeField(ctx, c, e) {
			return
		}
		c.OnFieldBlur(e.field)
	}

	if !submit {
		// leave the last draft time to be saved before the tab closes
		if sleepCtx(ctx, s.client.AutosaveDelay*2) {
			atomic.AddInt64(&s.metrics.Abandoned, 1)
		}
		return
	}

	err := c.OnSubmit(ctx)
	var verr *form.ValidationError
	switch {
	case err == nil:
		atomic.AddInt64(&s.metrics.Submitted, 1)
	case errors.As(err, &verr):
		atomic.AddInt64(&s.metrics.Rejected, 1)
		s.log.Warn().Str("session_id", c.SessionID()).Err(err).Msg("form refused submission")
	default:
		s.log.Error().Str("session_id", c.SessionID()).Err(err).Msg("submit failed")
	}
}

// typeField enters value one character at a time, like a person typing.
// Gender is a picker and is set in one go.
func (s *Simulator) typeField(ctx context.Context, c *form.Controller, e entry) bool {
	if e.field == form.FieldGender {
		if err := c.OnFieldChange(e.field, e.value); err != nil {
			s.log.Warn().Err(err).Msg("field change refused")
		}
		return sleepCtx(ctx, s.config.Keystroke)
	}

	runes := []rune(e.value)
	for i := 1; i <= len(runes); i++ {
		if err := c.OnFieldChange(e.field, string(runes[:i])); err != nil {
			s.log.Warn().Err(err).Msg("field change refused")
			return false
		}
		if !sleepCtx(ctx, s.config.Keystroke) {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type entry struct {
	field form.Field
	value string
}

var phonePrefixes = []string{"02", "06", "08", "09"}

// fakeEntries returns the fields a patient fills in, in form order.
func fakeEntries() []entry {
	entries := []entry{
		{form.FieldFirstName, gofakeit.FirstName()},
		{form.FieldLastName, gofakeit.LastName()},
		{form.FieldDateOfBirth, gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		).Format("2006-01-02")},
		{form.FieldGender, gofakeit.RandomString([]string{
			string(patient.GenderMale), string(patient.GenderFemale), string(patient.GenderOther),
		})},
		{form.FieldPhone, gofakeit.Numerify(gofakeit.RandomString(phonePrefixes) + "########")},
		{form.FieldEmail, gofakeit.Email()},
		{form.FieldAddress, gofakeit.Address().Address},
	}
	if gofakeit.Bool() {
		entries = append(entries,
			entry{form.FieldPreferredLanguage, gofakeit.Language()},
			entry{form.FieldNationality, gofakeit.Country()},
		)
	}
	if gofakeit.Bool() {
		entries = append(entries,
			entry{form.FieldEmergencyContactName, gofakeit.Name()},
			entry{form.FieldEmergencyContactRelationship, gofakeit.RandomString([]string{"Mother", "Father", "Spouse", "Friend"})},
		)
	}
	return entries
}

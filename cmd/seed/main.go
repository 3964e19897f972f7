package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/patient-intake/internal/config"
	"github.com/hackgods/patient-intake/internal/db"
	"github.com/hackgods/patient-intake/internal/logging"
	"github.com/hackgods/patient-intake/internal/patient"
)

const seedPrefix = "SEED"

func main() {
	var (
		count         int
		inactiveRatio float64
		submitRatio   float64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake intake records across every status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
			return run(cmd.Context(), cfg, log, count, submitRatio, inactiveRatio)
		},
	}
	cmd.Flags().IntVar(&count, "patients", 60, "number of patients to insert")
	cmd.Flags().Float64Var(&submitRatio, "submitted", 0.5, "share of patients that finished the form")
	cmd.Flags().Float64Var(&inactiveRatio, "inactive", 0.1, "share of patients marked inactive")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, count int, submitRatio, inactiveRatio float64) error {
	if submitRatio < 0 || inactiveRatio < 0 || submitRatio+inactiveRatio > 1 {
		return fmt.Errorf("ratios must be non-negative and add up to at most 1")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool, log); err != nil {
		return err
	}

	// writes go straight to the repository: inactive is an administrative
	// status the intake API refuses
	repo := patient.NewPgRepository(pool)
	now := time.Now()

	for i := 0; i < count; i++ {
		status := pickStatus(gofakeit.Float64Range(0, 1), submitRatio, inactiveRatio)
		updated := now.Add(-time.Duration(gofakeit.Number(0, 72*3600)) * time.Second)
		p := fakePatient(status, updated)

		if _, _, err := repo.UpsertBySession(ctx, p); err != nil {
			return fmt.Errorf("insert %s: %w", p.SessionID, err)
		}
	}

	log.Info().Int("patients", count).Msg("seed complete")
	return nil
}

func pickStatus(roll, submitRatio, inactiveRatio float64) patient.Status {
	switch {
	case roll < inactiveRatio:
		return patient.StatusInactive
	case roll < inactiveRatio+submitRatio:
		return patient.StatusSubmitted
	default:
		return patient.StatusFilling
	}
}

var (
	relationships = []string{"Mother", "Father", "Spouse", "Sibling", "Friend"}
	religions     = []string{"Buddhism", "Islam", "Christianity", "Hinduism", "None"}
	genders       = []string{string(patient.GenderMale), string(patient.GenderFemale), string(patient.GenderOther)}
	phonePrefixes = []string{"02", "06", "08", "09"}
)

// fakePatient builds a record the way a patient at the given stage would have
// left it. Drafts are often partial; submitted and inactive rows are complete.
func fakePatient(status patient.Status, updated time.Time) patient.UpsertParams {
	data := patient.FormData{
		FirstName:   gofakeit.FirstName(),
		LastName:    gofakeit.LastName(),
		DateOfBirth: gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC)).Format("2006-01-02"),
		Gender:      patient.Gender(gofakeit.RandomString(genders)),
		Phone:       gofakeit.Numerify(gofakeit.RandomString(phonePrefixes) + "########"),
		Email:       gofakeit.Email(),
		Address:     gofakeit.Address().Address,
	}

	if gofakeit.Bool() {
		data.MiddleName = gofakeit.FirstName()
	}
	if gofakeit.Bool() {
		data.PreferredLanguage = gofakeit.Language()
		data.Nationality = gofakeit.Country()
		data.Religion = gofakeit.RandomString(religions)
	}
	if gofakeit.Bool() {
		data.EmergencyContactName = gofakeit.Name()
		data.EmergencyContactRelationship = gofakeit.RandomString(relationships)
	}

	if status == patient.StatusFilling {
		truncateDraft(&data, gofakeit.Number(0, 4))
	}

	sessionID := patient.NewSessionID(seedPrefix, updated)
	return patient.NewUpsertParams(sessionID, data, status, updated)
}

// truncateDraft blanks the fields a patient had not reached yet.
func truncateDraft(d *patient.FormData, reached int) {
	if reached < 4 {
		d.Address = ""
	}
	if reached < 3 {
		d.Email = ""
	}
	if reached < 2 {
		// half typed
		d.Phone = d.Phone[:gofakeit.Number(0, len(d.Phone))]
	}
	if reached < 1 {
		d.DateOfBirth = ""
		d.LastName = ""
	}
}

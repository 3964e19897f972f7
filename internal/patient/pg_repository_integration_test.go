//go:build integration

package patient

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/db"
	"github.com/hackgods/patient-intake/internal/realtime"
)

// setupRepo connects to TEST_POSTGRES_DSN, applies the migrations and empties
// the patients table. Tests are skipped when the variable is not set.
func setupRepo(t *testing.T) (*PgRepository, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.Migrate(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE patients`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return NewPgRepository(pool), pool
}

var baseTime = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

func completeForm() FormData {
	return FormData{
		FirstName:   "Somchai",
		LastName:    "Jaidee",
		DateOfBirth: "1990-01-15",
		Gender:      GenderMale,
		Phone:       "081-234-5678",
		Email:       "somchai@example.com",
		Address:     "99 Sukhumvit Rd, Bangkok",
	}
}

func TestUpsertBySession_InsertThenUpdate_Integration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	first, inserted, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-1-abc1234", FormData{FirstName: "Som"}, StatusFilling, baseTime))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Error("expected first write to insert")
	}

	second, inserted, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-1-abc1234", completeForm(), StatusFilling, baseTime.Add(time.Second)))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Error("expected second write to update")
	}
	if second.ID != first.ID {
		t.Errorf("second write created a new row: %s != %s", second.ID, first.ID)
	}
	if second.FirstName != "Somchai" || second.Phone != "0812345678" {
		t.Errorf("row not replaced: %+v", second)
	}
	if !second.UpdatedAt.Equal(baseTime.Add(time.Second)) {
		t.Errorf("updated_at = %s", second.UpdatedAt)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d rows for one session, want 1", len(all))
	}
}

func TestUpsertBySession_NeverMovesStatusBack_Integration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	submitted, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-2-abc1234", completeForm(), StatusSubmitted, baseTime))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	late := completeForm()
	late.FirstName = "Late draft"
	_, _, err = repo.UpsertBySession(ctx, NewUpsertParams("USER-2-abc1234", late, StatusFilling, baseTime.Add(time.Second)))
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("filling over submitted: err = %v, want ErrStaleWrite", err)
	}

	got, err := repo.GetBySessionID(ctx, "USER-2-abc1234")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSubmitted || got.FirstName != "Somchai" || !got.UpdatedAt.Equal(submitted.UpdatedAt) {
		t.Errorf("row changed by a stale write: %+v", got)
	}

	// resubmitting at the same rank is still allowed
	if _, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-2-abc1234", completeForm(), StatusSubmitted, baseTime.Add(2*time.Second))); err != nil {
		t.Errorf("resubmit: %v", err)
	}
}

func TestUpsertBySession_EmptyOptionalFieldsAreNull_Integration(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	p, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-3-abc1234", FormData{FirstName: "Som"}, StatusFilling, baseTime))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.DateOfBirth != nil || p.MiddleName != nil || p.Religion != nil {
		t.Errorf("empty fields not NULL: dob=%v middle=%v religion=%v", p.DateOfBirth, p.MiddleName, p.Religion)
	}

	var dobIsNull bool
	if err := pool.QueryRow(ctx, `SELECT date_of_birth IS NULL FROM patients WHERE id = $1`, p.ID).Scan(&dobIsNull); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !dobIsNull {
		t.Error("date_of_birth stored as a value, want NULL")
	}

	withDOB, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-3-abc1234", completeForm(), StatusFilling, baseTime.Add(time.Second)))
	if err != nil {
		t.Fatalf("upsert with dob: %v", err)
	}
	if withDOB.DateOfBirth == nil || *withDOB.DateOfBirth != "1990-01-15" {
		t.Errorf("date_of_birth = %v, want 1990-01-15", withDOB.DateOfBirth)
	}
}

func TestUpsertBySession_LongFreeText_Integration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	// 3000 Thai characters are 9000 bytes, more than a NOTIFY payload may carry
	form := completeForm()
	form.Address = strings.Repeat("ก", 3000)
	form.EmergencyContactName = strings.Repeat("ข", 3000)

	p, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-4-abc1234", form, StatusFilling, baseTime))
	if err != nil {
		t.Fatalf("upsert with long fields: %v", err)
	}
	if p.Address != form.Address {
		t.Errorf("address truncated to %d bytes", len(p.Address))
	}
}

func TestList_MostRecentFirst_Integration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	sessions := []string{"USER-5-aaaaaaa", "USER-5-bbbbbbb", "USER-5-ccccccc"}
	offsets := []time.Duration{time.Minute, 3 * time.Minute, 2 * time.Minute}
	for i, s := range sessions {
		if _, _, err := repo.UpsertBySession(ctx, NewUpsertParams(s, completeForm(), StatusFilling, baseTime.Add(offsets[i]))); err != nil {
			t.Fatalf("upsert %s: %v", s, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var got []string
	for _, p := range all {
		got = append(got, p.SessionID)
	}
	want := "USER-5-bbbbbbb,USER-5-ccccccc,USER-5-aaaaaaa"
	if strings.Join(got, ",") != want {
		t.Errorf("order = %v, want %s", got, want)
	}
}

func TestDelete_RemovesRow_Integration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	p, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-6-abc1234", completeForm(), StatusSubmitted, baseTime))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deleted, err := repo.Delete(ctx, p.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.SessionID != "USER-6-abc1234" {
		t.Errorf("deleted row = %+v", deleted)
	}

	if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("get after delete: err = %v, want ErrPatientNotFound", err)
	}
	if _, err := repo.Delete(ctx, p.ID); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("second delete: err = %v, want ErrPatientNotFound", err)
	}
}

func TestChangeTrigger_Notifies_Integration(t *testing.T) {
	repo, pool := setupRepo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payloads := make(chan string, 16)
	go func() {
		_ = db.Listen(ctx, pool, db.PatientChangesChannel, func(p string) {
			select {
			case payloads <- p:
			default:
			}
		})
	}()

	form := completeForm()
	form.Address = strings.Repeat("ก", 3000)

	// the listener may not be attached yet, so keep writing until one arrives
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case payload := <-payloads:
			if len(payload) >= 8000 {
				t.Errorf("payload is %d bytes", len(payload))
			}
			ev, err := realtime.DecodeChange([]byte(payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if ev.Table != "patients" {
				t.Errorf("table = %q", ev.Table)
			}
			var rec struct {
				SessionID string `json:"session_id"`
				Status    Status `json:"status"`
			}
			if err := json.Unmarshal(ev.Record, &rec); err != nil {
				t.Fatalf("record: %v", err)
			}
			if rec.SessionID != "USER-7-abc1234" || rec.Status != StatusFilling {
				t.Errorf("record = %+v", rec)
			}
			return
		case <-ticker.C:
			at := baseTime.Add(time.Duration(i) * time.Second)
			if _, _, err := repo.UpsertBySession(ctx, NewUpsertParams("USER-7-abc1234", form, StatusFilling, at)); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no notification received")
		}
	}
}

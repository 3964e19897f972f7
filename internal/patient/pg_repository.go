package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientColumns = `
	id, session_id, first_name, middle_name, last_name,
	to_char(date_of_birth, 'YYYY-MM-DD'), gender, phone, email, address,
	preferred_language, nationality, religion,
	emergency_contact_name, emergency_contact_relationship,
	status, created_at, updated_at`

// statusRank mirrors Status.Rank so the guard runs inside the upsert itself.
const statusRankSQL = `CASE %s WHEN 'filling' THEN 0 WHEN 'submitted' THEN 1 WHEN 'inactive' THEN 2 ELSE -1 END`

func patientDest(p *Patient) []any {
	return []any{
		&p.ID,
		&p.SessionID,
		&p.FirstName,
		&p.MiddleName,
		&p.LastName,
		&p.DateOfBirth,
		&p.Gender,
		&p.Phone,
		&p.Email,
		&p.Address,
		&p.PreferredLanguage,
		&p.Nationality,
		&p.Religion,
		&p.EmergencyContactName,
		&p.EmergencyContactRelationship,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(patientDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

var upsertSQL = fmt.Sprintf(`
	INSERT INTO patients (
		session_id, first_name, middle_name, last_name, date_of_birth, gender,
		phone, email, address, preferred_language, nationality, religion,
		emergency_contact_name, emergency_contact_relationship, status, updated_at
	)
	VALUES ($1, $2, $3, $4, $5::text::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (session_id) DO UPDATE SET
		first_name = EXCLUDED.first_name,
		middle_name = EXCLUDED.middle_name,
		last_name = EXCLUDED.last_name,
		date_of_birth = EXCLUDED.date_of_birth,
		gender = EXCLUDED.gender,
		phone = EXCLUDED.phone,
		email = EXCLUDED.email,
		address = EXCLUDED.address,
		preferred_language = EXCLUDED.preferred_language,
		nationality = EXCLUDED.nationality,
		religion = EXCLUDED.religion,
		emergency_contact_name = EXCLUDED.emergency_contact_name,
		emergency_contact_relationship = EXCLUDED.emergency_contact_relationship,
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at
	WHERE %s <= %s
	RETURNING %s, (xmax = 0) AS inserted
`, fmt.Sprintf(statusRankSQL, "patients.status"), fmt.Sprintf(statusRankSQL, "EXCLUDED.status"), patientColumns)

func (r *PgRepository) UpsertBySession(ctx context.Context, p UpsertParams) (*Patient, bool, error) {
	row := r.pool.QueryRow(ctx, upsertSQL,
		p.SessionID,
		p.FirstName,
		p.MiddleName,
		p.LastName,
		p.DateOfBirth,
		p.Gender,
		p.Phone,
		p.Email,
		p.Address,
		p.PreferredLanguage,
		p.Nationality,
		p.Religion,
		p.EmergencyContactName,
		p.EmergencyContactRelationship,
		p.Status,
		p.UpdatedAt,
	)

	var out Patient
	var inserted bool
	err := row.Scan(append(patientDest(&out), &inserted)...)
	if err != nil {
		// The conflict guard filtered the update out, so nothing was returned.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrStaleWrite
		}
		return nil, false, fmt.Errorf("upsert patient: %w", err)
	}

	return &out, inserted, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetBySessionID(ctx context.Context, sessionID string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE session_id = $1`, sessionID)
	return scanPatient(row)
}

func (r *PgRepository) List(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `DELETE FROM patients WHERE id = $1 RETURNING `+patientColumns, id)
	return scanPatient(row)
}

package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	// ErrStaleWrite means the stored row is further along the status lifecycle
	// than the incoming write, so the write was ignored.
	ErrStaleWrite = errors.New("write would move patient status backwards")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// UpsertBySession inserts the row for p.SessionID or updates it in place.
	// inserted reports which of the two happened.
	UpsertBySession(ctx context.Context, p UpsertParams) (patient *Patient, inserted bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Patient, error)

	// List returns every row, most recently updated first.
	List(ctx context.Context) ([]Patient, error)

	// Delete removes the row outright and returns what was removed.
	Delete(ctx context.Context, id uuid.UUID) (*Patient, error)
}

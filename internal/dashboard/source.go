package dashboard

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/hackgods/patient-intake/internal/client"
	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/realtime"
)

// Source is the data the dashboard reads and the feed it listens to.
type Source interface {
	ListPatients(ctx context.Context) ([]patient.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error
	Subscribe(ctx context.Context, table string, fn func(realtime.ChangeEvent)) (io.Closer, error)
}

type clientSource struct {
	*client.Client
}

// NewClientSource serves the dashboard from the intake API.
func NewClientSource(c *client.Client) Source {
	return clientSource{Client: c}
}

func (s clientSource) Subscribe(ctx context.Context, table string, fn func(realtime.ChangeEvent)) (io.Closer, error) {
	sub, err := s.Client.Subscribe(ctx, table, fn)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

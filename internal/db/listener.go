package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PatientChangesChannel is the NOTIFY channel the patients trigger writes to.
const PatientChangesChannel = "patient_changes"

// Listen holds one pooled connection in LISTEN mode and hands every
// notification payload on channel to fn. It returns when ctx is cancelled or
// the connection fails; callers reconnect by calling it again.
func Listen(ctx context.Context, pool *pgxpool.Pool, channel string, fn func(payload string)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	// a LISTENing session must not be handed back to the pool
	pgConn := conn.Hijack()
	defer pgConn.Close(context.Background())

	if _, err := pgConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	for {
		n, err := pgConn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		fn(n.Payload)
	}
}

package relay

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource listens on a dedicated connection taken from a pool.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a Source backed by pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Listen implements Source. The connection is taken out of the pool for
// the lifetime of the session and closed afterwards, so LISTEN state never
// leaks back into the pool.
func (s *PostgresSource) Listen(ctx context.Context, channels []string, ready func(), handle func(Notification)) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	ready()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		handle(Notification{Channel: n.Channel, Payload: n.Payload})
	}
}

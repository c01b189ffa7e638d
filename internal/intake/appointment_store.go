package intake

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresAppointmentChecker reads confirmed appointments from the relational
// database. It backs the stale-summary probe: a summary that talks about a
// scheduled appointment is only trustworthy while that appointment exists.
type PostgresAppointmentChecker struct {
	db *sql.DB
}

var _ AppointmentChecker = (*PostgresAppointmentChecker)(nil)

func NewPostgresAppointmentChecker(db *sql.DB) *PostgresAppointmentChecker {
	if db == nil {
		panic("intake: db cannot be nil")
	}
	return &PostgresAppointmentChecker{db: db}
}

func (c *PostgresAppointmentChecker) HasConfirmedAppointment(ctx context.Context, leadID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE lead_id = $1 AND status = 'confirmed' AND scheduled_for > now()
		)
	`
	var exists bool
	if err := c.db.QueryRowContext(ctx, query, leadID).Scan(&exists); err != nil {
		return false, fmt.Errorf("intake: appointment lookup failed: %w", err)
	}
	return exists, nil
}

package persistence

import (
	"context"
	"fmt"
	"time"
)

// UpsertOrganization provisions (or updates the monthly budget of) an
// organization row. budget.Manager reads/writes current_month_spend_cents
// and budget_reset_at directly against the same table via Store.SqlxDB, so
// this is the only organizations write Store itself needs to own.
func (s *Store) UpsertOrganization(ctx context.Context, organizationID string, monthlyBudgetCents *int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO organizations (id, monthly_budget_cents, current_month_spend_cents, budget_reset_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (id) DO UPDATE SET monthly_budget_cents = excluded.monthly_budget_cents
	`), organizationID, monthlyBudgetCents, startOfUTCMonth(time.Now()))
	if err != nil {
		return fmt.Errorf("persistence: upsert organization: %w", err)
	}
	return nil
}

func startOfUTCMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

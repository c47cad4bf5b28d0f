// Package budget implements the Budget Enforcer (spec §4.8): a fixed
// category→model-tier cost table in cents, and reserve/refund/update_spend
// against an organization's monthly budget using optimistic concurrency so
// concurrent reservations never double-count.
package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	cron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/metrics"
)

// Tier is the model tier a category resolves to.
type Tier string

const (
	TierOpus   Tier = "opus"
	TierSonnet Tier = "sonnet"
	TierHaiku  Tier = "haiku"
)

// Category is the Request Router's output category.
type Category string

const (
	CategoryVisualEngineering Category = "visual-engineering"
	CategoryUltrabrain        Category = "ultrabrain"
	CategoryArtistry          Category = "artistry"
	CategoryQuick             Category = "quick"
	CategoryWriting           Category = "writing"
	CategoryUnspecifiedLow    Category = "unspecified-low"
	CategoryUnspecifiedHigh   Category = "unspecified-high"
)

// CategoryTier is the fixed category→model-tier mapping spec §4.1/§4.8
// refer to without spelling out. ultrabrain is the only opus category;
// quick and the low-complexity fallback are the only haiku categories;
// everything else runs on sonnet.
var CategoryTier = map[Category]Tier{
	CategoryUltrabrain:        TierOpus,
	CategoryVisualEngineering: TierSonnet,
	CategoryArtistry:          TierSonnet,
	CategoryWriting:           TierSonnet,
	CategoryUnspecifiedHigh:   TierSonnet,
	CategoryQuick:             TierHaiku,
	CategoryUnspecifiedLow:    TierHaiku,
}

// tierCost is a per-1K-token price in cents.
type tierCost struct {
	InputCentsPerK  float64
	OutputCentsPerK float64
}

// tierCosts is the fixed model-tier cost table, spec §4.8.
var tierCosts = map[Tier]tierCost{
	TierOpus:   {InputCentsPerK: 15, OutputCentsPerK: 75},
	TierSonnet: {InputCentsPerK: 3, OutputCentsPerK: 15},
	TierHaiku:  {InputCentsPerK: 0.25, OutputCentsPerK: 1.25},
}

// Default request shape assumed when estimate_cost is called without
// explicit token counts.
const (
	defaultInTokens  = 1500
	defaultOutTokens = 500
)

// ExhaustedThresholdCents is the is_exhausted() cutoff, spec §4.8.
const ExhaustedThresholdCents = 10.0

// maxCASRetries bounds the reserve/refund/update_spend optimistic-retry
// loop; a conflict after this many attempts means sustained write
// contention on one organization, which the caller should surface rather
// than spin on forever.
const maxCASRetries = 8

var (
	// ErrUnknownCategory is returned when a caller passes a category
	// outside the fixed enum the router can produce.
	ErrUnknownCategory = errors.New("budget: unknown category")
	// ErrCASConflict is returned when reserve/refund/update_spend could
	// not land a compare-and-set within maxCASRetries attempts.
	ErrCASConflict = errors.New("budget: could not apply update under contention")
)

// orgBudget mirrors the persisted `organization` row, spec §6.
type orgBudget struct {
	OrganizationID         string
	MonthlyBudgetCents     *int64
	CurrentMonthSpendCents int64
	BudgetResetAt          time.Time
}

// Manager is the Budget Enforcer. It is safe for concurrent use; all
// mutating operations go through the database via compare-and-set so
// multiple orchestrator processes can share one Manager's backing store
// without a distributed lock.
type Manager struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewManager constructs a Manager over an already-migrated database.
func NewManager(db *sqlx.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// EstimateCostCents implements estimate_cost(category, in_tokens?, out_tokens?).
// Token counts are rounded up to the category's fixed cost table; when
// omitted, the category's default request shape is used instead.
func EstimateCostCents(category Category, inTokens, outTokens *int64) (float64, error) {
	tier, ok := CategoryTier[category]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	cost := tierCosts[tier]

	in := int64(defaultInTokens)
	out := int64(defaultOutTokens)
	if inTokens != nil {
		in = *inTokens
	}
	if outTokens != nil {
		out = *outTokens
	}

	cents := float64(in)/1000*cost.InputCentsPerK + float64(out)/1000*cost.OutputCentsPerK
	return math.Ceil(cents*100) / 100, nil
}

// IsExhausted implements is_exhausted(remaining).
func IsExhausted(remainingCents float64) bool {
	return remainingCents < ExhaustedThresholdCents
}

// getOrg reads an organization's budget row, treating a missing row as an
// unlimited budget rather than an error: orgs are provisioned lazily.
func (m *Manager) getOrg(ctx context.Context, orgID string) (*orgBudget, error) {
	var row struct {
		OrganizationID         string     `db:"id"`
		MonthlyBudgetCents     *int64     `db:"monthly_budget_cents"`
		CurrentMonthSpendCents int64      `db:"current_month_spend_cents"`
		BudgetResetAt          *time.Time `db:"budget_reset_at"`
	}
	err := m.db.GetContext(ctx, &row, `
		SELECT id, monthly_budget_cents, current_month_spend_cents, budget_reset_at
		FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &orgBudget{OrganizationID: orgID, BudgetResetAt: startOfUTCMonth(time.Now())}, nil
		}
		return nil, fmt.Errorf("load organization budget: %w", err)
	}
	resetAt := startOfUTCMonth(time.Now())
	if row.BudgetResetAt != nil {
		resetAt = *row.BudgetResetAt
	}
	return &orgBudget{
		OrganizationID:         row.OrganizationID,
		MonthlyBudgetCents:     row.MonthlyBudgetCents,
		CurrentMonthSpendCents: row.CurrentMonthSpendCents,
		BudgetResetAt:          resetAt,
	}, nil
}

// GetRemaining implements get_remaining(org): max(0, monthly_budget −
// current_spend), or +Inf if the org has no budget configured.
func (m *Manager) GetRemaining(ctx context.Context, orgID string) (float64, error) {
	ob, err := m.getOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if ob.MonthlyBudgetCents == nil {
		return math.Inf(1), nil
	}
	remaining := float64(*ob.MonthlyBudgetCents - ob.CurrentMonthSpendCents)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// casSpend applies a compare-and-set on current_month_spend_cents, upserting
// the organization row on first write. Returns whether the CAS landed.
func (m *Manager) casSpend(ctx context.Context, orgID string, expected, next int64) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO organizations (id, current_month_spend_cents, budget_reset_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET current_month_spend_cents = $2
		WHERE organizations.current_month_spend_cents = $4`,
		orgID, next, startOfUTCMonth(time.Now()), expected)
	if err != nil {
		return false, fmt.Errorf("compare-and-set spend: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Reserve implements reserve(org, cents): a compare-and-set increment of
// current_spend guarded by the previous value, retried under contention.
// It does not itself enforce the budget ceiling — callers (the orchestrator
// preflight) check get_remaining()/is_exhausted() first; Reserve simply
// records the increment and reports the remaining balance after it lands.
func (m *Manager) Reserve(ctx context.Context, orgID string, cents float64) (allowed bool, remaining float64, err error) {
	reserveCents := int64(math.Ceil(cents))

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ob, err := m.getOrg(ctx, orgID)
		if err != nil {
			return false, 0, err
		}

		next := ob.CurrentMonthSpendCents + reserveCents
		ok, err := m.casSpend(ctx, orgID, ob.CurrentMonthSpendCents, next)
		if err != nil {
			return false, 0, err
		}
		if !ok {
			continue // another writer updated the row first; retry with fresh state
		}

		metrics.BudgetReserved.WithLabelValues(orgID).Add(float64(reserveCents))

		if ob.MonthlyBudgetCents == nil {
			return true, math.Inf(1), nil
		}
		rem := float64(*ob.MonthlyBudgetCents - next)
		if rem < 0 {
			rem = 0
		}
		return true, rem, nil
	}

	return false, 0, fmt.Errorf("reserve org=%s cents=%.2f: %w", orgID, cents, ErrCASConflict)
}

// Refund implements refund(org, cents): a compare-and-set decrement,
// clamped so current_spend never goes negative.
func (m *Manager) Refund(ctx context.Context, orgID string, cents float64) error {
	refundCents := int64(math.Ceil(cents))

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ob, err := m.getOrg(ctx, orgID)
		if err != nil {
			return err
		}

		next := ob.CurrentMonthSpendCents - refundCents
		if next < 0 {
			next = 0
		}
		ok, err := m.casSpend(ctx, orgID, ob.CurrentMonthSpendCents, next)
		if err != nil {
			return err
		}
		if ok {
			metrics.BudgetRefunded.WithLabelValues(orgID).Add(float64(refundCents))
			return nil
		}
	}

	return fmt.Errorf("refund org=%s cents=%.2f: %w", orgID, cents, ErrCASConflict)
}

// UpdateSpend implements update_spend(org, actual_cents): the final commit
// after execution. Called after the matching reserve/refund pair, it adds
// the model's actual cost so the net movement across the three calls
// equals the real spend.
func (m *Manager) UpdateSpend(ctx context.Context, orgID string, actualCents float64) error {
	spendCents := int64(math.Ceil(actualCents))

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ob, err := m.getOrg(ctx, orgID)
		if err != nil {
			return err
		}

		next := ob.CurrentMonthSpendCents + spendCents
		ok, err := m.casSpend(ctx, orgID, ob.CurrentMonthSpendCents, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return fmt.Errorf("update_spend org=%s cents=%.2f: %w", orgID, actualCents, ErrCASConflict)
}

// ResetMonthlyBudgets implements reset_monthly_budgets(): manual only.
// Zeros current_spend and advances budget_reset_at for every organization
// whose budget_reset_at predates the current UTC month. Returns the count
// of organizations reset.
func (m *Manager) ResetMonthlyBudgets(ctx context.Context) (int, error) {
	monthStart := startOfUTCMonth(time.Now())
	res, err := m.db.ExecContext(ctx, `
		UPDATE organizations
		SET current_month_spend_cents = 0, budget_reset_at = $1
		WHERE budget_reset_at < $1`, monthStart)
	if err != nil {
		return 0, fmt.Errorf("reset monthly budgets: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	m.logger.Info("reset monthly budgets", zap.Int64("organizations_reset", affected))
	return int(affected), nil
}

func startOfUTCMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseResetSchedule validates a cron expression an operator wants to use
// to trigger ResetMonthlyBudgets on some external scheduler. reset is
// manual-only per spec §4.8 — this core never runs the schedule itself,
// it only validates the expression an operator hands to their own cron.
func ParseResetSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", expr, err)
	}
	return sched, nil
}

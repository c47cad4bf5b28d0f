package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentforge/orchestrator-core/internal/util"
)

// maxStoredTextLen bounds output/error_message columns so one runaway agent
// response or stack-trace-shaped error can't blow up a row; long values are
// truncated rather than rejected, matching the append-only table's "never
// block the caller" contract.
const maxStoredTextLen = 16000

// validExecutionStatuses are the only status values the executions table
// accepts; anything else is a programmer error in the caller, not bad data
// to persist as-is.
var validExecutionStatuses = []string{"running", "completed", "failed"}

// Execution mirrors one row of the append-only executions table: the root
// record created by the Multi-Agent Orchestrator (§4.4) and every child
// record spawned beneath it (§4.5), related by root_execution_id /
// parent_execution_id.
type Execution struct {
	ID                string     `db:"id"`
	RootExecutionID   string     `db:"root_execution_id"`
	ParentExecutionID *string    `db:"parent_execution_id"`
	OrganizationID    string     `db:"organization_id"`
	UserID            string     `db:"user_id"`
	SessionID         string     `db:"session_id"`
	AgentID           string     `db:"agent_id"`
	Request           string     `db:"request"`
	Status            string     `db:"status"`
	Output            string     `db:"output"`
	ErrorMessage      string     `db:"error_message"`
	Metadata          JSON       `db:"metadata"`
	StartedAt         time.Time  `db:"started_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

// CreateExecution implements orchestrator.ExecutionStore: inserts the root
// execution record for a freshly routed request. The orchestrator treats
// any returned error as best-effort (§7), so this never blocks Orchestrate.
func (s *Store) CreateExecution(rootExecutionID, orgID, userID, sessionID, request string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO executions (
			id, root_execution_id, parent_execution_id, organization_id,
			user_id, session_id, agent_id, request, status, started_at, created_at
		) VALUES (?, ?, NULL, ?, ?, ?, '', ?, 'running', ?, ?)
	`), rootExecutionID, rootExecutionID, orgID, userID, sessionID, request, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persistence: create execution: %w", err)
	}
	return nil
}

// UpdateExecution implements orchestrator.ExecutionStore: records the
// terminal status and output of the root execution.
func (s *Store) UpdateExecution(rootExecutionID, status, output string) error {
	if !util.ContainsString(validExecutionStatuses, status) {
		return fmt.Errorf("persistence: invalid execution status %q", status)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE executions SET status = ?, output = ?, completed_at = ?
		WHERE id = ?
	`), status, util.TruncateString(output, maxStoredTextLen, true), time.Now().UTC(), rootExecutionID)
	if err != nil {
		return fmt.Errorf("persistence: update execution: %w", err)
	}
	return nil
}

// RecordBudgetExhausted implements orchestrator.ExecutionStore: persists a
// run the §4.4 scenario-3 preflight rejected before dispatch. Terminal
// status is always "failed" (the executions table's status vocabulary has
// no separate budget_exhausted value); metadata.reason carries the
// distinguishing detail for callers that need it.
func (s *Store) RecordBudgetExhausted(rootExecutionID, output string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metadata := JSON{"reason": "budget_exhausted"}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE executions SET status = 'failed', output = ?, metadata = ?, completed_at = ?
		WHERE id = ?
	`), util.TruncateString(output, maxStoredTextLen, true), metadata, time.Now().UTC(), rootExecutionID)
	if err != nil {
		return fmt.Errorf("persistence: record budget exhausted: %w", err)
	}
	return nil
}

// CreateChildExecution implements spawner.ExecutionRecorder: inserts a
// child row beneath a running agent's execution (§4.5 tree invariant).
// Best-effort, mirroring the spawner's "a failing recorder never blocks
// the spawn" contract.
func (s *Store) CreateChildExecution(childExecutionID, rootExecutionID, parentExecutionID, agentID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO executions (
			id, root_execution_id, parent_execution_id, organization_id,
			user_id, session_id, agent_id, request, status, started_at, created_at
		) VALUES (?, ?, ?, '', '', '', ?, '', 'running', ?, ?)
	`), childExecutionID, rootExecutionID, parentExecutionID, agentID, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persistence: create child execution: %w", err)
	}
	return nil
}

// UpdateChildExecution records a child execution's terminal state; unlike
// CreateChildExecution this isn't part of any collaborator interface, but
// callers that hold the full spawner.Result can use it directly.
func (s *Store) UpdateChildExecution(childExecutionID, status, output, errMsg string) error {
	if !util.ContainsString(validExecutionStatuses, status) {
		return fmt.Errorf("persistence: invalid execution status %q", status)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE executions SET status = ?, output = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`), status, util.TruncateString(output, maxStoredTextLen, true), util.TruncateString(errMsg, maxStoredTextLen, true), time.Now().UTC(), childExecutionID)
	if err != nil {
		return fmt.Errorf("persistence: update child execution: %w", err)
	}
	return nil
}

// GetExecution reads a single execution row by id, used by callers (e.g.
// an audit endpoint) that need the full record rather than the narrow
// write-only collaborator interfaces.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var row Execution
	err := s.sqlxDB.GetContext(ctx, &row, s.rebind(`
		SELECT id, root_execution_id, parent_execution_id, organization_id,
			user_id, session_id, agent_id, request, status, output,
			error_message, started_at, completed_at, created_at
		FROM executions WHERE id = ?
	`), id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: get execution: %w", err)
	}
	return &row, nil
}

// ListChildExecutions returns every execution row whose parent_execution_id
// matches, i.e. one level of the spawn tree beneath parentExecutionID.
func (s *Store) ListChildExecutions(ctx context.Context, parentExecutionID string) ([]Execution, error) {
	var rows []Execution
	err := s.sqlxDB.SelectContext(ctx, &rows, s.rebind(`
		SELECT id, root_execution_id, parent_execution_id, organization_id,
			user_id, session_id, agent_id, request, status, output,
			error_message, started_at, completed_at, created_at
		FROM executions WHERE parent_execution_id = ?
		ORDER BY started_at ASC
	`), parentExecutionID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("persistence: list child executions: %w", err)
	}
	return rows, nil
}

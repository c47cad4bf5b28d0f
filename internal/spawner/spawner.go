package spawner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentforge/orchestrator-core/internal/agents"
	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/metrics"
)

// Spawner enforces the depth, rate, and budget guards a running agent must
// clear before a child agent is allowed to run, then races the child's
// execution against a hard timeout.
type Spawner struct {
	logger      *zap.Logger
	coordinator *coordinator.Coordinator
	budget      BudgetChecker
	recorder    ExecutionRecorder

	minRequiredBudget float64
	childTimeout      time.Duration

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

// New constructs a Spawner. budget/recorder may be nil to skip their
// respective guard/persistence step (useful in tests).
func New(logger *zap.Logger, c *coordinator.Coordinator, budgetChecker BudgetChecker, recorder ExecutionRecorder, minRequiredBudget float64, childTimeout time.Duration, spawnsPerMinute int) *Spawner {
	if minRequiredBudget <= 0 {
		minRequiredBudget = 1000
	}
	if childTimeout <= 0 {
		childTimeout = childTimeoutDefault
	}
	if spawnsPerMinute <= 0 {
		spawnsPerMinute = 20
	}
	return &Spawner{
		logger:            logger,
		coordinator:       c,
		budget:            budgetChecker,
		recorder:          recorder,
		minRequiredBudget: minRequiredBudget,
		childTimeout:      childTimeout,
		limiters:          make(map[string]*rate.Limiter),
		rateLimit:         rate.Limit(float64(spawnsPerMinute) / 60.0),
		burst:             spawnsPerMinute,
	}
}

// Spawn runs every guard in order (depth, rate, budget) and, if all pass,
// executes the child agent under a hard wall-clock timeout. It never
// returns a Go error: rejection is reported as Result.Rejected (§7).
func (s *Spawner) Spawn(ctx context.Context, req Request) Result {
	metrics.SpawnsAttempted.Inc()

	if reason, ok := s.checkDepth(req); !ok {
		metrics.SpawnsRejected.WithLabelValues("depth").Inc()
		return Result{Spawned: false, Rejected: reason}
	}
	if reason, ok := s.checkRate(req); !ok {
		metrics.SpawnsRejected.WithLabelValues("rate_limit").Inc()
		return Result{Spawned: false, Rejected: reason}
	}
	if reason, ok := s.checkBudget(ctx, req); !ok {
		metrics.SpawnsRejected.WithLabelValues("budget").Inc()
		return Result{Spawned: false, Rejected: reason}
	}

	metrics.SpawnDepth.Observe(float64(req.ParentDepth + 1))
	childLabel := agents.SpawnLabel(req.RootExecutionID, req.ParentDepth+1)

	if s.recorder != nil {
		childExecutionID := fmt.Sprintf("%s:%d:%s", req.RootExecutionID, req.ParentDepth+1, childLabel)
		if err := s.recorder.CreateChildExecution(childExecutionID, req.RootExecutionID, req.ParentAgentID, string(req.ChildAgentID)); err != nil {
			s.logger.Warn("spawner: failed to record child execution", zap.Error(err))
		}
	}

	execResult := s.runChild(ctx, req)
	return Result{Spawned: true, ChildLabel: childLabel, Execution: execResult}
}

// checkDepth enforces both the request's own MaxDepth and the absolute
// HardSpawnDepth ceiling, whichever is tighter.
func (s *Spawner) checkDepth(req Request) (string, bool) {
	limit := req.MaxDepth
	if limit <= 0 || limit > HardSpawnDepth {
		limit = HardSpawnDepth
	}
	if req.ParentDepth+1 > limit {
		return fmt.Sprintf("spawn depth %d exceeds limit %d", req.ParentDepth+1, limit), false
	}
	return "", true
}

// checkRate applies a per-(user, organization) sliding-window token
// bucket; limiters are created lazily and kept for the process lifetime.
func (s *Spawner) checkRate(req Request) (string, bool) {
	key := req.UserID + "|" + req.OrganizationID

	s.limiterMu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.burst)
		s.limiters[key] = limiter
	}
	s.limiterMu.Unlock()

	if !limiter.Allow() {
		return "spawn rate limit exceeded for this user/organization", false
	}
	return "", true
}

// checkBudget rejects the spawn if the organization's remaining budget is
// below the configured floor. A budget-lookup error fails open: the
// coordinator's own downstream checks will catch an exhausted budget.
func (s *Spawner) checkBudget(ctx context.Context, req Request) (string, bool) {
	if s.budget == nil {
		return "", true
	}
	remaining, err := s.budget.GetRemaining(ctx, req.OrganizationID)
	if err != nil {
		s.logger.Warn("spawner: budget lookup failed, allowing spawn", zap.Error(err))
		return "", true
	}
	if remaining < s.minRequiredBudget {
		return fmt.Sprintf("remaining budget %.2f below required minimum %.2f", remaining, s.minRequiredBudget), false
	}
	return "", true
}

// runChild executes the child agent, racing it against childTimeout so a
// hung model call cannot pin the parent's goroutine indefinitely.
func (s *Spawner) runChild(ctx context.Context, req Request) coordinator.AgentExecutionResult {
	childCtx, cancel := context.WithTimeout(ctx, s.childTimeout)
	defer cancel()

	ectx := coordinator.ExecutionContext{
		Depth:           req.ParentDepth + 1,
		MaxDepth:        req.MaxDepth,
		RootExecutionID: req.RootExecutionID,
	}

	done := make(chan coordinator.AgentExecutionResult, 1)
	go func() {
		done <- s.coordinator.ExecuteWithAgent(childCtx, agents.ID(req.ChildAgentID), req.Task, ectx, req.SessionID, req.OrganizationID, req.UserID)
	}()

	select {
	case res := <-done:
		return res
	case <-childCtx.Done():
		return coordinator.AgentExecutionResult{
			AgentLabel: req.ChildAgentID,
			Success:    false,
			Error:      "child execution timed out",
		}
	}
}

// Command orchestrator boots the core runtime: Request Router, Task
// Decomposer, Agent Coordinator, Sub-Agent Spawner, Budget Enforcer,
// Session State, Tool Dispatch, and the Temporal-backed Workflow Engine,
// wired together and run as a Temporal worker.
//
// The gRPC/HTTP request surface, auth, vector search, and embeddings
// layers the teacher's orchestrator also serves are deliberately left
// out here: this binary's job is the orchestration core itself, reached
// directly by whatever front door a deployment chooses to put in front
// of it.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
	"github.com/agentforge/orchestrator-core/internal/config"
	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/modelexec"
	"github.com/agentforge/orchestrator-core/internal/orchestrator"
	"github.com/agentforge/orchestrator-core/internal/persistence"
	"github.com/agentforge/orchestrator-core/internal/policy"
	"github.com/agentforge/orchestrator-core/internal/router"
	"github.com/agentforge/orchestrator-core/internal/session"
	"github.com/agentforge/orchestrator-core/internal/spawner"
	temporaladapter "github.com/agentforge/orchestrator-core/internal/temporal"
	"github.com/agentforge/orchestrator-core/internal/tools"
	"github.com/agentforge/orchestrator-core/internal/workflow"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	circuitbreaker.StartMetricsCollection()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store := mustPersistence(cfg, logger)
	defer store.Close()
	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Migrate(migrateCtx); err != nil {
		cancel()
		logger.Fatal("failed to migrate persistence schema", zap.Error(err))
	}
	cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, logger)

	budgetMgr := budget.NewManager(store.SqlxDB(), logger)

	sessionMgr, err := session.NewManager(cfg.Redis.Addr, cfg.Cache.SessionContextTTL, logger)
	if err != nil {
		logger.Fatal("failed to initialize session manager", zap.Error(err))
	}
	defer sessionMgr.Close()

	var policyEngine policy.Engine
	if cfg.Policy.Enabled {
		engine, err := policy.NewOPAEngine(&policy.Config{
			Enabled:    true,
			Mode:       policy.ModeEnforce,
			Path:       cfg.Policy.BundlePath,
			FailClosed: false,
		}, logger)
		if err != nil {
			logger.Warn("policy engine disabled: failed to load bundle", zap.Error(err))
		} else {
			policyEngine = engine
		}
	}

	invoker := tools.NewHTTPInvoker(mustEncryptionKey(logger))
	dispatcher := tools.NewDispatcher(logger, store, invoker, redisWrapper, cfg.Cache.ToolResultTTL)

	executor := modelexec.New(logger, modelexec.OrderClients(modelClientsFromEnv()), dispatcher)
	coord := coordinator.New(logger, executor, budgetMgr, cfg.Limits.MaxParallelAgents)
	decomp := decomposer.New(logger)
	orch := orchestrator.New(logger, decomp, coord, store, budgetMgr, cfg.Limits.MaxParallelAgents)

	spawnsPerMinute := envOrDefaultInt("SPAWNS_PER_MINUTE", 30)
	spawn := spawner.New(logger, coord, budgetMgr, store,
		float64(cfg.Limits.MinRequiredBudgetTokens), cfg.Limits.ChildTimeout, spawnsPerMinute)

	// The router's LLM classification fallback is optional (Classifier may
	// be nil); wiring it would mean adapting modelexec.Executor's
	// free-form Execute into the narrow Classify contract, which no
	// component here needs for anything but this one fallback path, so the
	// keyword-only path is what runs until a real classifier is needed.
	rtr := router.New(logger, nil, redisWrapper, cfg.Cache.RouteCacheTTL, budgetMgr, sessionMgr)

	// The Router/Orchestrator/Spawner are synchronous, in-process APIs;
	// this binary's own front door is the Workflow Engine's Temporal
	// worker below. core bundles the rest so whatever request surface a
	// deployment puts in front of this process (gRPC, HTTP, a CLI) has a
	// single value to take a dependency on instead of re-wiring.
	core := &Runtime{Router: rtr, Orchestrator: orch, Spawner: spawn, SessionManager: sessionMgr, BudgetManager: budgetMgr}
	core.logReady(logger, policyEngine != nil)

	defs, err := workflow.LoadDefinitionsFile(envOrDefault("WORKFLOWS_CONFIG_PATH", "config/workflows.yaml"))
	if err != nil {
		logger.Fatal("failed to load workflow definitions", zap.Error(err))
	}
	definitions, err := workflow.Load(defs)
	if err != nil {
		logger.Fatal("failed to validate workflow definitions", zap.Error(err))
	}

	activities := &workflow.Activities{
		Coordinator: coord,
		Approvals:   &logOnlyApprovals{logger: logger},
		Policy:      policyEngine,
		Definitions: definitions,
	}

	go serveAdmin(logger, cfg)

	runTemporalWorker(logger, cfg, activities)
}

// Runtime bundles the synchronous, in-process collaborators (Request
// Router, Multi-Agent Orchestrator, Sub-Agent Spawner, Session State,
// Budget Enforcer) this binary assembles but does not itself call: they
// are reached by whatever request surface a deployment puts in front of
// this process, the same way the teacher's server.OrchestratorService
// bundles its own dependencies for the gateway to call into.
type Runtime struct {
	Router         *router.Router
	Orchestrator   *orchestrator.Orchestrator
	Spawner        *spawner.Spawner
	SessionManager *session.Manager
	BudgetManager  *budget.Manager
}

func (r *Runtime) logReady(logger *zap.Logger, policyEnabled bool) {
	logger.Info("core runtime assembled",
		zap.Bool("policy_enabled", policyEnabled),
		zap.Bool("router_ready", r.Router != nil),
		zap.Bool("orchestrator_ready", r.Orchestrator != nil),
		zap.Bool("spawner_ready", r.Spawner != nil),
	)
}

// mustPersistence constructs the Persistence Store per cfg.Persistence.Driver.
func mustPersistence(cfg *config.Config, logger *zap.Logger) *persistence.Store {
	switch cfg.Persistence.Driver {
	case "sqlite3", "":
		dsn := cfg.Persistence.DSN
		if dsn == "" {
			dsn = "file:orchestrator.db?_foreign_keys=on"
		}
		store, err := persistence.NewSQLite(dsn, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite persistence store", zap.Error(err))
		}
		return store
	case "postgres":
		pgCfg := persistence.Config{
			Host:            envOrDefault("POSTGRES_HOST", "postgres"),
			Port:            envOrDefaultInt("POSTGRES_PORT", 5432),
			User:            envOrDefault("POSTGRES_USER", "orchestrator"),
			Password:        envOrDefault("POSTGRES_PASSWORD", "orchestrator"),
			Database:        envOrDefault("POSTGRES_DB", "orchestrator"),
			SSLMode:         envOrDefault("POSTGRES_SSLMODE", "disable"),
			MaxConnections:  envOrDefaultInt("POSTGRES_MAX_CONNECTIONS", 20),
			IdleConnections: envOrDefaultInt("POSTGRES_IDLE_CONNECTIONS", 5),
			MaxLifetime:     5 * time.Minute,
		}
		store, err := persistence.NewPostgres(pgCfg, logger)
		if err != nil {
			logger.Fatal("failed to connect to postgres persistence store", zap.Error(err))
		}
		return store
	default:
		logger.Fatal("unknown persistence driver", zap.String("driver", cfg.Persistence.Driver))
		return nil
	}
}

// mustEncryptionKey loads the 32-byte chacha20poly1305 key provider
// connections are encrypted under. A missing key is fatal: there is no
// safe default for token-at-rest encryption.
func mustEncryptionKey(logger *zap.Logger) []byte {
	raw := os.Getenv("CONNECTION_ENCRYPTION_KEY")
	if len(raw) != 32 {
		logger.Fatal("CONNECTION_ENCRYPTION_KEY must be exactly 32 bytes")
	}
	return []byte(raw)
}

// modelClientsFromEnv constructs one ModelClient per provider whose API
// key is present in the environment; a provider with no key configured is
// simply absent from the priority-ordered fallback chain.
func modelClientsFromEnv() map[string]modelexec.ModelClient {
	clients := make(map[string]modelexec.ModelClient)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		clients["anthropic"] = modelexec.NewAnthropicClient(key)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		clients["openai"] = modelexec.NewOpenAIClient(key)
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		clients["google"] = modelexec.NewGoogleClient(key)
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		clients["openrouter"] = modelexec.NewOpenRouterClient(key)
	}
	return clients
}

// logOnlyApprovals is the default ApprovalRequester: it records the
// request and hands back a fresh approval id, but delivers the eventual
// human decision to the workflow's wait-signal (workflow.SignalName) only
// if something else (an operator via the Temporal CLI, or a deployment's
// own approvals front end) signals it. A production deployment wires a
// real approvals surface here instead.
type logOnlyApprovals struct {
	logger *zap.Logger
}

func (a *logOnlyApprovals) RequestApproval(ctx context.Context, approverID, reason string, variables map[string]interface{}) (string, error) {
	approvalID := uuid.NewString()
	a.logger.Info("approval requested",
		zap.String("approval_id", approvalID),
		zap.String("approver_id", approverID),
		zap.String("reason", reason),
	)
	return approvalID, nil
}

// serveAdmin runs the health/metrics HTTP surface on its own port,
// independent of the Temporal worker's readiness.
func serveAdmin(logger *zap.Logger, cfg *config.Config) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	port := config.MetricsPort(cfg, 9090)
	addr := ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("admin HTTP server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("admin HTTP server failed", zap.Error(err))
	}
}

// runTemporalWorker dials Temporal (retrying until it is reachable, same
// as the teacher's worker bring-up), registers the workflow and its
// activities, and blocks until SIGINT/SIGTERM.
func runTemporalWorker(logger *zap.Logger, cfg *config.Config, activities *workflow.Activities) {
	host := cfg.Temporal.HostPort
	if host == "" {
		host = "localhost:7233"
	}

	for i := 1; i <= 60; i++ {
		conn, err := net.DialTimeout("tcp", host, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			break
		}
		logger.Warn("waiting for Temporal to become reachable", zap.String("host", host), zap.Int("attempt", i))
		time.Sleep(1 * time.Second)
	}

	var temporalClient client.Client
	var err error
	for attempt := 1; ; attempt++ {
		temporalClient, err = client.Dial(client.Options{
			HostPort:  host,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporaladapter.NewZapAdapter(logger),
		})
		if err == nil {
			break
		}
		delay := time.Duration(attempt)
		if delay > 15 {
			delay = 15
		}
		logger.Warn("Temporal client dial failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(delay * time.Second)
	}
	defer temporalClient.Close()

	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = "orchestrator-core"
	}

	w := worker.New(temporalClient, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     envOrDefaultInt("WORKER_ACT_CONCURRENCY", 10),
		MaxConcurrentWorkflowTaskExecutionSize: envOrDefaultInt("WORKER_WF_CONCURRENCY", 10),
	})
	w.RegisterWorkflow(workflow.Execute)
	w.RegisterActivityWithOptions(activities.ExecuteAgent, activity.RegisterOptions{Name: workflow.ExecuteAgentActivityName})
	w.RegisterActivityWithOptions(activities.ExecuteParallel, activity.RegisterOptions{Name: workflow.ExecuteParallelActivityName})
	w.RegisterActivityWithOptions(activities.RequestApproval, activity.RegisterOptions{Name: workflow.RequestApprovalActivityName})
	w.RegisterActivityWithOptions(activities.GetWorkflowDefinition, activity.RegisterOptions{Name: workflow.GetWorkflowDefinitionActivityName})

	go func() {
		logger.Info("Temporal worker starting", zap.String("task_queue", taskQueue))
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal("Temporal worker exited with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down orchestrator core")
	w.Stop()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

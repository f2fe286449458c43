// Command pipeline runs the test-pipeline orchestrator: it accepts run
// requests over HTTP, executes the stage pipeline through language
// adapters, persists the run ledger, evaluates merge gates, and drives
// autofix attempts for security findings.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
	"github.com/veriflow-labs/veriflow-go/internal/adapter/goadapter"
	"github.com/veriflow-labs/veriflow-go/internal/artifacts"
	"github.com/veriflow-labs/veriflow-go/internal/autofix"
	"github.com/veriflow-labs/veriflow-go/internal/orchestrator"
	"github.com/veriflow-labs/veriflow-go/internal/platform/env"
	"github.com/veriflow-labs/veriflow-go/internal/platform/httpserver"
	"github.com/veriflow-labs/veriflow-go/internal/platform/objectstore"
	"github.com/veriflow-labs/veriflow-go/internal/platform/postgres"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
	"github.com/veriflow-labs/veriflow-go/internal/repo/memory"
	pgrepo "github.com/veriflow-labs/veriflow-go/internal/repo/postgres"
)

const serviceName = "pipeline"

type repositories struct {
	runs     repo.RunRepository
	steps    repo.StepRepository
	findings repo.FindingRepository
	policies repo.PolicyRepository
	attempts repo.AutofixRepository
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", serviceName)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	if err := env.Load(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("PIPELINE_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PIPELINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	stepTimeout, err := env.Duration("PIPELINE_STEP_TIMEOUT", 10*time.Minute)
	if err != nil {
		return err
	}
	workers, err := env.Int("PIPELINE_WORKERS", 4)
	if err != nil {
		return err
	}
	queueSize, err := env.Int("PIPELINE_QUEUE_SIZE", 64)
	if err != nil {
		return err
	}

	repos, db, readiness, store, err := buildStorage(ctx, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	registry, err := buildRegistry(logger)
	if err != nil {
		return err
	}

	var stepArtifacts orchestrator.ArtifactStore
	var patches autofix.PatchStore
	if store != nil {
		stepArtifacts = store
		patches = store
	}

	executor, err := orchestrator.NewExecutor(
		repos.runs,
		repos.steps,
		repos.findings,
		registry,
		stepArtifacts,
		orchestrator.ExecutorConfig{StepTimeout: stepTimeout},
		logger,
	)
	if err != nil {
		return err
	}

	fixer, err := buildAutofix(logger, repos, patches)
	if err != nil {
		return err
	}

	dispatcher, err := orchestrator.NewDispatcher(
		executor,
		fixer,
		orchestrator.DispatcherConfig{Workers: workers, QueueSize: queueSize},
		logger,
	)
	if err != nil {
		return err
	}
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	api := newPipelineAPI(logger, repos.runs, repos.steps, repos.findings, repos.policies, repos.attempts, dispatcher, db)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	return httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, serviceName, mux))
}

// buildStorage selects the ledger backend. The in-memory backend exists
// for local development and tests; production runs on postgres with the
// artifact bucket alongside.
func buildStorage(ctx context.Context, logger *slog.Logger) (repositories, *sql.DB, []httpserver.ReadinessCheck, *artifacts.MinioStore, error) {
	backend := env.String("PIPELINE_STORAGE_BACKEND", "postgres")

	switch backend {
	case "memory":
		store := memory.NewStore()
		logger.Warn("using in-memory storage, runs will not survive a restart")
		repos := repositories{
			runs:     store,
			steps:    store,
			findings: store,
			policies: store,
			attempts: store,
		}
		return repos, nil, nil, nil, nil

	case "postgres":
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return repositories{}, nil, nil, nil, err
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return repositories{}, nil, nil, nil, err
		}

		osCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			db.Close()
			return repositories{}, nil, nil, nil, err
		}
		client, err := objectstore.NewMinIOClient(osCfg)
		if err != nil {
			db.Close()
			return repositories{}, nil, nil, nil, err
		}
		if err := objectstore.EnsureBucket(ctx, client, osCfg); err != nil {
			db.Close()
			return repositories{}, nil, nil, nil, err
		}
		patches, err := artifacts.NewMinioStore(client, osCfg.Bucket)
		if err != nil {
			db.Close()
			return repositories{}, nil, nil, nil, err
		}

		repos := repositories{
			runs:     pgrepo.NewRunStore(db),
			steps:    pgrepo.NewStepStore(db),
			findings: pgrepo.NewFindingStore(db),
			policies: pgrepo.NewPolicyStore(db),
			attempts: pgrepo.NewAutofixStore(db),
		}
		readiness := []httpserver.ReadinessCheck{
			{Name: "postgres", Check: db.PingContext},
			{Name: "objectstore", Check: func(ctx context.Context) error {
				return objectstore.CheckBucket(ctx, client, osCfg)
			}},
		}
		return repos, db, readiness, patches, nil

	default:
		return repositories{}, nil, nil, nil, fmt.Errorf("unknown PIPELINE_STORAGE_BACKEND: %s", backend)
	}
}

func buildRegistry(logger *slog.Logger) (*orchestrator.Registry, error) {
	tools, err := adapter.LoadToolConfig(env.String("ADAPTER_TOOLS_CONFIG", ""))
	if err != nil {
		return nil, err
	}

	goAdapter, err := goadapter.New(tools, nil, logger)
	if err != nil {
		return nil, err
	}

	registry := orchestrator.NewRegistry()
	registry.Register("go", goAdapter)
	registry.SetDefault(goAdapter)
	return registry, nil
}

func buildAutofix(logger *slog.Logger, repos repositories, patches autofix.PatchStore) (*autofix.Pipeline, error) {
	timeout, err := env.Duration("AUTOFIX_GENERATOR_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	generator, err := autofix.NewHTTPGenerator(autofix.GeneratorConfig{
		BaseURL: env.String("AUTOFIX_GENERATOR_URL", "http://localhost:8000/v1"),
		APIKey:  env.String("AUTOFIX_GENERATOR_API_KEY", ""),
		Model:   env.String("AUTOFIX_GENERATOR_MODEL", "default"),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return autofix.NewPipeline(repos.findings, repos.runs, repos.policies, repos.attempts, generator, patches, logger)
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	apihttp "github.com/turtacn/dockpipe/internal/interfaces/http"
	"github.com/turtacn/dockpipe/internal/interfaces/http/handlers"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve results of the working directory and connected backends over HTTP",
		Long: "Serve the ranked report of the working directory, the redis leaderboard,\n" +
			"run history and archive download links under /api/v1, next to /healthz,\n" +
			"/readyz and /metrics.  Endpoints whose backend is not configured answer 503.",
		RunE: runServe,
	}
	cmd.Flags().StringP("workdir", "w", ".", "working directory whose report is served")
	cmd.Flags().Int("port", config.DefaultServerPort, "listen port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	ctx := cmd.Context()

	infra := newInfrastructure(ctx, cfg, cliCtx.Logger)
	defer infra.Close()

	p, err := infra.pipelineFor(cfg.Run)
	if err != nil {
		return err
	}

	deps := handlers.ResultsDeps{Reports: p, Logger: cliCtx.Logger}
	if infra.leaderboard != nil {
		deps.Leaderboard = infra.leaderboard
	}
	if infra.runs != nil {
		deps.History = infra.runs
	}
	if infra.archives != nil {
		deps.Archives = infra.archives
	}

	srv := newHTTPServer(cfg, infra, handlers.NewResultsHandler(deps), cliCtx.Logger)
	cliCtx.Logger.Info("serving results",
		logging.String("workdir", p.Workspace().Root()),
		logging.String("addr", srv.Addr()))
	return srv.Run(ctx)
}

// newHTTPServer wires health checks, metrics and, when given, the results API.
func newHTTPServer(cfg *config.Config, infra *infrastructure, results *handlers.ResultsHandler, log logging.Logger) *apihttp.Server {
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Mode:             cfg.Server.Mode,
		HealthHandler:    handlers.NewHealthHandler(Version, infra.healthCheckers()...),
		ResultsHandler:   results,
		Logger:           log,
		Metrics:          infra.metrics,
		MetricsCollector: infra.collector,
	})
	return apihttp.NewServer(apihttp.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, log.Named("http"))
}

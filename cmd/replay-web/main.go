// Command replay-web serves the puzzle API and the auto-solve playback
// websocket endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpadapter "svw.info/sudoku-replay/internal/adapters/http"
	"svw.info/sudoku-replay/internal/background"
	"svw.info/sudoku-replay/internal/generator"
	"svw.info/sudoku-replay/internal/hint"
	"svw.info/sudoku-replay/internal/infrastructure/solverapi"
	"svw.info/sudoku-replay/internal/infrastructure/storage"
	"svw.info/sudoku-replay/internal/playback"
	"svw.info/sudoku-replay/internal/ports"
	"svw.info/sudoku-replay/internal/solver"
	"svw.info/sudoku-replay/internal/steps"
	"svw.info/sudoku-replay/internal/telemetry"
	"svw.info/sudoku-replay/internal/usecase"
	"svw.info/sudoku-replay/internal/validator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "replay-web",
		Short:        "Sudoku solve-playback service",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}

	fl := cmd.Flags()
	fl.String("addr", ":8080", "listen address")
	fl.String("data-dir", "./data", "puzzle store directory")
	fl.String("storage", "fs", "puzzle store backend: fs|badger")
	fl.String("solver", "local", "step solver: local|remote")
	fl.String("solver-url", "", "remote solver base URL (required with --solver=remote)")
	fl.Duration("step-delay", playback.DefaultStepDelay, "pause between playback moves")
	fl.Duration("grace-period", background.DefaultGracePeriod, "hidden time before deep pause")
	fl.String("log-level", "info", "debug|info|warn|error")
	fl.String("log-format", "text", "text|json")

	v.SetEnvPrefix("REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fl); err != nil {
		panic(err)
	}
	return cmd
}

func newLogger(v *viper.Viper) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(v.GetString("log-format")) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newStorage(v *viper.Viper) (ports.Storage, func(), error) {
	dir := v.GetString("data-dir")
	switch strings.ToLower(v.GetString("storage")) {
	case "badger":
		db, err := storage.OpenBadger(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	case "fs", "":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		return storage.NewFS(dir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", v.GetString("storage"))
	}
}

func newStepSolver(v *viper.Viper, full ports.Solver, log *slog.Logger) (ports.StepSolver, error) {
	switch strings.ToLower(v.GetString("solver")) {
	case "remote":
		url := v.GetString("solver-url")
		if url == "" {
			return nil, errors.New("--solver=remote requires --solver-url")
		}
		return solverapi.New(url, solverapi.WithLogger(log)), nil
	case "local", "":
		return steps.NewEngine(full, steps.WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("unknown solver %q", v.GetString("solver"))
	}
}

func serve(ctx context.Context, v *viper.Viper) error {
	logger := newLogger(v)
	slog.SetDefault(logger)

	st, closeStore, err := newStorage(v)
	if err != nil {
		return err
	}
	defer closeStore()

	full := solver.NewDLXSolver()
	ss, err := newStepSolver(v, full, logger)
	if err != nil {
		return err
	}

	uc := usecase.NewService(full, ss, generator.NewUniqueGenerator(full), validator.New(), hint.NewSingles(), st)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	h := httpadapter.New(uc,
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(metrics),
		httpadapter.WithStepDelay(v.GetDuration("step-delay")),
		httpadapter.WithGracePeriod(v.GetDuration("grace-period")),
	)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", srv.Addr,
			"storage", v.GetString("storage"),
			"solver", v.GetString("solver"),
			"step_delay", v.GetDuration("step-delay"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

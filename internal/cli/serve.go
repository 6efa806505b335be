package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/opstracker/opstracker-backend-go/internal/api"
	"github.com/opstracker/opstracker-backend-go/internal/database"
	"github.com/opstracker/opstracker-backend-go/internal/repository"
	"github.com/opstracker/opstracker-backend-go/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GPS read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dialect, err := database.Lookup(cfg.Database.Driver)
			if err != nil {
				return err
			}
			db, err := database.Open(ctx, dialect, cfg.Database, database.ScopeTarget)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewGpsRepository(db, dialect)
			if err := repo.EnsureTable(ctx); err != nil {
				return err
			}
			gpsService := service.NewGpsService(repo, cfg.Server.TopN)

			router := api.SetupGPSRouter(cfg.Server, gpsService, newRegistry(), a.logger, ctx.Done())
			return runServer(ctx, cfg.Server.Port, router, a.logger)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "", "listen address (default :5000)")
	flags.Int("top-n", 0, "rows returned by /gps_data (default 10)")
	flags.Int("rate-limit", 0, "requests per minute per client, 0 disables")
	bindFlags(a.v, flags, map[string]string{
		"server.port":       "port",
		"server.top_n":      "top-n",
		"server.rate_limit": "rate-limit",
	})
	return cmd
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServer serves handler on addr until ctx is cancelled, then drains
// in-flight requests.
func runServer(ctx context.Context, addr string, handler *gin.Engine, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Server starting on port %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	logger.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opstracker/opstracker-backend-go/internal/api"
	"github.com/opstracker/opstracker-backend-go/internal/service"
	"github.com/opstracker/opstracker-backend-go/internal/upstream"
)

func newAlertsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Serve the alert API",
		Long: `Serves the alerts of a JSON document loaded once at startup.

When an upstream URL is configured the alarm platform routes
(/auth-obvious, /alarms, /self) are added.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			alerts, err := service.LoadAlerts(cfg.Alerts.File)
			if err != nil {
				return err
			}
			a.logger.Printf("Loaded %d alerts from %s", len(alerts), cfg.Alerts.File)

			var client *upstream.Client
			if cfg.Alerts.UpstreamURL != "" {
				client = upstream.New(upstream.Options{
					BaseURL:         cfg.Alerts.UpstreamURL,
					RefreshInterval: cfg.Alerts.RefreshInterval,
					RetryInterval:   cfg.Alerts.RetryInterval,
					Timeout:         cfg.Alerts.RequestTimeout,
					RetryMax:        2,
					Logger:          a.logger,
				})
				defer client.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			router := api.SetupAlertRouter(cfg.Alerts, service.NewAlertService(alerts, client), newRegistry(), a.logger)
			return runServer(ctx, cfg.Alerts.Port, router, a.logger)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "", "listen address (default :8000)")
	flags.String("file", "", "alert document (default response.json)")
	flags.String("upstream-url", "", "base URL of the alarm platform")
	flags.Int("not-found-status", 0, "status of the unknown alert answer, 404 or 200 (default 404)")
	bindFlags(a.v, flags, map[string]string{
		"alerts.port":             "port",
		"alerts.file":             "file",
		"alerts.upstream_url":     "upstream-url",
		"alerts.not_found_status": "not-found-status",
	})
	return cmd
}

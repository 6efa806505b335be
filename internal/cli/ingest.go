package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/opstracker/opstracker-backend-go/internal/ingest"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Load a delimited GPS export into gps_data",
		Long: `Creates the target database and the gps_data table when missing, then
inserts every row of the file inside one transaction.

Running it twice on the same file inserts the rows twice.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.v.Set("ingest.file", args[0])
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.Ingest.File == "" {
				return errors.New("no input file: pass it as an argument or set OPSTRACKER_INGEST_FILE")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			ing, err := ingest.New(cfg, a.logger, ingest.NewMetrics(reg))
			if err != nil {
				return err
			}

			report, runErr := ing.Run(ctx, cfg.Ingest.File)
			if cfg.Ingest.MetricsFile != "" {
				if err := prometheus.WriteToTextfile(cfg.Ingest.MetricsFile, reg); err != nil {
					a.logger.Printf("Failed to write metrics file: %v", err)
				}
			}
			if runErr != nil {
				return runErr
			}

			fmt.Fprintf(a.stdout, "run %s: %d rows read, %d inserted, %d skipped\n",
				report.RunID, report.Rows, report.Inserted, report.Skipped)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("delimiter", "", "field delimiter (default ;)")
	flags.Duration("startup-delay", 0, "wait before the first connection (default 15s)")
	flags.String("on-error", "", "bad row policy: abort or skip (default abort)")
	flags.Float64("max-error-ratio", 0, "with skip, roll back when more than this share of rows is rejected")
	flags.Bool("strict", false, "reject rows missing uid, dt, actualForever or NetworkType")
	flags.String("timezone", "", "location of timestamps without an offset (default UTC)")
	flags.String("date-order", "", "dmy or mdy, how to read numeric dates such as 7/4/2025 (default dmy)")
	flags.String("metrics-file", "", "write ingest metrics in textfile-collector format to this path")
	bindFlags(a.v, flags, map[string]string{
		"ingest.delimiter":       "delimiter",
		"ingest.startup_delay":   "startup-delay",
		"ingest.on_error":        "on-error",
		"ingest.max_error_ratio": "max-error-ratio",
		"ingest.strict":          "strict",
		"ingest.timezone":        "timezone",
		"ingest.date_order":      "date-order",
		"ingest.metrics_file":    "metrics-file",
	})
	return cmd
}

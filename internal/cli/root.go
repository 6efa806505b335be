// Package cli wires the opstracker subcommands.
package cli

import (
	"io"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opstracker/opstracker-backend-go/internal/config"
)

// app is shared by the subcommands of one root command.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	logger *log.Logger
}

// NewRootCommand builds the opstracker command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		logger: log.New(stderr, "", log.LstdFlags),
	}

	rc := &cobra.Command{
		Use:   "opstracker",
		Short: "GPS telemetry ingestion and read APIs",
		Long: `opstracker loads GPS telemetry exported as delimited text into a SQL
database and serves it over HTTP, next to a static alert API.

Configuration comes from flags, OPSTRACKER_* environment variables
(a .env file in the working directory is honoured) and defaults.
`,
		SilenceUsage: true,
	}

	flags := rc.PersistentFlags()
	flags.String("db-driver", "", "database driver: sqlite, postgres, sqlserver or mysql")
	flags.String("db-host", "", "database server host")
	flags.Int("db-port", 0, "database server port (0 for the driver default)")
	flags.String("db-user", "", "database user")
	flags.String("db-password", "", "database password")
	flags.String("db-name", "", "target database name")
	flags.String("db-path", "", "sqlite database file")
	bindFlags(a.v, flags, map[string]string{
		"database.driver":   "db-driver",
		"database.host":     "db-host",
		"database.port":     "db-port",
		"database.user":     "db-user",
		"database.password": "db-password",
		"database.name":     "db-name",
		"database.path":     "db-path",
	})

	rc.AddCommand(newIngestCommand(a))
	rc.AddCommand(newServeCommand(a))
	rc.AddCommand(newAlertsCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// bindFlags maps configuration keys to flags. An unset flag leaves the
// environment and defaults in charge.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func (a *app) config() (*config.Config, error) {
	return config.Load(a.v)
}

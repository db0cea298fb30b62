package commands

import (
	"database/sql"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/approval"
	"github.com/spoolworks/printfarm/config"
	"github.com/spoolworks/printfarm/db"
	"github.com/spoolworks/printfarm/dispatch"
	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/farm"
	"github.com/spoolworks/printfarm/logger"
)

var (
	// --as and --roles identify the acting principal for gate decisions
	principalFlag string
	rolesFlag     string
)

// registerPrincipalFlags adds the identity flags to a command tree
func registerPrincipalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&principalFlag, "as", "operator", "Acting user id")
	cmd.PersistentFlags().StringVar(&rolesFlag, "roles", "staff", "Comma-separated roles of the acting user")
}

// actingPrincipal builds the principal from the global identity flags
func actingPrincipal() approval.Principal {
	var roles []string
	for _, r := range strings.Split(rolesFlag, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return approval.Principal{ID: principalFlag, Roles: roles}
}

// loadedConfig returns the merged configuration
func loadedConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// openDatabase opens the configured database with migrations applied
func openDatabase() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	return conn, cfg, nil
}

// openService wires the full farm service for a command invocation. The
// caller must Close both returned values.
func openService() (*farm.Service, *sql.DB, error) {
	conn, cfg, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	svc, err := farm.New(conn, cfg, dispatch.LoggingClient{}, nil)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return svc, conn, nil
}
